package bot

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

const pagePrefix = "page"

const (
	PAGE_FIRST    = "first"
	PAGE_PREVIOUS = "prev"
	PAGE_NEXT     = "next"
	PAGE_LAST     = "last"
)

type Paginator struct {
	mu      sync.Mutex
	id      string
	owner   string // discord id of the only user allowed to flip, anyone if empty
	pages   []*discordgo.MessageEmbed
	current int
}

func NewPaginator(owner string, pages []*discordgo.MessageEmbed) *Paginator {
	return &Paginator{id: uuid.NewString(), owner: owner, pages: pages}
}

func (p *Paginator) Id() string {
	return p.id
}

func (p *Paginator) Len() int {
	return len(p.pages)
}

func (p *Paginator) CanFlip(userId string) bool {
	return p.owner == "" || p.owner == userId
}

// Move to another page. Returns whether the current page changed
func (p *Paginator) Flip(action string) bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.current
	switch action {
	case PAGE_FIRST:
		p.current = 0
	case PAGE_PREVIOUS:
		p.current = max(p.current-1, 0)
	case PAGE_NEXT:
		p.current = min(p.current+1, len(p.pages)-1)
	case PAGE_LAST:
		p.current = len(p.pages) - 1
	}
	return previous != p.current
}

// The embed of the current page, with its footer, and the buttons to flip
func (p *Paginator) Render() (*discordgo.MessageEmbed, []discordgo.MessageComponent) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) == 0 {
		return &discordgo.MessageEmbed{Description: "Nothing to show", Color: color}, nil
	}

	// Copy so that the stored page is never modified
	page := *p.pages[p.current]
	if len(p.pages) == 1 {
		return &page, nil
	}
	footer := fmt.Sprintf("Page %d/%d", p.current+1, len(p.pages))
	if page.Footer != nil && page.Footer.Text != "" {
		footer = page.Footer.Text + " · " + footer
	}
	page.Footer = &discordgo.MessageEmbedFooter{Text: footer}

	atStart := p.current == 0
	atEnd := p.current == len(p.pages)-1
	button := func(label string, action string, disabled bool) discordgo.Button {
		return discordgo.Button{
			Label:    label,
			Style:    discordgo.SecondaryButton,
			CustomID: PageCustomId(p.id, action),
			Disabled: disabled,
		}
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			button("⏮", PAGE_FIRST, atStart),
			button("◀", PAGE_PREVIOUS, atStart),
			button("▶", PAGE_NEXT, atEnd),
			button("⏭", PAGE_LAST, atEnd),
		}},
	}
	return &page, components
}

func PageCustomId(id string, action string) string {
	return strings.Join([]string{pagePrefix, id, action}, ":")
}

// Split a button custom id into paginator id and action
func ParsePageCustomId(customId string) (string, string, bool) {
	parts := strings.Split(customId, ":")
	if len(parts) != 3 || parts[0] != pagePrefix {
		return "", "", false
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return "", "", false
	}
	switch parts[2] {
	case PAGE_FIRST, PAGE_PREVIOUS, PAGE_NEXT, PAGE_LAST:
		return parts[1], parts[2], true
	}
	return "", "", false
}
