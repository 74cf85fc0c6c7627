package bot

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPages(n int) []*discordgo.MessageEmbed {
	pages := []*discordgo.MessageEmbed{}
	for i := 0; i < n; i++ {
		pages = append(pages, &discordgo.MessageEmbed{Title: string(rune('A' + i))})
	}
	return pages
}

func buttons(t *testing.T, components []discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	require.Len(t, components, 1, "one row of buttons")
	row := components[0].(discordgo.ActionsRow)
	result := []discordgo.Button{}
	for _, component := range row.Components {
		result = append(result, component.(discordgo.Button))
	}
	return result
}

func disabled(row []discordgo.Button) []bool {
	result := []bool{}
	for _, button := range row {
		result = append(result, button.Disabled)
	}
	return result
}

func TestPaginatorFlip(t *testing.T) {
	paginator := NewPaginator("u1", testPages(3))

	tests := []struct {
		action  string
		changed bool
		title   string
	}{
		{PAGE_PREVIOUS, false, "A"},
		{PAGE_NEXT, true, "B"},
		{PAGE_NEXT, true, "C"},
		{PAGE_NEXT, false, "C"},
		{PAGE_FIRST, true, "A"},
		{PAGE_LAST, true, "C"},
		{"sideways", false, "C"},
	}
	for _, test := range tests {
		assert.Equal(t, test.changed, paginator.Flip(test.action), "Flip(%s)", test.action)
		embed, _ := paginator.Render()
		assert.Equal(t, test.title, embed.Title, "page after %s", test.action)
	}
}

func TestPaginatorRender(t *testing.T) {
	pages := testPages(2)
	pages[0].Footer = &discordgo.MessageEmbedFooter{Text: "AniList"}
	paginator := NewPaginator("u1", pages)

	embed, components := paginator.Render()
	assert.Equal(t, "AniList · Page 1/2", embed.Footer.Text)
	assert.Equal(t, "AniList", pages[0].Footer.Text, "stored page modified")
	row := buttons(t, components)
	require.Len(t, row, 4)
	assert.Equal(t, []bool{true, true, false, false}, disabled(row), "buttons at first page")
	for _, button := range row {
		id, _, ok := ParsePageCustomId(button.CustomID)
		assert.True(t, ok)
		assert.Equal(t, paginator.Id(), id, "custom id %q does not point to the paginator", button.CustomID)
	}

	paginator.Flip(PAGE_LAST)
	_, components = paginator.Render()
	row = buttons(t, components)
	assert.Equal(t, []bool{false, false, true, true}, disabled(row), "buttons at last page")

	// A single page needs no buttons
	embed, components = NewPaginator("", testPages(1)).Render()
	assert.Nil(t, components)
	assert.Nil(t, embed.Footer)
}

func TestPaginatorOwner(t *testing.T) {
	assert.True(t, NewPaginator("", testPages(2)).CanFlip("anyone"), "paginator without owner not flippable")
	owned := NewPaginator("u1", testPages(2))
	assert.True(t, owned.CanFlip("u1"))
	assert.False(t, owned.CanFlip("u2"))
}

func TestParsePageCustomId(t *testing.T) {
	paginator := NewPaginator("", testPages(2))
	id, action, ok := ParsePageCustomId(PageCustomId(paginator.Id(), PAGE_NEXT))
	require.True(t, ok)
	assert.Equal(t, paginator.Id(), id)
	assert.Equal(t, PAGE_NEXT, action)

	for _, customId := range []string{
		"",
		"page",
		"page:not-a-uuid:next",
		"other:" + paginator.Id() + ":next",
		"page:" + paginator.Id() + ":jump",
		strings.Join([]string{"page", paginator.Id(), "next", "extra"}, ":"),
	} {
		_, _, ok := ParsePageCustomId(customId)
		assert.False(t, ok, "ParsePageCustomId(%q) accepted", customId)
	}
}
