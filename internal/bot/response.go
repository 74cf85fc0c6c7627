package bot

import (
	"bytes"

	"github.com/bwmarrin/discordgo"
)

type ResponseString struct {
	string
}
type ResponseEmbed struct {
	discordgo.MessageEmbed
}
type ResponseFile struct {
	content     string
	name        string
	contentType string
	data        []byte
}

// Several embeds shown one at a time, flipped with buttons
type ResponsePages struct {
	*Paginator
}

type Response interface {
	Message() *discordgo.MessageSend
}

func (response ResponseString) Message() *discordgo.MessageSend {
	return &discordgo.MessageSend{Content: response.string}
}

func (response ResponseEmbed) Message() *discordgo.MessageSend {
	embed := response.MessageEmbed
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{&embed}}
}

func (response ResponseFile) Message() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: response.content,
		Files: []*discordgo.File{{
			Name:        response.name,
			ContentType: response.contentType,
			Reader:      bytes.NewReader(response.data),
		}},
	}
}

func (response ResponsePages) Message() *discordgo.MessageSend {
	embed, components := response.Paginator.Render()
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}, Components: components}
}

// Content of a response, used in logs and tests
func (response ResponseString) String() string {
	return response.string
}

func webhookEdit(message *discordgo.MessageSend) *discordgo.WebhookEdit {
	edit := &discordgo.WebhookEdit{Content: &message.Content, Files: message.Files}
	embeds := message.Embeds
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	edit.Embeds = &embeds
	if message.Components != nil {
		components := message.Components
		edit.Components = &components
	}
	return edit
}

func webhookParams(message *discordgo.MessageSend) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:    message.Content,
		Embeds:     message.Embeds,
		Components: message.Components,
		Files:      message.Files,
	}
}
