package bot

import (
	"anibot/internal/anilistapi"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var mediaTypeChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "anime", Value: "anime"},
	{Name: "manga", Value: "manga"},
}

var formatChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "csv", Value: string(anilistapi.EXPORT_CSV)},
	{Name: "json", Value: string(anilistapi.EXPORT_JSON)},
}

func userOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "user",
		Description: "AniList user name, yours by default",
		Required:    required,
	}
}

func queryOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "query",
		Description: description,
		Required:    true,
	}
}

// Slash commands registered on startup
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "register",
			Description: "Link your AniList account in this server",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "user",
				Description: "Your AniList user name",
				Required:    true,
			}},
		},
		{Name: "unregister", Description: "Unlink your AniList account from this server"},
		{Name: "profile", Description: "Show an AniList profile", Options: []*discordgo.ApplicationCommandOption{userOption(false)}},
		{Name: "anime", Description: "Search for an anime", Options: []*discordgo.ApplicationCommandOption{queryOption("Title to search")}},
		{Name: "manga", Description: "Search for a manga", Options: []*discordgo.ApplicationCommandOption{queryOption("Title to search")}},
		{Name: "stats", Description: "Show anime and manga statistics", Options: []*discordgo.ApplicationCommandOption{userOption(false)}},
		{Name: "progress", Description: "Chapters read since the last time you asked", Options: []*discordgo.ApplicationCommandOption{queryOption("Manga title")}},
		{Name: "activity", Description: "Show the most recent activity", Options: []*discordgo.ApplicationCommandOption{userOption(false)}},
		{
			Name:        "export",
			Description: "Export a library as a file",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "type",
					Description: "Library to export",
					Required:    true,
					Choices:     mediaTypeChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "format",
					Description: "File format, csv by default",
					Choices:     formatChoices,
				},
				userOption(false),
			},
		},
		{
			Name:        "trending",
			Description: "Show what is trending on AniList",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "anime by default",
				Choices:     mediaTypeChoices,
			}},
		},
		{Name: "finishers", Description: "Titles completed by members of this server during the last week"},
		{
			Name:        "channel",
			Description: "Change the channel for the feed and digests",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "New channel",
				Required:     true,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			}},
		},
		{Name: "status", Description: "Members registered and channel in use"},
		{Name: "help", Description: "Usage of the different commands"},
	}
}

// Translate a slash command into the same result the text parser produces
func ParseInteraction(data discordgo.ApplicationCommandInteractionData) ParseResult {

	options := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, option := range data.Options {
		options[option.Name] = option
	}
	stringOption := func(name string) string {
		option, ok := options[name]
		if !ok || option.Type != discordgo.ApplicationCommandOptionString {
			return ""
		}
		return strings.TrimSpace(option.StringValue())
	}
	invalid := func(command int, parseid int, value string) ParseResult {
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], value)}
	}
	optionalUser := func(command int) ParseResult {
		name := stringOption("user")
		if name == "" {
			return ParseResult{command: command, parseid: PARSEID_OK}
		}
		return parseUserName(command, []string{name})
	}

	switch data.Name {
	case "register":
		name := stringOption("user")
		if name == "" {
			return invalid(COMMAND_REGISTER, PARSEID_NO_INPUT, data.Name)
		}
		return parseUserName(COMMAND_REGISTER, []string{name})
	case "unregister":
		return ParseResult{command: COMMAND_UNREGISTER, parseid: PARSEID_OK}
	case "profile":
		return optionalUser(COMMAND_PROFILE)
	case "stats":
		return optionalUser(COMMAND_STATS)
	case "activity":
		return optionalUser(COMMAND_ACTIVITY)
	case "anime", "manga":
		query := stringOption("query")
		if query == "" {
			return invalid(COMMAND_SEARCH, PARSEID_NO_INPUT, data.Name)
		}
		mediaType, _ := anilistapi.ParseMediaType(data.Name)
		return ParseResult{command: COMMAND_SEARCH, parseid: PARSEID_OK, arguments: Arguments{MediaType: mediaType, Query: query}}
	case "progress":
		query := stringOption("query")
		if query == "" {
			return invalid(COMMAND_PROGRESS, PARSEID_NO_INPUT, data.Name)
		}
		return ParseResult{command: COMMAND_PROGRESS, parseid: PARSEID_OK, arguments: Arguments{MediaType: anilistapi.MANGA, Query: query}}
	case "export":
		mediaType, err := anilistapi.ParseMediaType(stringOption("type"))
		if err != nil {
			return invalid(COMMAND_EXPORT, PARSEID_NOT_A_MEDIA_TYPE, stringOption("type"))
		}
		arguments := Arguments{MediaType: mediaType, Format: anilistapi.EXPORT_CSV}
		if value := stringOption("format"); value != "" {
			format, err := anilistapi.ParseExportFormat(value)
			if err != nil {
				return invalid(COMMAND_EXPORT, PARSEID_NOT_AN_EXPORT_FORMAT, value)
			}
			arguments.Format = format
		}
		if name := stringOption("user"); name != "" {
			result := parseUserName(COMMAND_EXPORT, []string{name})
			if result.parseid != PARSEID_OK {
				return result
			}
			arguments.Name = name
		}
		return ParseResult{command: COMMAND_EXPORT, parseid: PARSEID_OK, arguments: arguments}
	case "trending":
		arguments := Arguments{MediaType: anilistapi.ANIME}
		if value := stringOption("type"); value != "" {
			mediaType, err := anilistapi.ParseMediaType(value)
			if err != nil {
				return invalid(COMMAND_TRENDING, PARSEID_NOT_A_MEDIA_TYPE, value)
			}
			arguments.MediaType = mediaType
		}
		return ParseResult{command: COMMAND_TRENDING, parseid: PARSEID_OK, arguments: arguments}
	case "finishers":
		return ParseResult{command: COMMAND_FINISHERS, parseid: PARSEID_OK}
	case "channel":
		option, ok := options["channel"]
		if !ok {
			return invalid(COMMAND_CHANNEL, PARSEID_NO_INPUT, data.Name)
		}
		channelId, _ := option.Value.(string)
		if channelId == "" {
			return invalid(COMMAND_CHANNEL, PARSEID_NO_INPUT, data.Name)
		}
		return ParseResult{command: COMMAND_CHANNEL, parseid: PARSEID_OK, arguments: Arguments{ChannelId: channelId}}
	case "status":
		return ParseResult{command: COMMAND_STATUS, parseid: PARSEID_OK}
	case "help":
		return ParseResult{command: COMMAND_HELP, parseid: PARSEID_OK}
	default:
		return invalid(0, PARSEID_COMMAND_NOT_RECOGNISED, data.Name)
	}
}
