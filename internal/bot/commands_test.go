package bot

import (
	"anibot/internal/anilistapi"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func stringOption(name string, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func TestCommandsMatchParser(t *testing.T) {
	seen := map[string]bool{}
	for _, command := range Commands() {
		assert.False(t, seen[command.Name], "command %s defined twice", command.Name)
		seen[command.Name] = true
		assert.NotEmpty(t, command.Description, "command %s without description", command.Name)

		// Every slash command is understood by the text parser as well
		result := Parse("ani", "ani "+command.Name)
		assert.NotEqual(t, PARSEID_COMMAND_NOT_RECOGNISED, result.parseid, "command %s unknown to the text parser", command.Name)
	}
}

func TestParseInteraction(t *testing.T) {

	tests := []struct {
		name      string
		options   []*discordgo.ApplicationCommandInteractionDataOption
		parseid   int
		command   int
		arguments Arguments
	}{
		{"register", nil, PARSEID_NO_INPUT, COMMAND_REGISTER, Arguments{}},
		{"register", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("user", " Yuki ")}, PARSEID_OK, COMMAND_REGISTER, Arguments{Name: "Yuki"}},
		{"register", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("user", "two words")}, PARSEID_NOT_A_USER_NAME, COMMAND_REGISTER, Arguments{}},
		{"profile", nil, PARSEID_OK, COMMAND_PROFILE, Arguments{}},
		{"stats", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("user", "Yuki")}, PARSEID_OK, COMMAND_STATS, Arguments{Name: "Yuki"}},
		{"anime", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("query", "frieren")}, PARSEID_OK, COMMAND_SEARCH, Arguments{MediaType: anilistapi.ANIME, Query: "frieren"}},
		{"manga", nil, PARSEID_NO_INPUT, COMMAND_SEARCH, Arguments{}},
		{"progress", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("query", "one piece")}, PARSEID_OK, COMMAND_PROGRESS, Arguments{MediaType: anilistapi.MANGA, Query: "one piece"}},
		{"export", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("type", "manga")}, PARSEID_OK, COMMAND_EXPORT, Arguments{MediaType: anilistapi.MANGA, Format: anilistapi.EXPORT_CSV}},
		{"export", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("type", "anime"), stringOption("format", "json"), stringOption("user", "Yuki")}, PARSEID_OK, COMMAND_EXPORT, Arguments{MediaType: anilistapi.ANIME, Format: anilistapi.EXPORT_JSON, Name: "Yuki"}},
		{"export", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("type", "books")}, PARSEID_NOT_A_MEDIA_TYPE, COMMAND_EXPORT, Arguments{}},
		{"trending", nil, PARSEID_OK, COMMAND_TRENDING, Arguments{MediaType: anilistapi.ANIME}},
		{"trending", []*discordgo.ApplicationCommandInteractionDataOption{stringOption("type", "manga")}, PARSEID_OK, COMMAND_TRENDING, Arguments{MediaType: anilistapi.MANGA}},
		{"channel", []*discordgo.ApplicationCommandInteractionDataOption{{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "555"}}, PARSEID_OK, COMMAND_CHANNEL, Arguments{ChannelId: "555"}},
		{"channel", nil, PARSEID_NO_INPUT, COMMAND_CHANNEL, Arguments{}},
		{"finishers", nil, PARSEID_OK, COMMAND_FINISHERS, Arguments{}},
		{"status", nil, PARSEID_OK, COMMAND_STATUS, Arguments{}},
		{"help", nil, PARSEID_OK, COMMAND_HELP, Arguments{}},
		{"dance", nil, PARSEID_COMMAND_NOT_RECOGNISED, 0, Arguments{}},
	}

	for _, test := range tests {
		result := ParseInteraction(discordgo.ApplicationCommandInteractionData{Name: test.name, Options: test.options})
		if !assert.Equal(t, test.parseid, result.parseid, "/%s: %s", test.name, result.errorMessage) {
			continue
		}
		assert.Equal(t, test.command, result.command, "/%s", test.name)
		if result.parseid == PARSEID_OK {
			assert.Equal(t, test.arguments, result.arguments, "/%s", test.name)
		}
	}
}
