package bot

import (
	"anibot/internal/anilistapi"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	COMMAND_REGISTER   = iota
	COMMAND_UNREGISTER = iota
	COMMAND_PROFILE    = iota
	COMMAND_SEARCH     = iota
	COMMAND_STATS      = iota
	COMMAND_PROGRESS   = iota
	COMMAND_ACTIVITY   = iota
	COMMAND_EXPORT     = iota
	COMMAND_TRENDING   = iota
	COMMAND_FINISHERS  = iota
	COMMAND_CHANNEL    = iota
	COMMAND_STATUS     = iota
	COMMAND_HELP       = iota
)

const (
	PARSEID_OK                     = iota
	PARSEID_NO_BOT_PREFIX          = iota
	PARSEID_NO_COMMAND             = iota
	PARSEID_COMMAND_NOT_RECOGNISED = iota
	PARSEID_NO_INPUT               = iota
	PARSEID_NOT_A_USER_NAME        = iota
	PARSEID_NOT_A_MEDIA_TYPE       = iota
	PARSEID_NOT_AN_EXPORT_FORMAT   = iota
	PARSEID_TOO_MANY_ARGUMENTS     = iota
)

var errorMessages map[int]string = map[int]string{
	PARSEID_NO_COMMAND:             "No command provided",
	PARSEID_COMMAND_NOT_RECOGNISED: "Command `%s` not recognised",
	PARSEID_NO_INPUT:               "Command `%s` requires an argument",
	PARSEID_NOT_A_USER_NAME:        "Input `%s` is not an AniList user name",
	PARSEID_NOT_A_MEDIA_TYPE:       "Input `%s` is not `anime` or `manga`",
	PARSEID_NOT_AN_EXPORT_FORMAT:   "Input `%s` is not `csv` or `json`",
	PARSEID_TOO_MANY_ARGUMENTS:     "Command `%s` takes fewer arguments",
}

// Everything a command may receive. Each command reads only its own fields
type Arguments struct {
	Name      string // AniList user name, or a discord mention
	Query     string
	MediaType anilistapi.MediaType
	Format    anilistapi.ExportFormat
	Channel   string // channel name, from text commands
	ChannelId string // channel id, from slash commands
}

type ParseResult struct {
	command      int
	parseid      int
	errorMessage string
	arguments    Arguments
}

// AniList user names are alphanumeric, at most 20 characters
var userNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]{2,20}$`)

// Discord user mention, <@123> or <@!123>
var mentionRegexp = regexp.MustCompile(`^<@!?(\d+)>$`)

func Parse(prefix string, message string) ParseResult {

	noInput := func(command int, commandString string) ParseResult {
		parseid := PARSEID_NO_INPUT
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}

	// The first word has to be the bot prefix
	words := strings.Fields(message)
	if len(words) == 0 || !strings.EqualFold(words[0], prefix) {
		log.Debug().Msg("Reject message not intended for the bot")
		return ParseResult{parseid: PARSEID_NO_BOT_PREFIX}
	}

	// Get the command if valid
	words = words[1:]
	if len(words) == 0 {
		parseid := PARSEID_NO_COMMAND
		return ParseResult{parseid: parseid, errorMessage: errorMessages[parseid]}
	}
	commandString := strings.ToLower(words[0])
	words = words[1:]

	// Match the command

	switch commandString {
	case "register":
		// ani register <anilist_name>
		command := COMMAND_REGISTER
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return parseUserName(command, words)
	case "unregister":
		// ani unregister
		return ParseResult{command: COMMAND_UNREGISTER, parseid: PARSEID_OK}
	case "profile":
		// ani profile [anilist_name]
		return parseOptionalUser(COMMAND_PROFILE, words)
	case "stats":
		// ani stats [anilist_name]
		return parseOptionalUser(COMMAND_STATS, words)
	case "activity":
		// ani activity [anilist_name]
		return parseOptionalUser(COMMAND_ACTIVITY, words)
	case "anime", "manga":
		// ani anime <query>
		command := COMMAND_SEARCH
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		mediaType, _ := anilistapi.ParseMediaType(commandString)
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: Arguments{MediaType: mediaType, Query: strings.Join(words, " ")}}
	case "progress":
		// ani progress <manga>
		command := COMMAND_PROGRESS
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: Arguments{MediaType: anilistapi.MANGA, Query: strings.Join(words, " ")}}
	case "export":
		// ani export <anime|manga> [csv|json] [anilist_name]
		return parseExport(words)
	case "trending":
		// ani trending [anime|manga]
		command := COMMAND_TRENDING
		arguments := Arguments{MediaType: anilistapi.ANIME}
		if len(words) > 1 {
			return tooManyArguments(command, commandString)
		}
		if len(words) == 1 {
			mediaType, err := anilistapi.ParseMediaType(strings.ToLower(words[0]))
			if err != nil {
				parseid := PARSEID_NOT_A_MEDIA_TYPE
				return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], words[0])}
			}
			arguments.MediaType = mediaType
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
	case "finishers":
		// ani finishers
		return ParseResult{command: COMMAND_FINISHERS, parseid: PARSEID_OK}
	case "channel":
		// ani channel <channel_name>
		command := COMMAND_CHANNEL
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: Arguments{Channel: strings.Join(words, " ")}}
	case "status":
		// ani status
		return ParseResult{command: COMMAND_STATUS, parseid: PARSEID_OK}
	case "help":
		// ani help
		return ParseResult{command: COMMAND_HELP, parseid: PARSEID_OK}
	default:
		parseid := PARSEID_COMMAND_NOT_RECOGNISED
		return ParseResult{parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}
}

func parseUserName(command int, words []string) ParseResult {

	// User names never contain spaces
	word := strings.Join(words, " ")
	if len(words) > 1 || !(userNameRegexp.MatchString(word) || mentionRegexp.MatchString(word)) {
		parseid := PARSEID_NOT_A_USER_NAME
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], word)}
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: Arguments{Name: word}}
}

// The user is optional and defaults to the caller
func parseOptionalUser(command int, words []string) ParseResult {
	if len(words) == 0 {
		return ParseResult{command: command, parseid: PARSEID_OK}
	}
	return parseUserName(command, words)
}

func parseExport(words []string) ParseResult {

	command := COMMAND_EXPORT
	if len(words) == 0 {
		return ParseResult{command: command, parseid: PARSEID_NO_INPUT, errorMessage: fmt.Sprintf(errorMessages[PARSEID_NO_INPUT], "export")}
	}
	if len(words) > 3 {
		return tooManyArguments(command, "export")
	}

	// Media type
	mediaType, err := anilistapi.ParseMediaType(strings.ToLower(words[0]))
	if err != nil {
		parseid := PARSEID_NOT_A_MEDIA_TYPE
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], words[0])}
	}
	arguments := Arguments{MediaType: mediaType, Format: anilistapi.EXPORT_CSV}
	words = words[1:]

	// Format
	if len(words) > 0 {
		format, err := anilistapi.ParseExportFormat(strings.ToLower(words[0]))
		if err != nil {
			// A lone extra word may be the user name
			if len(words) == 1 {
				result := parseUserName(command, words)
				if result.parseid != PARSEID_OK {
					parseid := PARSEID_NOT_AN_EXPORT_FORMAT
					return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], words[0])}
				}
				arguments.Name = result.arguments.Name
				return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
			}
			parseid := PARSEID_NOT_AN_EXPORT_FORMAT
			return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], words[0])}
		}
		arguments.Format = format
		words = words[1:]
	}

	// User
	if len(words) > 0 {
		result := parseUserName(command, words)
		if result.parseid != PARSEID_OK {
			return result
		}
		arguments.Name = result.arguments.Name
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
}

func tooManyArguments(command int, commandString string) ParseResult {
	parseid := PARSEID_TOO_MANY_ARGUMENTS
	return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
}

// Extract the discord id of a mention, if the name is one
func MentionedId(name string) (string, bool) {
	match := mentionRegexp.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// A link to an AniList media page found in a message
type MediaLink struct {
	Type anilistapi.MediaType
	Id   anilistapi.MediaId
}

var mediaLinkRegexp = regexp.MustCompile(`https?://(?:www\.)?anilist\.co/(anime|manga)/(\d+)`)

// Maximum number of previews answered per message
const maxMediaLinks = 3

// Find the distinct AniList media links of a message, in order of appearance
func FindMediaLinks(content string) []MediaLink {

	links := []MediaLink{}
	seen := map[anilistapi.MediaId]bool{}
	for _, match := range mediaLinkRegexp.FindAllStringSubmatch(content, -1) {
		id, err := strconv.Atoi(match[2])
		if err != nil || id == 0 || seen[anilistapi.MediaId(id)] {
			continue
		}
		mediaType, _ := anilistapi.ParseMediaType(match[1])
		seen[anilistapi.MediaId(id)] = true
		links = append(links, MediaLink{Type: mediaType, Id: anilistapi.MediaId(id)})
		if len(links) == maxMediaLinks {
			break
		}
	}
	return links
}
