package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// Use AniList blue for the bot
const color int = 0x02A9FF

// Discord limits
const (
	maxDescription = 4096
	maxFieldValue  = 1024
	maxFields      = 25
	maxEmbedTotal  = 6000
)

// Room kept for the footer of an embed that does not fit
const moreReserve = 32

// Lines per page in paged lists
const linesPerPage = 10

const placeholder = "?"

func Welcome(prefix string, channelId string) []Response {

	content := fmt.Sprintf("Hi, I will be sending AniList activity and digests to channel <#%s>\n", channelId)
	content += fmt.Sprintf("You can change this anytime by typing \n> `%s channel <channel_name>`", prefix)
	return []Response{ResponseString{content}}
}

func InputNotValid(errorMessage string) []Response {

	return []Response{ResponseString{fmt.Sprintf("Input not valid: \n> %s", errorMessage)}}
}

func HelpMessage(prefix string) []Response {

	embed := discordgo.MessageEmbed{
		Title:       "Commands available",
		Description: fmt.Sprintf("Every command works as a slash command or typed after `%s`", prefix),
		Color:       color,
	}
	usages := []struct{ usage, description string }{
		{"register <anilist_name>", "Link your AniList account in this server. Your activity will be posted to the feed channel"},
		{"unregister", "Unlink your AniList account from this server"},
		{"profile [anilist_name]", "Show an AniList profile, yours by default"},
		{"anime <query>", "Search for an anime"},
		{"manga <query>", "Search for a manga"},
		{"stats [anilist_name]", "Show anime and manga statistics"},
		{"progress <manga>", "Tell how many chapters you read since the last time you asked"},
		{"activity [anilist_name]", "Show the most recent activity"},
		{"export <anime|manga> [csv|json]", "Export a library as a file"},
		{"trending [anime|manga]", "Show what is trending on AniList"},
		{"finishers", "Show the titles completed by members of this server during the last week"},
		{"channel <channel_name>", "Change the channel the bot posts the feed and digests to"},
		{"status", "Print the members registered, and the channel the bot is posting to"},
		{"help", "Print the usage of the different commands"},
	}
	for _, u := range usages {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("`%s %s`", prefix, u.usage),
			Value:  u.description,
			Inline: false,
		})
	}
	return []Response{ResponseEmbed{embed}}
}

func NoResponseAnilist(subject string) []Response {
	return []Response{ResponseString{fmt.Sprintf("Got no response from AniList for %s, try again later", subject)}}
}

func UserNotFound(name string) []Response {
	return []Response{ResponseString{fmt.Sprintf("User `%s` not found on AniList", name)}}
}

func MediaNotFound(mediaType anilistapi.MediaType, query string) []Response {
	return []Response{ResponseString{fmt.Sprintf("No %s found for `%s`", mediaType.Lower(), query)}}
}

func NotRegistered(prefix string) []Response {
	return []Response{ResponseString{fmt.Sprintf("You are not registered in this server. Use `%s register <anilist_name>` first", prefix)}}
}

func MemberNotRegistered(discordId string) []Response {
	return []Response{ResponseString{fmt.Sprintf("<@%s> is not registered in this server", discordId)}}
}

func UserAlreadyRegistered(name string) []Response {
	return []Response{ResponseString{fmt.Sprintf("You are already registered as `%s`", name)}}
}

func UserRegistered(name string, channelId string) Response {
	return ResponseString{fmt.Sprintf("AniList user `%s` has been registered. New activity will be posted to <#%s>", name, channelId)}
}

func UserUnregistered(name string) []Response {
	return []Response{ResponseString{fmt.Sprintf("AniList user `%s` unregistered correctly", name)}}
}

func ProfileEmbed(user anilistapi.User) discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{
		Title:       user.Name,
		URL:         user.SiteUrl,
		Description: common.Truncate(common.OrPlaceholder(common.CleanDescription(user.About), "*No bio*"), 600),
		Color:       color,
	}
	if user.Avatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.Avatar}
	}
	if user.BannerImage != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: user.BannerImage}
	}

	anime := user.Statistics.Anime
	manga := user.Statistics.Manga
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Anime", Value: fmt.Sprintf("%d titles\n%s watched", anime.Count, common.FormatMinutes(anime.MinutesWatched)), Inline: true},
		{Name: "Manga", Value: fmt.Sprintf("%d titles\n%d chapters read", manga.Count, manga.ChaptersRead), Inline: true},
	}
	return embed
}

func StatsEmbed(user anilistapi.User, fetchedAt time.Time, now time.Time) discordgo.MessageEmbed {

	anime := user.Statistics.Anime
	manga := user.Statistics.Manga
	embed := discordgo.MessageEmbed{
		Title: fmt.Sprintf("Statistics of %s", user.Name),
		URL:   user.SiteUrl,
		Color: color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Updated %s", common.FormatRelative(fetchedAt, now)),
		},
	}
	if user.Avatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.Avatar}
	}

	// Anime
	animeLines := []string{
		fmt.Sprintf("Titles: **%d**", anime.Count),
		fmt.Sprintf("Episodes: **%d**", anime.EpisodesWatched),
		fmt.Sprintf("Time: **%s**", common.FormatMinutes(anime.MinutesWatched)),
		fmt.Sprintf("Mean score: **%s**", formatScore(anime.MeanScore)),
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Anime", Value: strings.Join(animeLines, "\n"), Inline: true})

	// Manga
	mangaLines := []string{
		fmt.Sprintf("Titles: **%d**", manga.Count),
		fmt.Sprintf("Chapters: **%d**", manga.ChaptersRead),
		fmt.Sprintf("Volumes: **%d**", manga.VolumesRead),
		fmt.Sprintf("Mean score: **%s**", formatScore(manga.MeanScore)),
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Manga", Value: strings.Join(mangaLines, "\n"), Inline: true})

	// Genres
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Favourite genres",
		Value: common.JoinOr(user.Statistics.TopGenres, ", ", "None yet"),
	})
	return embed
}

func formatScore(score float64) string {
	if score == 0 {
		return placeholder
	}
	return strconv.FormatFloat(score, 'f', 1, 64)
}

func MediaEmbed(media anilistapi.Media, now time.Time) discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{
		Title:       common.Truncate(media.Title.Preferred(), 256),
		URL:         media.SiteUrl,
		Description: common.Truncate(common.OrPlaceholder(common.CleanDescription(media.Description), "*No description*"), 500),
		Color:       mediaColor(media.CoverImage.Color),
	}
	if media.CoverImage.Large != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: media.CoverImage.Large}
	}
	if media.Title.Romaji != "" && media.Title.Romaji != embed.Title {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: media.Title.Romaji}
	}

	field := func(name string, value string) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: common.OrPlaceholder(value, placeholder), Inline: true})
	}
	field("Format", common.HumaniseEnum(media.Format))
	field("Status", common.HumaniseEnum(media.Status))
	if media.Type == anilistapi.MANGA {
		field("Chapters", optionalCount(media.Chapters))
		field("Volumes", optionalCount(media.Volumes))
	} else {
		field("Episodes", optionalCount(media.Episodes))
		if media.Duration > 0 {
			field("Duration", fmt.Sprintf("%d min", media.Duration))
		}
	}
	if media.AverageScore > 0 {
		field("Score", fmt.Sprintf("%d%%", media.AverageScore))
	}
	if media.Season != "" && media.SeasonYear > 0 {
		field("Season", fmt.Sprintf("%s %d", common.HumaniseEnum(media.Season), media.SeasonYear))
	}
	field("Dates", fmt.Sprintf("%s to %s",
		common.FormatFuzzyDate(media.StartDate.Year, media.StartDate.Month, media.StartDate.Day),
		common.FormatFuzzyDate(media.EndDate.Year, media.EndDate.Month, media.EndDate.Day)))
	if len(media.Studios) > 0 {
		field("Studios", strings.Join(media.Studios, ", "))
	}
	if media.NextAiring != nil {
		field("Next episode", fmt.Sprintf("Episode %d %s", media.NextAiring.Episode, common.FormatRelative(media.NextAiring.AiringAt, now)))
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Genres",
		Value: common.JoinOr(media.Genres, ", ", placeholder),
	})
	return embed
}

// One page per search result
func MediaPages(results []anilistapi.Media, now time.Time) []*discordgo.MessageEmbed {

	pages := make([]*discordgo.MessageEmbed, 0, len(results))
	for _, media := range results {
		embed := MediaEmbed(media, now)
		pages = append(pages, &embed)
	}
	return pages
}

func optionalCount(count int) string {
	if count <= 0 {
		return placeholder
	}
	return strconv.Itoa(count)
}

// Embed color from an AniList cover color like "#e4a15d"
func mediaColor(hex string) int {
	value, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil || len(hex) != 7 {
		return color
	}
	return int(value)
}

// "watched episode 5 of [Title](url)", or the text of a status
func activitySentence(activity anilistapi.Activity) string {

	if activity.Media == nil {
		return common.OrPlaceholder(common.CleanDescription(activity.Text), "*Empty status*")
	}
	title := fmt.Sprintf("[%s](%s)", activity.Media.Title.Preferred(), activity.Media.SiteUrl)
	status := common.OrPlaceholder(activity.Status, "updated")
	if activity.Progress != "" {
		return fmt.Sprintf("%s %s of %s", status, activity.Progress, title)
	}
	return fmt.Sprintf("%s %s", status, title)
}

// Feed post of an activity
func ActivityEmbed(activity anilistapi.Activity) discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    activity.UserName,
			URL:     userUrl(activity.UserName),
			IconURL: activity.Avatar,
		},
		URL:         activity.SiteUrl,
		Description: common.Truncate(activitySentence(activity), maxDescription),
		Color:       color,
		Timestamp:   activity.CreatedAt.UTC().Format(time.RFC3339),
	}
	if activity.Media != nil {
		embed.Color = mediaColor(activity.Media.CoverImage.Color)
		if activity.Media.CoverImage.Large != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: activity.Media.CoverImage.Large}
		}
	}
	return embed
}

func userUrl(name string) string {
	if name == "" {
		return ""
	}
	return "https://anilist.co/user/" + name
}

// Pages with the recent activity of a user, most recent first
func ActivityPages(user anilistapi.User, activities []anilistapi.Activity, now time.Time) []*discordgo.MessageEmbed {

	lines := make([]string, 0, len(activities))
	for i := len(activities) - 1; i >= 0; i-- {
		activity := activities[i]
		line := fmt.Sprintf("%s · %s", common.Truncate(activitySentence(activity), 300), common.FormatRelative(activity.CreatedAt, now))
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, "*No recent activity*")
	}

	pages := []*discordgo.MessageEmbed{}
	for start := 0; start < len(lines); start += linesPerPage {
		end := min(start+linesPerPage, len(lines))
		embed := &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("Recent activity of %s", user.Name),
			URL:         user.SiteUrl,
			Description: common.Truncate(strings.Join(lines[start:end], "\n"), maxDescription),
			Color:       color,
		}
		if user.Avatar != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.Avatar}
		}
		pages = append(pages, embed)
	}
	return pages
}

func NotInList(name string, media anilistapi.Media) []Response {
	return []Response{ResponseString{fmt.Sprintf("**%s** is not in the list of `%s`", media.Title.Preferred(), name)}}
}

func chapterOf(chapter int, total int) string {
	if total > 0 {
		return fmt.Sprintf("chapter %d/%d", chapter, total)
	}
	return fmt.Sprintf("chapter %d", chapter)
}

// Compare the current AniList progress with the previous checkpoint, if any
func ProgressMessage(entry anilistapi.MediaListEntry, previous *Checkpoint, now time.Time) []Response {

	title := entry.Media.Title.Preferred()
	current := chapterOf(entry.Progress, entry.Media.Chapters)
	if previous == nil {
		return []Response{ResponseString{fmt.Sprintf(
			"Checkpoint saved for **%s** at %s. Ask again later to see how much you read", title, current)}}
	}

	since := common.FormatRelative(previous.RecordedAt, now)
	read := entry.Progress - previous.Chapter
	switch {
	case read > 0:
		return []Response{ResponseString{fmt.Sprintf(
			"You read **%d** chapter%s of **%s** since %s (chapter %d → %s)",
			read, pluralSuffix(read), title, since, previous.Chapter, current)}}
	case read == 0:
		return []Response{ResponseString{fmt.Sprintf(
			"No new chapters of **%s** since %s, still at %s", title, since, current)}}
	default:
		return []Response{ResponseString{fmt.Sprintf(
			"Your progress in **%s** went back from chapter %d to %s", title, previous.Chapter, current)}}
	}
}

func pluralSuffix(amount int) string {
	if amount == 1 {
		return ""
	}
	return "s"
}

func TrendingEmbed(mediaType anilistapi.MediaType, media []anilistapi.Media) discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{
		Title: fmt.Sprintf("Trending %s on AniList", mediaType.Lower()),
		URL:   fmt.Sprintf("https://anilist.co/search/%s/trending", mediaType.Lower()),
		Color: color,
	}
	if len(media) == 0 {
		embed.Description = "*Nothing is trending right now*"
		return embed
	}
	if media[0].CoverImage.Large != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: media[0].CoverImage.Large}
	}

	lines := make([]string, 0, len(media))
	for i, m := range media {
		details := []string{common.HumaniseEnum(m.Format)}
		if m.AverageScore > 0 {
			details = append(details, fmt.Sprintf("%d%%", m.AverageScore))
		}
		lines = append(lines, fmt.Sprintf("**%d.** [%s](%s) (%s)", i+1, m.Title.Preferred(), m.SiteUrl, common.JoinOr(details, ", ", placeholder)))
	}
	embed.Description = common.Truncate(strings.Join(lines, "\n"), maxDescription)
	return embed
}

// A title completed by a member of a guild
type Finisher struct {
	DiscordId   string
	UserName    string
	Media       anilistapi.ActivityMedia
	CompletedAt time.Time
}

func FinishersEmbed(finishers []Finisher, since time.Time) discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{
		Title:       "Finished lately",
		Description: fmt.Sprintf("Titles completed since %s", since.UTC().Format("2 Jan 2006")),
		Color:       color,
	}

	// Group by member, keeping the order in which they finished
	order := []string{}
	titles := map[string][]string{}
	for _, finisher := range finishers {
		if _, ok := titles[finisher.UserName]; !ok {
			order = append(order, finisher.UserName)
		}
		line := fmt.Sprintf("- [%s](%s) (%s)", finisher.Media.Title.Preferred(), finisher.Media.SiteUrl, finisher.Media.Type.Lower())
		titles[finisher.UserName] = append(titles[finisher.UserName], line)
	}
	sort.SliceStable(order, func(i, j int) bool { return len(titles[order[i]]) > len(titles[order[j]]) })

	total := utf8.RuneCountInString(embed.Title) + utf8.RuneCountInString(embed.Description)
	for _, name := range order {
		value := common.Truncate(strings.Join(titles[name], "\n"), maxFieldValue)
		size := utf8.RuneCountInString(name) + utf8.RuneCountInString(value)
		if len(embed.Fields) == maxFields || total+size > maxEmbedTotal-moreReserve {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: value})
		total += size
	}
	if hidden := len(order) - len(embed.Fields); hidden > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("+%d more members", hidden)}
	}
	return embed
}

func NoFinishers() []Response {
	return []Response{ResponseString{"Nobody in this server finished anything during the last week"}}
}

func ExportFile(name string, mediaType anilistapi.MediaType, format anilistapi.ExportFormat, count int, data []byte) Response {
	return ResponseFile{
		content:     fmt.Sprintf("%s list of `%s` (%d entries)", strings.ToUpper(mediaType.Lower()[:1])+mediaType.Lower()[1:], name, count),
		name:        fmt.Sprintf("%s-%s.%s", strings.ToLower(name), mediaType.Lower(), format),
		contentType: format.ContentType(),
		data:        data,
	}
}

func EmptyExport(name string, mediaType anilistapi.MediaType) []Response {
	return []Response{ResponseString{fmt.Sprintf("The %s list of `%s` is empty or private", mediaType.Lower(), name)}}
}

func ChannelDoesNotExist(channelName string) []Response {

	return []Response{ResponseString{fmt.Sprintf("Channel `%s` does not exist in this server", channelName)}}
}

func ChannelChanged(channelId string) []Response {
	return []Response{ResponseString{fmt.Sprintf("From now on, I will be posting activity and digests to <#%s>", channelId)}}
}

func StatusMessage(members []string, channelId string) []Response {

	embed := discordgo.MessageEmbed{Title: "Configuration for this server", Color: color}

	// Members
	sort.Strings(members)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Members registered:",
		Value:  common.Truncate(common.JoinOr(members, "\n", "None"), maxFieldValue),
		Inline: false,
	})

	// Channel name
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Channel for the feed and digests:",
		Value:  fmt.Sprintf("<#%s>", channelId),
		Inline: false,
	})

	return []Response{ResponseEmbed{embed}}
}

const (
	slowDown         = "You are sending commands too fast, slow down a little"
	privateMessage   = "For the time being, I am ignoring private messages"
	paginatorExpired = "These pages expired, run the command again"
	notYourPages     = "Only the user who ran the command can flip these pages"
)
