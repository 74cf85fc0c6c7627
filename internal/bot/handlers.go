package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Most recent activities shown by the activity command
const maxActivities = 50

// How far back the activity command looks
const activityWindow = 30 * 24 * time.Hour

func (bot *Bot) register(ctx context.Context, request Request, name string) []Response {

	// Only AniList names can be registered
	if _, ok := MentionedId(name); ok {
		return InputNotValid(fmt.Sprintf(errorMessages[PARSEID_NOT_A_USER_NAME], name))
	}

	// Get the user
	user, err := bot.anilistapi.GetUser(ctx, name)
	if err != nil {
		log.Info().Err(err).Msg(fmt.Sprintf("User %s not found", name))
		return userError(err, name)
	}

	// Check if the member is already registered as this user
	previous, registered := bot.registration(request.guildId, request.userId)
	if registered && previous == user.Id {
		log.Info().Msg(fmt.Sprintf("Member %s is already registered as %s in guild %s", request.userId, user.Name, request.guildId))
		return UserAlreadyRegistered(user.Name)
	}

	// Now it's safe to register the user
	log.Info().Msg(fmt.Sprintf("Registering user %s in guild %s", user.Name, request.guildId))
	if err := bot.database.AddRegistration(ctx, request.guildId, request.userId, user.Id); err != nil {
		log.Error().Err(err).Msg("Could not store registration")
		return []Response{ResponseString{"Could not store the registration, try again later"}}
	}
	now := bot.now()
	bot.mu.Lock()
	guild := bot.guilds[request.guildId]
	guild.members[request.userId] = user.Id
	channelId := guild.channelId
	// The feed starts now, older activity is never posted
	_, following := bot.followers[user.Id]
	if !following {
		bot.followers[user.Id] = &Follower{id: user.Id, lastActivity: now}
	}
	bot.mu.Unlock()
	if !following {
		if err := bot.database.SetFeedCheckpoint(ctx, user.Id, now); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not store feed checkpoint of %s", user.Name))
		}
	}

	// A member registered as someone else switches user
	if registered {
		bot.forgetIfUntracked(ctx, previous)
	}

	log.Info().Msg(fmt.Sprintf("User %s has been registered in guild %s", user.Name, request.guildId))
	return []Response{
		UserRegistered(user.Name, channelId),
		ResponseEmbed{ProfileEmbed(user)},
	}
}

func (bot *Bot) unregister(ctx context.Context, request Request) []Response {

	// Check if the member was registered in the guild
	id, ok := bot.registration(request.guildId, request.userId)
	if !ok {
		log.Info().Msg(fmt.Sprintf("Member %s was not registered in guild %s", request.userId, request.guildId))
		return NotRegistered(bot.prefix)
	}

	log.Info().Msg(fmt.Sprintf("Unregistering member %s from guild %s", request.userId, request.guildId))
	if _, err := bot.database.RemoveRegistration(ctx, request.guildId, request.userId); err != nil {
		log.Error().Err(err).Msg("Could not remove registration")
		return []Response{ResponseString{"Could not remove the registration, try again later"}}
	}
	bot.mu.Lock()
	delete(bot.guilds[request.guildId].members, request.userId)
	bot.mu.Unlock()

	// If the user does not belong to ANY guild, stop following it
	bot.forgetIfUntracked(ctx, id)

	name, ok := bot.anilistapi.GetUserName(id)
	if !ok {
		name = fmt.Sprintf("#%d", id)
	}
	return UserUnregistered(name)
}

func (bot *Bot) profile(ctx context.Context, request Request, name string) []Response {

	user, failure := bot.resolveUser(ctx, request, name)
	if failure != nil {
		return failure
	}
	return []Response{ResponseEmbed{ProfileEmbed(user)}}
}

func (bot *Bot) search(ctx context.Context, request Request, mediaType anilistapi.MediaType, query string) []Response {

	results, err := bot.anilistapi.SearchMedia(ctx, mediaType, query)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not search %s %s", mediaType.Lower(), query))
		return NoResponseAnilist(fmt.Sprintf("`%s`", query))
	}
	if len(results) == 0 {
		return MediaNotFound(mediaType, query)
	}

	// Best match first, the rest in AniList order
	best := anilistapi.BestMatch(query, results)
	ordered := append([]anilistapi.Media{results[best]}, append(results[:best:best], results[best+1:]...)...)
	return []Response{bot.paginate(request.userId, MediaPages(ordered, bot.now()))}
}

func (bot *Bot) stats(ctx context.Context, request Request, name string) []Response {

	id, failure := bot.resolveUserId(ctx, request, name)
	if failure != nil {
		return failure
	}

	// Check cache
	now := bot.now()
	user, fetchedAt, cached, err := bot.database.GetStats(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not read cached statistics of %d", id))
	}
	if cached && now.Sub(fetchedAt) < bot.statsTtl {
		return []Response{ResponseEmbed{StatsEmbed(user, fetchedAt, now)}}
	}

	// Refresh, falling back to stale statistics
	fresh, err := bot.anilistapi.GetUserById(ctx, id, true)
	if err != nil {
		if cached {
			log.Warn().Err(err).Msg(fmt.Sprintf("Serving stale statistics of %d", id))
			return []Response{ResponseEmbed{StatsEmbed(user, fetchedAt, now)}}
		}
		return userError(err, displayName(name, id))
	}
	if err := bot.database.SetStats(ctx, fresh, now); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not cache statistics of %s", fresh.Name))
	}
	return []Response{ResponseEmbed{StatsEmbed(fresh, now, now)}}
}

func (bot *Bot) progress(ctx context.Context, request Request, query string) []Response {

	id, ok := bot.registration(request.guildId, request.userId)
	if !ok {
		return NotRegistered(bot.prefix)
	}

	// Find the manga
	media, err := bot.anilistapi.FindMedia(ctx, anilistapi.MANGA, query)
	if errors.Is(err, common.ErrNotFound) {
		return MediaNotFound(anilistapi.MANGA, query)
	}
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not search manga %s", query))
		return NoResponseAnilist(fmt.Sprintf("`%s`", query))
	}

	// Current progress in AniList
	entry, err := bot.anilistapi.GetMediaListEntry(ctx, id, media.Id)
	if errors.Is(err, common.ErrNotFound) {
		name, _ := bot.anilistapi.GetUserName(id)
		return NotInList(displayName(name, id), media)
	}
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not get entry of manga %d for %d", media.Id, id))
		return NoResponseAnilist(fmt.Sprintf("**%s**", media.Title.Preferred()))
	}
	if entry.Media.Id == 0 {
		entry.Media = anilistapi.MediaSummary{Id: media.Id, Type: media.Type, Title: media.Title, Chapters: media.Chapters, SiteUrl: media.SiteUrl}
	}

	// Compare with the last checkpoint
	now := bot.now()
	var previous *Checkpoint
	checkpoint, found, err := bot.database.GetCheckpoint(ctx, request.userId, media.Id)
	if err != nil {
		log.Error().Err(err).Msg("Could not read checkpoint")
	} else if found {
		previous = &checkpoint
	}
	responses := ProgressMessage(entry, previous, now)

	next := Checkpoint{DiscordId: request.userId, MediaId: media.Id, Chapter: entry.Progress, Volume: entry.ProgressVolumes, RecordedAt: now}
	if err := bot.database.SetCheckpoint(ctx, next); err != nil {
		log.Error().Err(err).Msg("Could not store checkpoint")
	}
	return responses
}

func (bot *Bot) activity(ctx context.Context, request Request, name string) []Response {

	user, failure := bot.resolveUser(ctx, request, name)
	if failure != nil {
		return failure
	}

	now := bot.now()
	query := anilistapi.ActivityQuery{UserIds: []anilistapi.UserId{user.Id}, Since: now.Add(-activityWindow), Newest: true, Limit: maxActivities}
	activities, _, err := bot.anilistapi.GetActivities(ctx, query, true)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not get activity of %s", user.Name))
		return NoResponseAnilist(fmt.Sprintf("user `%s`", user.Name))
	}
	return []Response{bot.paginate(request.userId, ActivityPages(user, activities, now))}
}

func (bot *Bot) export(ctx context.Context, request Request, name string, mediaType anilistapi.MediaType, format anilistapi.ExportFormat) []Response {

	user, failure := bot.resolveUser(ctx, request, name)
	if failure != nil {
		return failure
	}

	entries, err := bot.anilistapi.GetMediaListCollection(ctx, user.Id, mediaType)
	if errors.Is(err, common.ErrNotFound) || (err == nil && len(entries) == 0) {
		return EmptyExport(user.Name, mediaType)
	}
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not get %s list of %s", mediaType.Lower(), user.Name))
		return NoResponseAnilist(fmt.Sprintf("user `%s`", user.Name))
	}

	anilistapi.SortEntries(entries)
	var buffer bytes.Buffer
	if err := anilistapi.WriteExport(&buffer, format, entries); err != nil {
		log.Error().Err(err).Msg("Could not write export")
		return []Response{ResponseString{"Could not write the export file"}}
	}
	log.Info().Msg(fmt.Sprintf("Exported %d %s entries of %s as %s", len(entries), mediaType.Lower(), user.Name, format))
	return []Response{ExportFile(user.Name, mediaType, format, len(entries), buffer.Bytes())}
}

func (bot *Bot) trending(ctx context.Context, mediaType anilistapi.MediaType) []Response {

	media, err := bot.anilistapi.GetTrending(ctx, mediaType, bot.trendingCount, true)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not get trending %s", mediaType.Lower()))
		return NoResponseAnilist(fmt.Sprintf("trending %s", mediaType.Lower()))
	}
	return []Response{ResponseEmbed{TrendingEmbed(mediaType, media)}}
}

func (bot *Bot) finishers(ctx context.Context, request Request) []Response {

	since := bot.now().Add(-finishersWindow)
	bot.mu.Lock()
	members := copyMembers(bot.guilds[request.guildId].members)
	bot.mu.Unlock()
	if len(members) == 0 {
		return NoFinishers()
	}

	activities, err := bot.finisherActivities(ctx, memberIds(members), since)
	if err != nil {
		log.Warn().Err(err).Msg("Could not get activity for finishers")
		return NoResponseAnilist("the members of this server")
	}
	finishers := FindFinishers(activities, members)
	if len(finishers) == 0 {
		return NoFinishers()
	}
	return []Response{ResponseEmbed{FinishersEmbed(finishers, since)}}
}

func (bot *Bot) channel(ctx context.Context, discord *discordgo.Session, request Request, channelName string, channelId string) []Response {

	// Try to find the id from the channel name
	if channelId == "" {
		id, err := bot.getChannelId(discord, request.guildId, channelName)
		if err != nil {
			log.Info().Err(err).Msg(fmt.Sprintf("Could not extract channel id from channel name %s", channelName))
			return ChannelDoesNotExist(channelName)
		}
		channelId = id
	}

	// We have a new channel to send messages to
	log.Info().Msg(fmt.Sprintf("Changing channel used by guild %s to %s", request.guildId, channelId))
	if err := bot.database.SetChannel(ctx, request.guildId, channelId); err != nil {
		log.Error().Err(err).Msg("Could not store channel")
		return []Response{ResponseString{"Could not change the channel, try again later"}}
	}
	bot.mu.Lock()
	bot.guilds[request.guildId].channelId = channelId
	bot.mu.Unlock()
	return ChannelChanged(channelId)
}

func (bot *Bot) status(request Request) []Response {

	bot.mu.Lock()
	guild := bot.guilds[request.guildId]
	members := copyMembers(guild.members)
	channelId := guild.channelId
	bot.mu.Unlock()

	// Create list of member names in this guild
	lines := make([]string, 0, len(members))
	for discordId, id := range members {
		name, ok := bot.anilistapi.GetUserName(id)
		if !ok {
			name = fmt.Sprintf("#%d", id)
		}
		lines = append(lines, fmt.Sprintf("`%s` (<@%s>)", name, discordId))
	}
	return StatusMessage(lines, channelId)
}

// Pages with more than one embed need buttons to flip them
func (bot *Bot) paginate(owner string, pages []*discordgo.MessageEmbed) Response {
	if len(pages) == 1 {
		return ResponseEmbed{*pages[0]}
	}
	paginator := NewPaginator(owner, pages)
	bot.paginators.Set(paginator.Id(), paginator)
	log.Debug().Str("paginator", paginator.Id()).Int("pages", paginator.Len()).Msg("Paginated response")
	return ResponsePages{paginator}
}

func (bot *Bot) registration(guildId string, discordId string) (anilistapi.UserId, bool) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	guild, ok := bot.guilds[guildId]
	if !ok {
		return 0, false
	}
	id, ok := guild.members[discordId]
	return id, ok
}

// Stop following a user no guild tracks anymore
func (bot *Bot) forgetIfUntracked(ctx context.Context, id anilistapi.UserId) {

	bot.mu.Lock()
	for _, guild := range bot.guilds {
		for _, member := range guild.members {
			if member == id {
				bot.mu.Unlock()
				return
			}
		}
	}
	delete(bot.followers, id)
	bot.mu.Unlock()

	log.Info().Msg(fmt.Sprintf("User %d removed completely", id))
	if err := bot.database.RemoveFollower(ctx, id); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not remove feed checkpoint of %d", id))
	}
}

// The AniList id behind a name, a mention or, when empty, the caller
func (bot *Bot) resolveUserId(ctx context.Context, request Request, name string) (anilistapi.UserId, []Response) {

	if name == "" {
		id, ok := bot.registration(request.guildId, request.userId)
		if !ok {
			return 0, NotRegistered(bot.prefix)
		}
		return id, nil
	}
	if discordId, ok := MentionedId(name); ok {
		id, ok := bot.registration(request.guildId, discordId)
		if !ok {
			return 0, MemberNotRegistered(discordId)
		}
		return id, nil
	}
	user, err := bot.anilistapi.GetUser(ctx, name)
	if err != nil {
		log.Info().Err(err).Msg(fmt.Sprintf("User %s not found", name))
		return 0, userError(err, name)
	}
	return user.Id, nil
}

func (bot *Bot) resolveUser(ctx context.Context, request Request, name string) (anilistapi.User, []Response) {

	id, failure := bot.resolveUserId(ctx, request, name)
	if failure != nil {
		return anilistapi.User{}, failure
	}
	user, err := bot.anilistapi.GetUserById(ctx, id, true)
	if err != nil {
		log.Info().Err(err).Msg(fmt.Sprintf("User %d not found", id))
		return anilistapi.User{}, userError(err, displayName(name, id))
	}
	return user, nil
}

func userError(err error, name string) []Response {
	if errors.Is(err, common.ErrNotFound) {
		return UserNotFound(name)
	}
	return NoResponseAnilist(fmt.Sprintf("user `%s`", name))
}

func displayName(name string, id anilistapi.UserId) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func copyMembers(members map[string]anilistapi.UserId) map[string]anilistapi.UserId {
	copied := make(map[string]anilistapi.UserId, len(members))
	for discordId, id := range members {
		copied[discordId] = id
	}
	return copied
}

// Distinct AniList ids of the members, sorted
func memberIds(members map[string]anilistapi.UserId) []anilistapi.UserId {
	seen := map[anilistapi.UserId]bool{}
	ids := []anilistapi.UserId{}
	for _, id := range members {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (bot *Bot) getChannelId(discord *discordgo.Session, guildId string, channelName string) (string, error) {

	channels, err := discord.GuildChannels(guildId)
	if err != nil {
		return "", fmt.Errorf("could not extract list of channels of guild id %s: %w", guildId, err)
	}
	for _, ch := range channels {
		if ch.Name == channelName && ch.Type == discordgo.ChannelTypeGuildText {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("no channel id found for channel name %s", channelName)
}
