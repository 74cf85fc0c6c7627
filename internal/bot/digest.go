package bot

import (
	"anibot/internal/anilistapi"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	DIGEST_TRENDING  = "trending"
	DIGEST_FINISHERS = "finishers"
)

// Default look-back of the finishers digest
const finishersWindow = 7 * 24 * time.Hour

// The titles completed by the members, first completion of each title and user only
func FindFinishers(activities []anilistapi.Activity, members map[string]anilistapi.UserId) []Finisher {

	// Several members may share an AniList user, mention the first one
	discordIds := map[anilistapi.UserId]string{}
	for discordId, id := range members {
		if current, ok := discordIds[id]; !ok || discordId < current {
			discordIds[id] = discordId
		}
	}

	type key struct {
		user  anilistapi.UserId
		media anilistapi.MediaId
	}
	seen := map[key]bool{}
	finishers := []Finisher{}
	for _, activity := range activities {
		if !activity.IsCompletion() {
			continue
		}
		discordId, ok := discordIds[activity.UserId]
		if !ok {
			continue
		}
		k := key{activity.UserId, activity.Media.Id}
		if seen[k] {
			continue
		}
		seen[k] = true
		finishers = append(finishers, Finisher{
			DiscordId:   discordId,
			UserName:    activity.UserName,
			Media:       *activity.Media,
			CompletedAt: activity.CreatedAt,
		})
	}
	sort.SliceStable(finishers, func(i, j int) bool { return finishers[i].CompletedAt.Before(finishers[j].CompletedAt) })
	return finishers
}

func (bot *Bot) trendingDigest(discord *discordgo.Session) {

	ctx, cancel := bot.context()
	defer cancel()

	channels := bot.guildChannels()
	if len(channels) == 0 {
		return
	}
	responses := bot.collectTrending(ctx)
	if len(responses) == 0 {
		return
	}
	log.Info().Msg(fmt.Sprintf("Posting trending digest to %d channels", len(channels)))
	for _, channelId := range channels {
		bot.sendResponses(discord, channelId, responses)
	}
	if err := bot.database.SetDigestRun(ctx, DIGEST_TRENDING, bot.now()); err != nil {
		log.Error().Err(err).Msg("Could not store trending digest run")
	}
}

func (bot *Bot) collectTrending(ctx context.Context) []Response {
	responses := []Response{}
	for _, mediaType := range []anilistapi.MediaType{anilistapi.ANIME, anilistapi.MANGA} {
		media, err := bot.anilistapi.GetTrending(ctx, mediaType, bot.trendingCount, true)
		if err != nil {
			log.Warn().Err(err).Msg(fmt.Sprintf("Could not get trending %s for the digest", mediaType.Lower()))
			continue
		}
		responses = append(responses, ResponseEmbed{TrendingEmbed(mediaType, media)})
	}
	return responses
}

func (bot *Bot) finishersDigest(discord *discordgo.Session) {

	ctx, cancel := bot.context()
	defer cancel()

	now := bot.now()
	digests, since, err := bot.collectFinishers(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Could not prepare finishers digest")
		return
	}
	for channelId, finishers := range digests {
		embed := FinishersEmbed(finishers, since)
		bot.sendResponses(discord, channelId, []Response{ResponseEmbed{embed}})
	}
	log.Info().Msg(fmt.Sprintf("Posted finishers digest to %d channels", len(digests)))
	if err := bot.database.SetDigestRun(ctx, DIGEST_FINISHERS, now); err != nil {
		log.Error().Err(err).Msg("Could not store finishers digest run")
	}
}

// Finishers per guild channel since the last run. Guilds without finishers are left out
func (bot *Bot) collectFinishers(ctx context.Context, now time.Time) (map[string][]Finisher, time.Time, error) {

	since := now.Add(-finishersWindow)
	last, ok, err := bot.database.GetDigestRun(ctx, DIGEST_FINISHERS)
	if err != nil {
		return nil, since, err
	}
	if ok {
		since = last
	}

	// Snapshot the members of every guild
	bot.mu.Lock()
	channelMembers := map[string]map[string]anilistapi.UserId{}
	allMembers := map[string]anilistapi.UserId{}
	for _, guild := range bot.guilds {
		if len(guild.members) == 0 {
			continue
		}
		channelMembers[guild.channelId] = copyMembers(guild.members)
		for discordId, id := range guild.members {
			allMembers[guild.id+"/"+discordId] = id
		}
	}
	bot.mu.Unlock()

	digests := map[string][]Finisher{}
	if len(allMembers) == 0 {
		return digests, since, nil
	}
	activities, err := bot.finisherActivities(ctx, memberIds(allMembers), since)
	if err != nil {
		return nil, since, err
	}
	for channelId, members := range channelMembers {
		if finishers := FindFinishers(activities, members); len(finishers) > 0 {
			digests[channelId] = finishers
		}
	}
	return digests, since, nil
}

// List updates of the members since the given time, newest first, so a
// capped read drops the oldest updates
func (bot *Bot) finisherActivities(ctx context.Context, ids []anilistapi.UserId, since time.Time) ([]anilistapi.Activity, error) {

	query := anilistapi.ActivityQuery{UserIds: ids, Since: since, ListOnly: true, Newest: true}
	activities, complete, err := bot.anilistapi.GetActivities(ctx, query, true)
	if err != nil {
		return nil, err
	}
	if !complete {
		log.Warn().Int("activities", len(activities)).Msg("Finishers only cover the most recent list updates")
	}
	return activities, nil
}
