package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// An activity to post to a channel
type Delivery struct {
	ChannelId string
	Activity  anilistapi.Activity
}

// Decide where every new activity goes, oldest first. An activity is new when
// it is more recent than the checkpoint of its user. Also returns, per user,
// the creation time of the newest activity routed
func RouteActivities(activities []anilistapi.Activity, checkpoints map[anilistapi.UserId]time.Time, channels map[anilistapi.UserId][]string) ([]Delivery, map[anilistapi.UserId]time.Time) {

	sorted := slices.Clone(activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].Id < sorted[j].Id
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	deliveries := []Delivery{}
	newest := map[anilistapi.UserId]time.Time{}
	seen := map[anilistapi.ActivityId]bool{}
	for _, activity := range sorted {
		checkpoint, ok := checkpoints[activity.UserId]
		if !ok || !activity.CreatedAt.After(checkpoint) || seen[activity.Id] {
			continue
		}
		seen[activity.Id] = true
		for _, channelId := range channels[activity.UserId] {
			deliveries = append(deliveries, Delivery{ChannelId: channelId, Activity: activity})
		}
		if activity.CreatedAt.After(newest[activity.UserId]) {
			newest[activity.UserId] = activity.CreatedAt
		}
	}
	return deliveries, newest
}

// Point up to which a poll read every activity. Activities come in ascending
// order, so only the last second may still hold unseen ones
func FeedHighWater(activities []anilistapi.Activity) time.Time {

	var highWater time.Time
	for _, activity := range activities {
		if activity.CreatedAt.After(highWater) {
			highWater = activity.CreatedAt
		}
	}
	if highWater.IsZero() {
		return highWater
	}
	return highWater.Add(-time.Second)
}

func (bot *Bot) pollFeed(discord *discordgo.Session) {

	ctx, cancel := bot.context()
	defer cancel()

	deliveries, err := bot.collectFeed(ctx)
	if errors.Is(err, common.ErrRateLimited) {
		log.Debug().Msg("Feed skipped this time, AniList budget in use")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not poll the activity feed")
		return
	}
	if len(deliveries) > 0 {
		log.Info().Msg(fmt.Sprintf("Posting %d feed messages", len(deliveries)))
	}
	for _, delivery := range deliveries {
		bot.sendResponses(discord, delivery.ChannelId, []Response{ResponseEmbed{ActivityEmbed(delivery.Activity)}})
	}
}

// Fetch the new activity of every follower and advance their checkpoints
func (bot *Bot) collectFeed(ctx context.Context) ([]Delivery, error) {

	// Take a snapshot of who goes where
	bot.mu.Lock()
	checkpoints := make(map[anilistapi.UserId]time.Time, len(bot.followers))
	ids := make([]anilistapi.UserId, 0, len(bot.followers))
	var since time.Time
	for id, follower := range bot.followers {
		checkpoints[id] = follower.lastActivity
		ids = append(ids, id)
		if since.IsZero() || follower.lastActivity.Before(since) {
			since = follower.lastActivity
		}
	}
	channels := map[anilistapi.UserId][]string{}
	for _, guild := range bot.guilds {
		for _, id := range guild.members {
			if !slices.Contains(channels[id], guild.channelId) {
				channels[id] = append(channels[id], guild.channelId)
			}
		}
	}
	bot.mu.Unlock()
	for id := range channels {
		slices.Sort(channels[id])
	}

	if len(ids) == 0 {
		return nil, nil
	}
	slices.Sort(ids)

	// The feed never gets in the way of commands
	activities, complete, err := bot.anilistapi.GetActivities(ctx, anilistapi.ActivityQuery{UserIds: ids, Since: since}, false)
	if err != nil {
		return nil, err
	}
	if !complete {
		log.Info().Int("activities", len(activities)).Msg("Feed is behind, the rest comes in the next polls")
	}
	deliveries, newest := RouteActivities(activities, checkpoints, channels)

	// Everything up to the high-water mark has been read, so quiet followers
	// move along with the busy ones
	highWater := FeedHighWater(activities)
	for _, id := range ids {
		if highWater.After(newest[id]) {
			newest[id] = highWater
		}
	}

	// Advance the checkpoints
	bot.mu.Lock()
	for id, createdAt := range newest {
		if follower, ok := bot.followers[id]; ok && createdAt.After(follower.lastActivity) {
			follower.lastActivity = createdAt
		} else {
			delete(newest, id)
		}
	}
	bot.mu.Unlock()
	for id, createdAt := range newest {
		if err := bot.database.SetFeedCheckpoint(ctx, id, createdAt); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not store feed checkpoint of %d", id))
		}
	}
	return deliveries, nil
}
