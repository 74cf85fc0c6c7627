package bot

import (
	"anibot/internal/anilistapi"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listActivity(id anilistapi.ActivityId, user anilistapi.UserId, createdAt int64, status string, media anilistapi.MediaId) anilistapi.Activity {
	return anilistapi.Activity{
		Id:        id,
		Kind:      anilistapi.ACTIVITY_ANIME_LIST,
		UserId:    user,
		UserName:  "user",
		CreatedAt: time.Unix(createdAt, 0),
		Status:    status,
		Media:     &anilistapi.ActivityMedia{Id: media, Type: anilistapi.ANIME, Title: anilistapi.Title{Romaji: "Title"}},
	}
}

func TestRouteActivities(t *testing.T) {
	activities := []anilistapi.Activity{
		listActivity(4, 8, 160, "watched episode", 1),
		listActivity(1, 7, 90, "watched episode", 1),
		listActivity(2, 7, 120, "completed", 1),
		listActivity(3, 8, 140, "watched episode", 1),
		listActivity(5, 9, 200, "completed", 1),
	}
	checkpoints := map[anilistapi.UserId]time.Time{7: time.Unix(100, 0), 8: time.Unix(150, 0)}
	channels := map[anilistapi.UserId][]string{7: {"c1", "c2"}, 8: {"c1"}}

	deliveries, newest := RouteActivities(activities, checkpoints, channels)

	want := []struct {
		channel  string
		activity anilistapi.ActivityId
	}{{"c1", 2}, {"c2", 2}, {"c1", 4}}
	require.Len(t, deliveries, len(want))
	for i, w := range want {
		assert.Equal(t, w.channel, deliveries[i].ChannelId, "delivery %d", i)
		assert.Equal(t, w.activity, deliveries[i].Activity.Id, "delivery %d", i)
	}
	assert.Equal(t, int64(120), newest[7].Unix())
	assert.Equal(t, int64(160), newest[8].Unix())
	assert.NotContains(t, newest, anilistapi.UserId(9), "activity of an unknown user routed")
}

func TestRouteActivitiesWithoutChannelStillAdvances(t *testing.T) {
	activities := []anilistapi.Activity{listActivity(1, 7, 120, "completed", 1)}
	checkpoints := map[anilistapi.UserId]time.Time{7: time.Unix(100, 0)}

	deliveries, newest := RouteActivities(activities, checkpoints, nil)
	assert.Empty(t, deliveries)
	assert.Equal(t, int64(120), newest[7].Unix())
}

func TestCollectFeedAdvancesCheckpoints(t *testing.T) {
	var since any
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"activities(": func(variables map[string]any) (int, string) {
			since = variables["since"]
			return http.StatusOK, `{"data":{"Page":{"pageInfo":{"hasNextPage":false},"activities":[
				{"id":2,"type":"ANIME_LIST","status":"watched episode","progress":"3","createdAt":120,"user":{"id":7,"name":"Yuki"},"media":{"id":1,"type":"ANIME","title":{"romaji":"Frieren"}}},
				{"id":3,"type":"TEXT","text":"hello","createdAt":140,"user":{"id":8,"name":"Mio"}},
				{"id":4,"type":"TEXT","text":"again","createdAt":160,"user":{"id":8,"name":"Mio"}}]}}}`
		},
	}}
	bot := newTestBot(t, fake)
	ctx := context.Background()
	addMember(t, bot, "g1", "c1", "u1", 7, time.Unix(100, 0))
	addMember(t, bot, "g2", "c2", "u1", 7, time.Unix(100, 0))
	addMember(t, bot, "g1", "c1", "u2", 8, time.Unix(150, 0))

	deliveries, err := bot.collectFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(100), since, "activities since the oldest checkpoint")
	require.Len(t, deliveries, 3)
	assert.Equal(t, "c1", deliveries[0].ChannelId)
	assert.Equal(t, "c2", deliveries[1].ChannelId)
	assert.EqualValues(t, 4, deliveries[2].Activity.Id)

	assert.Equal(t, int64(159), bot.followers[7].lastActivity.Unix(), "moved up to the high-water mark")
	assert.Equal(t, int64(160), bot.followers[8].lastActivity.Unix())
	followers, _ := bot.database.GetFollowers(ctx)
	assert.Equal(t, int64(159), followers[7].lastActivity.Unix())
	assert.Equal(t, int64(160), followers[8].lastActivity.Unix())

	// Nothing is posted twice
	deliveries, err = bot.collectFeed(ctx)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestCollectFeedCatchesUpWithQuietFollower(t *testing.T) {
	// User 8 posted 600 activities since the last poll, user 7 none
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"activities(": func(variables map[string]any) (int, string) {
			since := int(variables["since"].(float64))
			page := int(variables["page"].(float64))
			perPage := int(variables["perPage"].(float64))
			pending := []string{}
			for createdAt := max(since+1, 101); createdAt <= 700; createdAt++ {
				pending = append(pending, fmt.Sprintf(`{"id":%d,"type":"TEXT","text":"post","createdAt":%d,"user":{"id":8,"name":"Mio"}}`, createdAt-100, createdAt))
			}
			start := min((page-1)*perPage, len(pending))
			end := min(start+perPage, len(pending))
			return http.StatusOK, fmt.Sprintf(`{"data":{"Page":{"pageInfo":{"hasNextPage":%t},"activities":[%s]}}}`,
				end < len(pending), strings.Join(pending[start:end], ","))
		},
	}}
	bot := newTestBot(t, fake)
	ctx := context.Background()
	addMember(t, bot, "g1", "c1", "u1", 7, time.Unix(100, 0))
	addMember(t, bot, "g1", "c1", "u2", 8, time.Unix(100, 0))

	posted := map[anilistapi.ActivityId]int{}
	for poll := 0; poll < 4; poll++ {
		deliveries, err := bot.collectFeed(ctx)
		require.NoError(t, err)
		for _, delivery := range deliveries {
			posted[delivery.Activity.Id]++
		}
	}

	assert.Len(t, posted, 600, "every activity is posted")
	for id, times := range posted {
		assert.Equal(t, 1, times, "activity %d posted more than once", id)
	}
	assert.Equal(t, int64(700), bot.followers[8].lastActivity.Unix())
	assert.Equal(t, int64(699), bot.followers[7].lastActivity.Unix())
}

func TestFeedHighWater(t *testing.T) {
	assert.True(t, FeedHighWater(nil).IsZero())
	activities := []anilistapi.Activity{listActivity(1, 7, 300, "completed", 1), listActivity(2, 8, 200, "completed", 1)}
	assert.Equal(t, int64(299), FeedHighWater(activities).Unix())
}

func TestCollectFeedWithoutFollowers(t *testing.T) {
	fake := &fakeAnilist{}
	bot := newTestBot(t, fake)

	deliveries, err := bot.collectFeed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deliveries)
	assert.Zero(t, fake.count(""), "AniList requested without followers")
}
