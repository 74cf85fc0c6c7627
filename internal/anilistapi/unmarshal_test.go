package anilistapi

import (
	"anibot/internal/common"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEnvelopeErrors(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte(`{"data":{"User":null},"errors":[{"message":"Not Found.","status":404}]}`))
	var graphqlErr *GraphqlError
	require.ErrorAs(t, err, &graphqlErr)
	assert.Equal(t, "Not Found.", graphqlErr.Message)
	assert.ErrorIs(t, err, common.ErrNotFound, "a 404 GraphQL error should be ErrNotFound")

	_, err = UnmarshalEnvelope([]byte(`{"data":null}`))
	assert.Error(t, err, "null data should be an error")
	_, err = UnmarshalEnvelope([]byte(`not json`))
	assert.Error(t, err, "invalid json should be an error")
}

func TestUnmarshalUser(t *testing.T) {
	data := []byte(`{"data":{"User":{
		"id": 5,
		"name": "Josh",
		"siteUrl": "https://anilist.co/user/Josh",
		"avatar": {"large": "https://img/avatar.png"},
		"statistics": {
			"anime": {"count": 120, "meanScore": 74.5, "minutesWatched": 43200, "episodesWatched": 1800,
				"genres": [{"genre": "Action"}, {"genre": "Drama"}]},
			"manga": {"count": 30, "meanScore": 80, "chaptersRead": 2500, "volumesRead": 0}
		}
	}}}`)

	user, err := UnmarshalUser(data)
	require.NoError(t, err)
	assert.EqualValues(t, 5, user.Id)
	assert.Equal(t, "Josh", user.Name)
	assert.Equal(t, "https://img/avatar.png", user.Avatar)
	assert.EqualValues(t, 43200, user.Statistics.Anime.MinutesWatched)
	assert.EqualValues(t, 2500, user.Statistics.Manga.ChaptersRead)
	assert.Equal(t, []string{"Action", "Drama"}, user.Statistics.TopGenres)
}

func TestUnmarshalUserMissing(t *testing.T) {
	_, err := UnmarshalUser([]byte(`{"data":{"User":null}}`))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUnmarshalMediaPage(t *testing.T) {
	data := []byte(`{"data":{"Page":{"media":[
		{"id": 1, "type": "ANIME", "title": {"romaji": "Shingeki no Kyojin", "english": "Attack on Titan"},
		 "episodes": 25, "studios": {"nodes": [{"name": "Wit Studio"}]},
		 "nextAiringEpisode": {"episode": 3, "airingAt": 1700000000}},
		{"id": 2, "type": "ANIME", "title": {"romaji": "Only Romaji"}}
	]}}}`)

	media, err := UnmarshalMediaPage(data)
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "Attack on Titan", media[0].Title.Preferred())
	assert.Equal(t, "Only Romaji", media[1].Title.Preferred())
	assert.Equal(t, []string{"Wit Studio"}, media[0].Studios)
	require.NotNil(t, media[0].NextAiring)
	assert.True(t, media[0].NextAiring.AiringAt.Equal(time.Unix(1700000000, 0)), "next airing = %v", media[0].NextAiring.AiringAt)
	assert.Nil(t, media[1].NextAiring, "media without airing schedule should have no next airing")
}

func TestUnmarshalActivityPage(t *testing.T) {
	data := []byte(`{"data":{"Page":{"pageInfo":{"hasNextPage":true},"activities":[
		{"__typename": "ListActivity", "id": 10, "type": "ANIME_LIST", "status": "watched episode", "progress": "3 - 5",
		 "createdAt": 1700000000, "siteUrl": "https://anilist.co/activity/10",
		 "user": {"id": 7, "name": "Mia", "avatar": {"large": "a.png"}},
		 "media": {"id": 99, "type": "ANIME", "title": {"romaji": "Frieren"}, "siteUrl": "https://anilist.co/anime/99"}},
		{"__typename": "TextActivity", "id": 11, "type": "TEXT", "text": "hello", "createdAt": 1700000100,
		 "user": {"id": 7, "name": "Mia", "avatar": {"large": "a.png"}}},
		{"__typename": "MessageActivity"}
	]}}}`)

	activities, hasNextPage, err := UnmarshalActivityPage(data)
	require.NoError(t, err)
	assert.True(t, hasNextPage)
	require.Len(t, activities, 2, "message activities are skipped")

	list := activities[0]
	assert.Equal(t, ACTIVITY_ANIME_LIST, list.Kind)
	require.NotNil(t, list.Media)
	assert.EqualValues(t, 99, list.Media.Id)
	assert.Equal(t, "3 - 5", list.Progress)
	assert.False(t, list.IsCompletion(), "watching an episode is not a completion")

	text := activities[1]
	assert.Equal(t, ACTIVITY_TEXT, text.Kind)
	assert.Equal(t, "hello", text.Text)
	assert.Nil(t, text.Media)
}

func TestUnmarshalMediaListCollection(t *testing.T) {
	data := []byte(`{"data":{"MediaListCollection":{"lists":[
		{"name": "Completed", "isCustomList": false, "entries": [
			{"id": 1, "status": "COMPLETED", "score": 90, "progress": 12, "updatedAt": 1700000000,
			 "media": {"id": 100, "type": "ANIME", "title": {"romaji": "A"}, "episodes": 12}}
		]},
		{"name": "Favourites", "isCustomList": true, "entries": [
			{"id": 1, "status": "COMPLETED", "media": {"id": 100}}
		]},
		{"name": "Watching", "isCustomList": false, "entries": [
			{"id": 2, "status": "CURRENT", "progress": 3, "notes": "  rewatch  ", "media": {"id": 101, "title": {"romaji": "B"}}}
		]}
	]}}}`)

	entries, err := UnmarshalMediaListCollection(data)
	require.NoError(t, err)
	require.Len(t, entries, 2, "custom lists are skipped")
	assert.Equal(t, "Completed", entries[0].ListName)
	assert.EqualValues(t, 90, entries[0].Score)
	assert.False(t, entries[0].UpdatedAt.IsZero())
	assert.Equal(t, "rewatch", entries[1].Notes)
	assert.True(t, entries[1].UpdatedAt.IsZero())
}

func TestUnmarshalMediaListEntryMissing(t *testing.T) {
	_, err := UnmarshalMediaListEntry([]byte(`{"data":{"MediaList":null}}`))
	assert.ErrorIs(t, err, common.ErrNotFound)
}
