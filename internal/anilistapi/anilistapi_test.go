package anilistapi

import (
	"anibot/internal/common"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A stand-in for the GraphQL endpoint. Each handler answers the queries
// containing its key
type fakeAnilist struct {
	mu       sync.Mutex
	requests []graphqlRequest
	handlers map[string]func(variables map[string]any) (int, string)
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (f *fakeAnilist) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var request graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()

	for key, handler := range f.handlers {
		if strings.Contains(request.Query, key) {
			status, body := handler(request.Variables)
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
	}
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(`{"errors":[{"message":"unexpected query","status":400}]}`))
}

func (f *fakeAnilist) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestApi(t *testing.T, fake *fakeAnilist) (*AnilistApi, common.Database) {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	database, err := common.OpenDatabase(common.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	api, err := NewAnilistApi(server.URL, database, 1000, time.Hour)
	require.NoError(t, err)
	return api, database
}

func TestGetUserCachesAndPersists(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"User(name": func(variables map[string]any) (int, string) {
			if variables["name"] != "josh" {
				return http.StatusNotFound, `{"data":{"User":null},"errors":[{"message":"Not Found.","status":404}]}`
			}
			return http.StatusOK, `{"data":{"User":{"id": 5, "name": "Josh"}}}`
		},
	}}
	api, database := newTestApi(t, fake)
	ctx := context.Background()

	user, err := api.GetUser(ctx, "josh")
	require.NoError(t, err)
	assert.EqualValues(t, 5, user.Id)
	assert.Equal(t, "Josh", user.Name)

	// Same user, different case: served from the cache
	_, err = api.GetUser(ctx, "JOSH")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count())

	name, ok := api.GetUserName(5)
	assert.True(t, ok)
	assert.Equal(t, "Josh", name)

	// The name survives a restart through the database
	db := DatabaseAnilistApi{database}
	names, err := db.GetUserNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Josh", names[5])

	_, err = api.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
	var graphqlErr *GraphqlError
	require.ErrorAs(t, err, &graphqlErr, "the GraphQL error is carried along")
	assert.Equal(t, "Not Found.", graphqlErr.Message)
}

func TestFindMediaPicksClosestTitle(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"media(search": func(variables map[string]any) (int, string) {
			assert.Equal(t, "MANGA", variables["type"])
			return http.StatusOK, `{"data":{"Page":{"media":[
				{"id": 1, "title": {"romaji": "Berserk: The Prototype"}},
				{"id": 2, "title": {"romaji": "Berserk"}}
			]}}}`
		},
		"Media(id": func(variables map[string]any) (int, string) {
			t.Error("media found by search should be cached")
			return http.StatusOK, `{"data":{"Media":{"id": 2}}}`
		},
	}}
	api, _ := newTestApi(t, fake)
	ctx := context.Background()

	media, err := api.FindMedia(ctx, MANGA, "berserk")
	require.NoError(t, err)
	assert.EqualValues(t, 2, media.Id)
	_, err = api.GetMedia(ctx, 2)
	assert.NoError(t, err)
}

func TestFindMediaNoResults(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"media(search": func(map[string]any) (int, string) {
			return http.StatusOK, `{"data":{"Page":{"media":[]}}}`
		},
	}}
	api, _ := newTestApi(t, fake)

	_, err := api.FindMedia(context.Background(), ANIME, "zzz")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetActivitiesFollowsPages(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"activities(": func(variables map[string]any) (int, string) {
			// JSON numbers decode as float64
			switch variables["page"] {
			case float64(1):
				return http.StatusOK, `{"data":{"Page":{"pageInfo":{"hasNextPage":true},"activities":[
					{"id": 1, "type": "TEXT", "text": "one", "createdAt": 100, "user": {"id": 3, "name": "Renamed"}}]}}}`
			default:
				return http.StatusOK, `{"data":{"Page":{"pageInfo":{"hasNextPage":false},"activities":[
					{"id": 2, "type": "TEXT", "text": "two", "createdAt": 200, "user": {"id": 3, "name": "Renamed"}}]}}}`
			}
		},
	}}
	api, _ := newTestApi(t, fake)

	activities, complete, err := api.GetActivities(context.Background(), ActivityQuery{UserIds: []UserId{3}, Since: time.Unix(50, 0)}, false)
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, activities, 2)
	assert.EqualValues(t, 1, activities[0].Id)
	assert.EqualValues(t, 2, activities[1].Id)
	assert.Equal(t, 2, fake.count())
	name, _ := api.GetUserName(3)
	assert.Equal(t, "Renamed", name, "the name seen in the activities is remembered")

	fake.mu.Lock()
	since := fake.requests[0].Variables["since"]
	fake.mu.Unlock()
	assert.Equal(t, float64(50), since)
}

func TestGetActivitiesWithoutUsers(t *testing.T) {
	fake := &fakeAnilist{}
	api, _ := newTestApi(t, fake)

	activities, complete, err := api.GetActivities(context.Background(), ActivityQuery{Since: time.Now()}, false)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Empty(t, activities)
	assert.Zero(t, fake.count(), "no request expected without users")
}

func TestGetActivitiesNewestFirst(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"activities(": func(variables map[string]any) (int, string) {
			return http.StatusOK, `{"data":{"Page":{"pageInfo":{"hasNextPage":true},"activities":[
				{"id": 9, "type": "ANIME_LIST", "status": "completed", "createdAt": 900, "user": {"id": 3, "name": "Yuki"}, "media": {"id": 1, "type": "ANIME"}},
				{"id": 8, "type": "ANIME_LIST", "status": "watched episode", "progress": "3", "createdAt": 800, "user": {"id": 3, "name": "Yuki"}, "media": {"id": 1, "type": "ANIME"}}]}}}`
		},
	}}
	api, _ := newTestApi(t, fake)

	query := ActivityQuery{UserIds: []UserId{3}, Since: time.Unix(50, 0), ListOnly: true, Newest: true, Limit: 2}
	activities, complete, err := api.GetActivities(context.Background(), query, false)
	require.NoError(t, err)
	assert.False(t, complete, "more pages were left")
	assert.Equal(t, 1, fake.count(), "the limit fits in one page")
	require.Len(t, activities, 2)
	assert.EqualValues(t, 8, activities[0].Id, "returned oldest first")
	assert.EqualValues(t, 9, activities[1].Id)

	fake.mu.Lock()
	variables := fake.requests[0].Variables
	fake.mu.Unlock()
	assert.Equal(t, []any{"ID_DESC"}, variables["sort"])
	assert.Equal(t, []any{"ANIME_LIST", "MANGA_LIST"}, variables["types"])
	assert.Equal(t, float64(2), variables["perPage"])
}

func TestHousekeepingForgetsUsers(t *testing.T) {
	fake := &fakeAnilist{handlers: map[string]func(map[string]any) (int, string){
		"User(name": func(variables map[string]any) (int, string) {
			if variables["name"] == "keep" {
				return http.StatusOK, `{"data":{"User":{"id": 1, "name": "keep"}}}`
			}
			return http.StatusOK, `{"data":{"User":{"id": 2, "name": "drop"}}}`
		},
		"User(id": func(map[string]any) (int, string) {
			return http.StatusOK, `{"data":{"User":{"id": 1, "name": "kept"}}}`
		},
	}}
	api, _ := newTestApi(t, fake)
	ctx := context.Background()

	api.GetUser(ctx, "keep")
	api.GetUser(ctx, "drop")
	api.Housekeeping(ctx, map[UserId]struct{}{1: {}})

	_, ok := api.GetUserName(2)
	assert.False(t, ok, "user 2 should be forgotten")
	name, _ := api.GetUserName(1)
	assert.Equal(t, "kept", name, "user 1 gets its refreshed name")

	stats := api.Stats()
	assert.Equal(t, 1, stats.Names)
	assert.Zero(t, stats.Media)
	assert.Zero(t, stats.VitalWaiting)
}

func TestRequestPayload(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		body = buf.Bytes()
		w.Write([]byte(`{"data":{"Page":{"media":[]}}}`))
	}))
	defer server.Close()

	database, err := common.OpenDatabase(common.InMemory)
	require.NoError(t, err)
	defer database.Close()
	api, err := NewAnilistApi(server.URL, database, 10, time.Minute)
	require.NoError(t, err)
	_, err = api.GetTrending(context.Background(), ANIME, 500, true)
	require.NoError(t, err)

	var request graphqlRequest
	require.NoError(t, json.Unmarshal(body, &request), "payload is not json")
	assert.Contains(t, request.Query, "TRENDING_DESC")
	assert.Equal(t, float64(MAX_PER_PAGE), request.Variables["perPage"], "perPage is capped")
}
