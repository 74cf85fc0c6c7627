package anilistapi

import (
	"anibot/internal/common"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Safety net against runaway pagination in the activity feed
const maxActivityPages = 10

type AnilistApi struct {
	url        string
	database   DatabaseAnilistApi
	proxy      *common.Proxy
	mu         sync.RWMutex
	userIds    map[string]UserId // lower case name -> id
	userNames  map[UserId]string
	mediaCache *common.Cache[MediaId, Media]
	userCache  *common.Cache[UserId, User]
}

// The AniList budget is expressed in requests per minute
func NewAnilistApi(url string, database common.Database, requestsPerMinute int, cacheTtl time.Duration) (*AnilistApi, error) {

	var anilistapi AnilistApi

	db, err := CreateDatabaseAnilistApi(database)
	if err != nil {
		return nil, err
	}
	anilistapi.database = db
	anilistapi.url = url
	anilistapi.userIds = map[string]UserId{}
	anilistapi.userNames = map[UserId]string{}

	// Initialise the name cache from the database
	names, err := anilistapi.database.GetUserNames(context.Background())
	if err != nil {
		return nil, err
	}
	for id, name := range names {
		anilistapi.userIds[strings.ToLower(name)] = id
		anilistapi.userNames[id] = name
	}

	restrictions := []common.Restriction{{Requests: requestsPerMinute, Duration: time.Minute}}
	anilistapi.proxy = common.NewProxy(map[string]string{}, restrictions)
	anilistapi.mediaCache = common.NewCache[MediaId, Media](cacheTtl)
	anilistapi.userCache = common.NewCache[UserId, User](cacheTtl)

	return &anilistapi, nil
}

func (anilistapi *AnilistApi) GetUser(ctx context.Context, name string) (User, error) {

	// Check cache
	anilistapi.mu.RLock()
	id, ok := anilistapi.userIds[strings.ToLower(name)]
	anilistapi.mu.RUnlock()
	if ok {
		if user, ok := anilistapi.userCache.Get(id); ok {
			return user, nil
		}
	}
	log.Debug().Msg(fmt.Sprintf("User %s is not in the cache", name))

	// Request
	data, err := anilistapi.request(ctx, QUERY_USER_BY_NAME, map[string]any{"name": name}, true)
	if err != nil {
		return User{}, fmt.Errorf("could not find user %s: %w", name, err)
	}

	// Decode
	user, err := UnmarshalUser(data)
	if err != nil {
		return User{}, fmt.Errorf("could not find user %s: %w", name, err)
	}
	log.Debug().Msg(fmt.Sprintf("Found id %d for user %s", user.Id, user.Name))

	anilistapi.remember(ctx, user)
	return user, nil
}

func (anilistapi *AnilistApi) GetUserById(ctx context.Context, id UserId, vital bool) (User, error) {

	if user, ok := anilistapi.userCache.Get(id); ok {
		return user, nil
	}

	data, err := anilistapi.request(ctx, QUERY_USER_BY_ID, map[string]any{"id": id}, vital)
	if err != nil {
		return User{}, fmt.Errorf("could not find user with id %d: %w", id, err)
	}
	user, err := UnmarshalUser(data)
	if err != nil {
		return User{}, fmt.Errorf("could not find user with id %d: %w", id, err)
	}

	anilistapi.remember(ctx, user)
	return user, nil
}

// Name of a user as last seen, without making any request
func (anilistapi *AnilistApi) GetUserName(id UserId) (string, bool) {
	anilistapi.mu.RLock()
	defer anilistapi.mu.RUnlock()
	name, ok := anilistapi.userNames[id]
	return name, ok
}

func (anilistapi *AnilistApi) SearchMedia(ctx context.Context, mediaType MediaType, query string) ([]Media, error) {

	variables := map[string]any{"search": query, "type": mediaType, "perPage": 10}
	data, err := anilistapi.request(ctx, QUERY_MEDIA_SEARCH, variables, true)
	if err != nil {
		return nil, fmt.Errorf("could not search %s %q: %w", mediaType.Lower(), query, err)
	}
	media, err := UnmarshalMediaPage(data)
	if err != nil {
		return nil, err
	}
	for _, m := range media {
		anilistapi.mediaCache.Set(m.Id, m)
	}
	return media, nil
}

// Search and return the result whose title is the closest to the query
func (anilistapi *AnilistApi) FindMedia(ctx context.Context, mediaType MediaType, query string) (Media, error) {

	results, err := anilistapi.SearchMedia(ctx, mediaType, query)
	if err != nil {
		return Media{}, err
	}
	if len(results) == 0 {
		return Media{}, fmt.Errorf("no %s found for %q: %w", mediaType.Lower(), query, common.ErrNotFound)
	}
	return results[BestMatch(query, results)], nil
}

func (anilistapi *AnilistApi) GetMedia(ctx context.Context, id MediaId) (Media, error) {

	// Check cache
	if media, ok := anilistapi.mediaCache.Get(id); ok {
		return media, nil
	}

	data, err := anilistapi.request(ctx, QUERY_MEDIA_BY_ID, map[string]any{"id": id}, true)
	if err != nil {
		return Media{}, fmt.Errorf("could not find media %d: %w", id, err)
	}
	media, err := UnmarshalMedia(data)
	if err != nil {
		return Media{}, fmt.Errorf("could not find media %d: %w", id, err)
	}

	// Update cache
	anilistapi.mediaCache.Set(id, media)
	return media, nil
}

func (anilistapi *AnilistApi) GetTrending(ctx context.Context, mediaType MediaType, count int, vital bool) ([]Media, error) {

	count = min(max(count, 1), MAX_PER_PAGE)
	data, err := anilistapi.request(ctx, QUERY_TRENDING, map[string]any{"type": mediaType, "perPage": count}, vital)
	if err != nil {
		return nil, fmt.Errorf("could not get trending %s: %w", mediaType.Lower(), err)
	}
	return UnmarshalMediaPage(data)
}

// Which activities to read and in which order
type ActivityQuery struct {
	UserIds  []UserId
	Since    time.Time
	ListOnly bool // Anime and manga list updates, no text posts
	Newest   bool // Read backwards from the newest activity
	Limit    int  // Stop after this many activities, 0 reads up to the page cap
}

func (query ActivityQuery) variables(page int) map[string]any {

	sort, types := "ID", []string{"TEXT", "ANIME_LIST", "MANGA_LIST"}
	if query.Newest {
		sort = "ID_DESC"
	}
	if query.ListOnly {
		types = []string{"ANIME_LIST", "MANGA_LIST"}
	}
	perPage := MAX_PER_PAGE
	if query.Limit > 0 {
		perPage = min(query.Limit, MAX_PER_PAGE)
	}
	return map[string]any{
		"userIds": query.UserIds,
		"since":   query.Since.Unix(),
		"sort":    []string{sort},
		"types":   types,
		"page":    page,
		"perPage": perPage,
	}
}

// Get the activities matching the query, always returned oldest first.
// The boolean reports whether every matching activity was read
func (anilistapi *AnilistApi) GetActivities(ctx context.Context, query ActivityQuery, vital bool) ([]Activity, bool, error) {

	if len(query.UserIds) == 0 {
		return nil, true, nil
	}

	activities := []Activity{}
	complete := false
	for page := 1; page <= maxActivityPages; page++ {
		data, err := anilistapi.request(ctx, QUERY_ACTIVITIES, query.variables(page), vital)
		if err != nil {
			return nil, false, fmt.Errorf("could not get activities (page %d): %w", page, err)
		}
		pageActivities, hasNextPage, err := UnmarshalActivityPage(data)
		if err != nil {
			return nil, false, err
		}
		activities = append(activities, pageActivities...)
		if !hasNextPage {
			complete = true
			break
		}
		if query.Limit > 0 && len(activities) >= query.Limit {
			break
		}
		if page == maxActivityPages {
			log.Warn().Int("pages", page).Msg("Stopping activity pagination before the last page")
		}
	}
	if query.Limit > 0 && len(activities) > query.Limit {
		activities = activities[:query.Limit]
		complete = false
	}
	if query.Newest {
		slices.Reverse(activities)
	}

	// Keep the user names fresh since they come for free
	for _, activity := range activities {
		anilistapi.rememberName(ctx, activity.UserId, activity.UserName)
	}
	return activities, complete, nil
}

func (anilistapi *AnilistApi) GetMediaListCollection(ctx context.Context, userId UserId, mediaType MediaType) ([]MediaListEntry, error) {

	data, err := anilistapi.request(ctx, QUERY_MEDIA_LIST_COLLECTION, map[string]any{"userId": userId, "type": mediaType}, true)
	if err != nil {
		return nil, fmt.Errorf("could not get %s list of user %d: %w", mediaType.Lower(), userId, err)
	}
	return UnmarshalMediaListCollection(data)
}

func (anilistapi *AnilistApi) GetMediaListEntry(ctx context.Context, userId UserId, mediaId MediaId) (MediaListEntry, error) {

	data, err := anilistapi.request(ctx, QUERY_MEDIA_LIST_ENTRY, map[string]any{"userId": userId, "mediaId": mediaId}, true)
	if err != nil {
		return MediaListEntry{}, fmt.Errorf("could not get entry of media %d for user %d: %w", mediaId, userId, err)
	}
	return UnmarshalMediaListEntry(data)
}

// Refresh the names of the users to keep, forget the rest
// and drop expired cached data
func (anilistapi *AnilistApi) Housekeeping(ctx context.Context, idsToKeep map[UserId]struct{}) {

	anilistapi.mu.RLock()
	log.Info().Msg(fmt.Sprintf("Current number of user names: %d", len(anilistapi.userNames)))
	anilistapi.mu.RUnlock()
	log.Info().Msg(fmt.Sprintf("Keeping %d users", len(idsToKeep)))

	// Purge my memory first, keeping the last known names
	// in case AniList does not answer
	if err := anilistapi.database.DeleteUsersExcept(ctx, idsToKeep); err != nil {
		log.Error().Err(err).Msg("Could not trim users in the database")
	}
	anilistapi.mu.Lock()
	userNames := make(map[UserId]string, len(idsToKeep))
	userIds := make(map[string]UserId, len(idsToKeep))
	for id := range idsToKeep {
		if name, ok := anilistapi.userNames[id]; ok {
			userNames[id] = name
			userIds[strings.ToLower(name)] = id
		}
	}
	anilistapi.userNames = userNames
	anilistapi.userIds = userIds
	anilistapi.mu.Unlock()

	// Ask for the latest names

	for id := range idsToKeep {
		anilistapi.userCache.Delete(id)
		if _, err := anilistapi.GetUserById(ctx, id, false); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not refresh user %d", id))
		}
	}

	media := anilistapi.mediaCache.PurgeExpired()
	users := anilistapi.userCache.PurgeExpired()
	log.Info().Msg(fmt.Sprintf("Purged %d media and %d users from the cache", media, users))
}

// Sizes of the in-memory state, for the housekeeping logs
type Stats struct {
	Media        int // Media in the cache
	Users        int // Users in the cache
	Names        int // Known user names
	VitalWaiting int // Vital requests waiting for the rate limiter
}

func (anilistapi *AnilistApi) Stats() Stats {

	anilistapi.mu.RLock()
	names := len(anilistapi.userNames)
	anilistapi.mu.RUnlock()
	return Stats{
		Media:        anilistapi.mediaCache.Len(),
		Users:        anilistapi.userCache.Len(),
		Names:        names,
		VitalWaiting: anilistapi.proxy.Pending(),
	}
}

func (anilistapi *AnilistApi) remember(ctx context.Context, user User) {
	anilistapi.userCache.Set(user.Id, user)
	anilistapi.rememberName(ctx, user.Id, user.Name)
}

func (anilistapi *AnilistApi) rememberName(ctx context.Context, id UserId, name string) {
	if name == "" {
		return
	}

	anilistapi.mu.Lock()
	previous, known := anilistapi.userNames[id]
	if known && previous != name {
		log.Debug().Msg(fmt.Sprintf("Updating name %s to %s for user %d", previous, name, id))
		delete(anilistapi.userIds, strings.ToLower(previous))
	}
	anilistapi.userIds[strings.ToLower(name)] = id
	anilistapi.userNames[id] = name
	anilistapi.mu.Unlock()

	if known && previous == name {
		return
	}
	if err := anilistapi.database.SetUserName(ctx, id, name); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not store name of user %d", id))
	}
}

func (anilistapi *AnilistApi) request(ctx context.Context, query string, variables map[string]any, vital bool) ([]byte, error) {

	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}
	log.Debug().Interface("variables", variables).Bool("vital", vital).Msg("Requesting AniList")

	data, err := anilistapi.proxy.Post(ctx, anilistapi.url, body, vital)
	if err != nil {
		// The body of a failed GraphQL request says what went wrong
		if len(data) > 0 {
			if _, graphqlErr := UnmarshalEnvelope(data); graphqlErr != nil {
				var e *GraphqlError
				if errors.As(graphqlErr, &e) {
					return nil, fmt.Errorf("%w: %w", err, e)
				}
			}
		}
		return nil, err
	}
	return data, nil
}
