package anilistapi

import (
	"anibot/internal/common"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// An error reported by the GraphQL endpoint inside the "errors" array
type GraphqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *GraphqlError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("anilist: %s (status %d)", e.Message, e.Status)
	}
	return "anilist: " + e.Message
}

func (e *GraphqlError) Unwrap() error {
	if e.Status == common.DATA_NOT_FOUND {
		return common.ErrNotFound
	}
	return nil
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphqlError  `json:"errors"`
}

// Extract the "data" object from a GraphQL response, or the first error
func UnmarshalEnvelope(data []byte) (json.RawMessage, error) {

	var raw envelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(raw.Errors) > 0 {
		return nil, &raw.Errors[0]
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil, fmt.Errorf("graphql response without data")
	}
	return raw.Data, nil
}

// Raw shapes as sent by AniList

type rawAvatar struct {
	Large string `json:"large"`
}

type rawUser struct {
	Id          UserId    `json:"id"`
	Name        string    `json:"name"`
	SiteUrl     string    `json:"siteUrl"`
	About       string    `json:"about"`
	BannerImage string    `json:"bannerImage"`
	Avatar      rawAvatar `json:"avatar"`
	Statistics  struct {
		Anime struct {
			Count           int     `json:"count"`
			MeanScore       float64 `json:"meanScore"`
			MinutesWatched  int     `json:"minutesWatched"`
			EpisodesWatched int     `json:"episodesWatched"`
			Genres          []struct {
				Genre string `json:"genre"`
			} `json:"genres"`
		} `json:"anime"`
		Manga struct {
			Count        int     `json:"count"`
			MeanScore    float64 `json:"meanScore"`
			ChaptersRead int     `json:"chaptersRead"`
			VolumesRead  int     `json:"volumesRead"`
		} `json:"manga"`
	} `json:"statistics"`
}

type rawMedia struct {
	Id           MediaId    `json:"id"`
	Type         MediaType  `json:"type"`
	Title        Title      `json:"title"`
	Format       string     `json:"format"`
	Status       string     `json:"status"`
	Episodes     int        `json:"episodes"`
	Chapters     int        `json:"chapters"`
	Volumes      int        `json:"volumes"`
	Duration     int        `json:"duration"`
	AverageScore int        `json:"averageScore"`
	MeanScore    int        `json:"meanScore"`
	Popularity   int        `json:"popularity"`
	Trending     int        `json:"trending"`
	Favourites   int        `json:"favourites"`
	Genres       []string   `json:"genres"`
	SiteUrl      string     `json:"siteUrl"`
	CoverImage   CoverImage `json:"coverImage"`
	BannerImage  string     `json:"bannerImage"`
	Description  string     `json:"description"`
	StartDate    FuzzyDate  `json:"startDate"`
	EndDate      FuzzyDate  `json:"endDate"`
	Season       string     `json:"season"`
	SeasonYear   int        `json:"seasonYear"`
	IsAdult      bool       `json:"isAdult"`
	Studios      struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	NextAiringEpisode *struct {
		Episode  int   `json:"episode"`
		AiringAt int64 `json:"airingAt"`
	} `json:"nextAiringEpisode"`
}

type rawMediaSummary struct {
	Id       MediaId   `json:"id"`
	IdMal    int       `json:"idMal"`
	Type     MediaType `json:"type"`
	Title    Title     `json:"title"`
	Format   string    `json:"format"`
	Episodes int       `json:"episodes"`
	Chapters int       `json:"chapters"`
	Volumes  int       `json:"volumes"`
	SiteUrl  string    `json:"siteUrl"`
}

type rawMediaListEntry struct {
	Id              int             `json:"id"`
	Status          string          `json:"status"`
	Score           float64         `json:"score"`
	Progress        int             `json:"progress"`
	ProgressVolumes int             `json:"progressVolumes"`
	Repeat          int             `json:"repeat"`
	Notes           string          `json:"notes"`
	StartedAt       FuzzyDate       `json:"startedAt"`
	CompletedAt     FuzzyDate       `json:"completedAt"`
	UpdatedAt       int64           `json:"updatedAt"`
	Media           rawMediaSummary `json:"media"`
}

type rawActivity struct {
	Typename  string       `json:"__typename"`
	Id        ActivityId   `json:"id"`
	Type      ActivityKind `json:"type"`
	Status    string       `json:"status"`
	Progress  string       `json:"progress"`
	Text      string       `json:"text"`
	CreatedAt int64        `json:"createdAt"`
	SiteUrl   string       `json:"siteUrl"`
	User      *struct {
		Id     UserId    `json:"id"`
		Name   string    `json:"name"`
		Avatar rawAvatar `json:"avatar"`
	} `json:"user"`
	Media *struct {
		Id         MediaId    `json:"id"`
		Type       MediaType  `json:"type"`
		Title      Title      `json:"title"`
		SiteUrl    string     `json:"siteUrl"`
		CoverImage CoverImage `json:"coverImage"`
	} `json:"media"`
}

func UnmarshalUser(data []byte) (User, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return User{}, err
	}
	var raw struct {
		User *rawUser `json:"User"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	if raw.User == nil {
		return User{}, common.ErrNotFound
	}
	return convertUser(raw.User), nil
}

func UnmarshalMedia(data []byte) (Media, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return Media{}, err
	}
	var raw struct {
		Media *rawMedia `json:"Media"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Media{}, fmt.Errorf("decode media: %w", err)
	}
	if raw.Media == nil {
		return Media{}, common.ErrNotFound
	}
	return convertMedia(raw.Media), nil
}

// Decode a page of media (searches and trending)
func UnmarshalMediaPage(data []byte) ([]Media, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Page struct {
			Media []rawMedia `json:"media"`
		} `json:"Page"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode media page: %w", err)
	}
	media := make([]Media, 0, len(raw.Page.Media))
	for i := range raw.Page.Media {
		media = append(media, convertMedia(&raw.Page.Media[i]))
	}
	return media, nil
}

// Decode a page of activities. Unknown activity kinds (messages) are skipped
func UnmarshalActivityPage(data []byte) ([]Activity, bool, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return nil, false, err
	}
	var raw struct {
		Page struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Activities []rawActivity `json:"activities"`
		} `json:"Page"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false, fmt.Errorf("decode activity page: %w", err)
	}

	activities := make([]Activity, 0, len(raw.Page.Activities))
	for _, rawActivity := range raw.Page.Activities {
		if rawActivity.Id == 0 || rawActivity.User == nil {
			continue
		}
		activity := Activity{
			Id:        rawActivity.Id,
			Kind:      rawActivity.Type,
			UserId:    rawActivity.User.Id,
			UserName:  rawActivity.User.Name,
			Avatar:    rawActivity.User.Avatar.Large,
			SiteUrl:   rawActivity.SiteUrl,
			CreatedAt: time.Unix(rawActivity.CreatedAt, 0),
			Status:    rawActivity.Status,
			Progress:  rawActivity.Progress,
			Text:      rawActivity.Text,
		}
		if rawActivity.Media != nil {
			activity.Media = &ActivityMedia{
				Id:         rawActivity.Media.Id,
				Type:       rawActivity.Media.Type,
				Title:      rawActivity.Media.Title,
				SiteUrl:    rawActivity.Media.SiteUrl,
				CoverImage: rawActivity.Media.CoverImage,
			}
		}
		activities = append(activities, activity)
	}
	return activities, raw.Page.PageInfo.HasNextPage, nil
}

// Decode a full list collection, flattening custom lists away so
// that each entry appears once
func UnmarshalMediaListCollection(data []byte) ([]MediaListEntry, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	var raw struct {
		MediaListCollection *struct {
			Lists []struct {
				Name         string              `json:"name"`
				IsCustomList bool                `json:"isCustomList"`
				Entries      []rawMediaListEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode media list collection: %w", err)
	}
	if raw.MediaListCollection == nil {
		return nil, common.ErrNotFound
	}

	entries := []MediaListEntry{}
	seen := map[int]struct{}{}
	for _, list := range raw.MediaListCollection.Lists {
		if list.IsCustomList {
			continue
		}
		for i := range list.Entries {
			if _, ok := seen[list.Entries[i].Id]; ok {
				continue
			}
			seen[list.Entries[i].Id] = struct{}{}
			entry := convertMediaListEntry(&list.Entries[i])
			entry.ListName = list.Name
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func UnmarshalMediaListEntry(data []byte) (MediaListEntry, error) {

	payload, err := UnmarshalEnvelope(data)
	if err != nil {
		return MediaListEntry{}, err
	}
	var raw struct {
		MediaList *rawMediaListEntry `json:"MediaList"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return MediaListEntry{}, fmt.Errorf("decode media list entry: %w", err)
	}
	if raw.MediaList == nil {
		return MediaListEntry{}, common.ErrNotFound
	}
	return convertMediaListEntry(raw.MediaList), nil
}

func convertUser(raw *rawUser) User {
	genres := []string{}
	for _, genre := range raw.Statistics.Anime.Genres {
		genres = append(genres, genre.Genre)
	}
	return User{
		Id:          raw.Id,
		Name:        raw.Name,
		SiteUrl:     raw.SiteUrl,
		Avatar:      raw.Avatar.Large,
		BannerImage: raw.BannerImage,
		About:       raw.About,
		Statistics: Statistics{
			Anime: AnimeStatistics{
				Count:           raw.Statistics.Anime.Count,
				MeanScore:       raw.Statistics.Anime.MeanScore,
				MinutesWatched:  raw.Statistics.Anime.MinutesWatched,
				EpisodesWatched: raw.Statistics.Anime.EpisodesWatched,
			},
			Manga: MangaStatistics{
				Count:        raw.Statistics.Manga.Count,
				MeanScore:    raw.Statistics.Manga.MeanScore,
				ChaptersRead: raw.Statistics.Manga.ChaptersRead,
				VolumesRead:  raw.Statistics.Manga.VolumesRead,
			},
			TopGenres:   genres,
			RetrievedAt: time.Now(),
		},
	}
}

func convertMedia(raw *rawMedia) Media {
	media := Media{
		Id:           raw.Id,
		Type:         raw.Type,
		Title:        raw.Title,
		Format:       raw.Format,
		Status:       raw.Status,
		Episodes:     raw.Episodes,
		Chapters:     raw.Chapters,
		Volumes:      raw.Volumes,
		Duration:     raw.Duration,
		AverageScore: raw.AverageScore,
		MeanScore:    raw.MeanScore,
		Popularity:   raw.Popularity,
		Trending:     raw.Trending,
		Favourites:   raw.Favourites,
		Genres:       raw.Genres,
		SiteUrl:      raw.SiteUrl,
		CoverImage:   raw.CoverImage,
		BannerImage:  raw.BannerImage,
		Description:  raw.Description,
		StartDate:    raw.StartDate,
		EndDate:      raw.EndDate,
		Season:       raw.Season,
		SeasonYear:   raw.SeasonYear,
		IsAdult:      raw.IsAdult,
	}
	for _, studio := range raw.Studios.Nodes {
		media.Studios = append(media.Studios, studio.Name)
	}
	if raw.NextAiringEpisode != nil {
		media.NextAiring = &AiringEpisode{
			Episode:  raw.NextAiringEpisode.Episode,
			AiringAt: time.Unix(raw.NextAiringEpisode.AiringAt, 0),
		}
	}
	return media
}

func convertMediaListEntry(raw *rawMediaListEntry) MediaListEntry {
	entry := MediaListEntry{
		Id:              raw.Id,
		Status:          raw.Status,
		Score:           raw.Score,
		Progress:        raw.Progress,
		ProgressVolumes: raw.ProgressVolumes,
		Repeat:          raw.Repeat,
		Notes:           strings.TrimSpace(raw.Notes),
		StartedAt:       raw.StartedAt,
		CompletedAt:     raw.CompletedAt,
		Media: MediaSummary{
			Id:       raw.Media.Id,
			IdMal:    raw.Media.IdMal,
			Type:     raw.Media.Type,
			Title:    raw.Media.Title,
			Format:   raw.Media.Format,
			Episodes: raw.Media.Episodes,
			Chapters: raw.Media.Chapters,
			Volumes:  raw.Media.Volumes,
			SiteUrl:  raw.Media.SiteUrl,
		},
	}
	if raw.UpdatedAt > 0 {
		entry.UpdatedAt = time.Unix(raw.UpdatedAt, 0)
	}
	return entry
}
