package anilistapi

import (
	"fmt"
	"time"
)

type UserId int
type MediaId int
type ActivityId int
type MediaType string

const (
	ANIME MediaType = "ANIME"
	MANGA MediaType = "MANGA"
)

// Parse a media type from user input
func ParseMediaType(value string) (MediaType, error) {
	switch value {
	case "anime", "ANIME", "Anime":
		return ANIME, nil
	case "manga", "MANGA", "Manga":
		return MANGA, nil
	}
	return "", fmt.Errorf("unknown media type %q", value)
}

func (mediaType MediaType) Lower() string {
	switch mediaType {
	case ANIME:
		return "anime"
	case MANGA:
		return "manga"
	}
	return string(mediaType)
}

type Title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// The title shown to users: English when available, romaji otherwise
func (title Title) Preferred() string {
	if title.English != "" {
		return title.English
	}
	if title.Romaji != "" {
		return title.Romaji
	}
	if title.Native != "" {
		return title.Native
	}
	return "Unknown title"
}

// All the non empty titles, for matching
func (title Title) All() []string {
	all := []string{}
	for _, t := range []string{title.English, title.Romaji, title.Native} {
		if t != "" {
			all = append(all, t)
		}
	}
	return all
}

type FuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type CoverImage struct {
	Large string `json:"large"`
	Color string `json:"color"`
}

type AiringEpisode struct {
	Episode  int
	AiringAt time.Time
}

type Media struct {
	Id           MediaId
	Type         MediaType
	Title        Title
	Format       string
	Status       string
	Episodes     int
	Chapters     int
	Volumes      int
	Duration     int
	AverageScore int
	MeanScore    int
	Popularity   int
	Trending     int
	Favourites   int
	Genres       []string
	SiteUrl      string
	CoverImage   CoverImage
	BannerImage  string
	Description  string
	StartDate    FuzzyDate
	EndDate      FuzzyDate
	Season       string
	SeasonYear   int
	Studios      []string
	NextAiring   *AiringEpisode
	IsAdult      bool
}

type AnimeStatistics struct {
	Count           int
	MeanScore       float64
	MinutesWatched  int
	EpisodesWatched int
}

type MangaStatistics struct {
	Count        int
	MeanScore    float64
	ChaptersRead int
	VolumesRead  int
}

type Statistics struct {
	Anime       AnimeStatistics
	Manga       MangaStatistics
	TopGenres   []string
	RetrievedAt time.Time
}

type User struct {
	Id          UserId
	Name        string
	SiteUrl     string
	Avatar      string
	BannerImage string
	About       string
	Statistics  Statistics
}

type ActivityKind string

const (
	ACTIVITY_TEXT       ActivityKind = "TEXT"
	ACTIVITY_ANIME_LIST ActivityKind = "ANIME_LIST"
	ACTIVITY_MANGA_LIST ActivityKind = "MANGA_LIST"
)

type ActivityMedia struct {
	Id         MediaId
	Type       MediaType
	Title      Title
	SiteUrl    string
	CoverImage CoverImage
}

type Activity struct {
	Id        ActivityId
	Kind      ActivityKind
	UserId    UserId
	UserName  string
	Avatar    string
	SiteUrl   string
	CreatedAt time.Time

	// List activities
	Status   string // "watched episode", "completed", ...
	Progress string // "5" or "3 - 7"
	Media    *ActivityMedia

	// Text activities
	Text string
}

// Finished a title in this activity
func (activity *Activity) IsCompletion() bool {
	return activity.Media != nil && activity.Status == "completed"
}

type MediaListEntry struct {
	Id              int
	Status          string
	Score           float64
	Progress        int
	ProgressVolumes int
	Repeat          int
	Notes           string
	StartedAt       FuzzyDate
	CompletedAt     FuzzyDate
	UpdatedAt       time.Time
	ListName        string
	Media           MediaSummary
}

type MediaSummary struct {
	Id       MediaId
	IdMal    int
	Type     MediaType
	Title    Title
	Format   string
	Episodes int
	Chapters int
	Volumes  int
	SiteUrl  string
}
