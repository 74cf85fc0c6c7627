package anilistapi

// Fixed endpoint of the AniList GraphQL API
const ANILIST_URL = "https://graphql.anilist.co"

// Maximum page size allowed by AniList
const MAX_PER_PAGE = 50

const userFields = `
	id
	name
	siteUrl
	about(asHtml: false)
	bannerImage
	avatar { large }
	statistics {
		anime { count meanScore minutesWatched episodesWatched genres(limit: 3, sort: COUNT_DESC) { genre } }
		manga { count meanScore chaptersRead volumesRead }
	}
`

const QUERY_USER_BY_NAME = `
query ($name: String) {
	User(name: $name) {` + userFields + `}
}`

const QUERY_USER_BY_ID = `
query ($id: Int) {
	User(id: $id) {` + userFields + `}
}`

const mediaFields = `
	id
	type
	title { romaji english native }
	format
	status
	episodes
	chapters
	volumes
	duration
	averageScore
	meanScore
	popularity
	trending
	favourites
	genres
	siteUrl
	coverImage { large color }
	bannerImage
	description(asHtml: false)
	startDate { year month day }
	endDate { year month day }
	season
	seasonYear
	isAdult
	studios(isMain: true) { nodes { name } }
	nextAiringEpisode { episode airingAt }
`

const QUERY_MEDIA_SEARCH = `
query ($search: String, $type: MediaType, $perPage: Int) {
	Page(perPage: $perPage) {
		media(search: $search, type: $type, sort: SEARCH_MATCH) {` + mediaFields + `}
	}
}`

const QUERY_MEDIA_BY_ID = `
query ($id: Int) {
	Media(id: $id) {` + mediaFields + `}
}`

const QUERY_TRENDING = `
query ($type: MediaType, $perPage: Int) {
	Page(perPage: $perPage) {
		media(type: $type, sort: TRENDING_DESC, isAdult: false) {` + mediaFields + `}
	}
}`

const QUERY_ACTIVITIES = `
query ($userIds: [Int], $since: Int, $sort: [ActivitySort], $types: [ActivityType], $page: Int, $perPage: Int) {
	Page(page: $page, perPage: $perPage) {
		pageInfo { hasNextPage }
		activities(userId_in: $userIds, createdAt_greater: $since, sort: $sort, type_in: $types) {
			__typename
			... on ListActivity {
				id
				type
				status
				progress
				createdAt
				siteUrl
				user { id name avatar { large } }
				media { id type title { romaji english native } siteUrl coverImage { large color } }
			}
			... on TextActivity {
				id
				type
				text(asHtml: false)
				createdAt
				siteUrl
				user { id name avatar { large } }
			}
		}
	}
}`

const QUERY_MEDIA_LIST_COLLECTION = `
query ($userId: Int, $type: MediaType) {
	MediaListCollection(userId: $userId, type: $type) {
		lists {
			name
			isCustomList
			entries {
				id
				status
				score(format: POINT_100)
				progress
				progressVolumes
				repeat
				notes
				startedAt { year month day }
				completedAt { year month day }
				updatedAt
				media { id idMal type title { romaji english native } format episodes chapters volumes siteUrl }
			}
		}
	}
}`

const QUERY_MEDIA_LIST_ENTRY = `
query ($userId: Int, $mediaId: Int) {
	MediaList(userId: $userId, mediaId: $mediaId) {
		id
		status
		score(format: POINT_100)
		progress
		progressVolumes
		repeat
		notes
		startedAt { year month day }
		completedAt { year month day }
		updatedAt
		media { id idMal type title { romaji english native } format episodes chapters volumes siteUrl }
	}
}`
