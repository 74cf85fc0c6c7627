package anilistapi

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// Index of the media whose titles best resemble the query.
// AniList already sorts by search match, so ties keep its order
func BestMatch(query string, results []Media) int {

	query = strings.ToLower(strings.TrimSpace(query))
	best := 0
	bestScore := float32(-1)
	for i, media := range results {
		for _, title := range media.Title.All() {
			score := TitleSimilarity(query, strings.ToLower(title))
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
	}
	return best
}

// Similarity between 0 and 1 of two lower case titles
func TitleSimilarity(a, b string) float32 {
	if a == b {
		return 1
	}
	similarity, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return similarity
}
