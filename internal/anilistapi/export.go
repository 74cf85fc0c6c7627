package anilistapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

type ExportFormat string

const (
	EXPORT_CSV  ExportFormat = "csv"
	EXPORT_JSON ExportFormat = "json"
)

func ParseExportFormat(value string) (ExportFormat, error) {
	switch value {
	case "csv", "CSV":
		return EXPORT_CSV, nil
	case "json", "JSON":
		return EXPORT_JSON, nil
	}
	return "", fmt.Errorf("unknown export format %q", value)
}

func (format ExportFormat) ContentType() string {
	if format == EXPORT_JSON {
		return "application/json"
	}
	return "text/csv"
}

var csvHeader = []string{
	"media_id", "mal_id", "title", "format", "list", "status", "score",
	"progress", "progress_volumes", "total", "repeat", "started_at", "completed_at", "updated_at", "notes", "url",
}

type exportedEntry struct {
	MediaId         MediaId   `json:"media_id"`
	MalId           int       `json:"mal_id,omitempty"`
	Title           Title     `json:"title"`
	Format          string    `json:"format,omitempty"`
	List            string    `json:"list"`
	Status          string    `json:"status"`
	Score           float64   `json:"score"`
	Progress        int       `json:"progress"`
	ProgressVolumes int       `json:"progress_volumes,omitempty"`
	Total           int       `json:"total,omitempty"`
	Repeat          int       `json:"repeat,omitempty"`
	StartedAt       FuzzyDate `json:"started_at"`
	CompletedAt     FuzzyDate `json:"completed_at"`
	UpdatedAt       string    `json:"updated_at,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Url             string    `json:"url"`
}

// Sort the entries the way they are exported: by status, then title
func SortEntries(entries []MediaListEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Status != entries[j].Status {
			return entries[i].Status < entries[j].Status
		}
		return entries[i].Media.Title.Preferred() < entries[j].Media.Title.Preferred()
	})
}

func WriteExport(w io.Writer, format ExportFormat, entries []MediaListEntry) error {
	switch format {
	case EXPORT_CSV:
		return WriteCSV(w, entries)
	case EXPORT_JSON:
		return WriteJSON(w, entries)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func WriteCSV(w io.Writer, entries []MediaListEntry) error {

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, entry := range entries {
		exported := export(entry)
		record := []string{
			strconv.Itoa(int(exported.MediaId)),
			optionalInt(exported.MalId),
			exported.Title.Preferred(),
			exported.Format,
			exported.List,
			exported.Status,
			strconv.FormatFloat(exported.Score, 'f', -1, 64),
			strconv.Itoa(exported.Progress),
			optionalInt(exported.ProgressVolumes),
			optionalInt(exported.Total),
			strconv.Itoa(exported.Repeat),
			csvDate(exported.StartedAt),
			csvDate(exported.CompletedAt),
			exported.UpdatedAt,
			exported.Notes,
			exported.Url,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteJSON(w io.Writer, entries []MediaListEntry) error {
	exported := make([]exportedEntry, 0, len(entries))
	for _, entry := range entries {
		exported = append(exported, export(entry))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

func export(entry MediaListEntry) exportedEntry {
	total := entry.Media.Episodes
	if entry.Media.Type == MANGA {
		total = entry.Media.Chapters
	}
	exported := exportedEntry{
		MediaId:         entry.Media.Id,
		MalId:           entry.Media.IdMal,
		Title:           entry.Media.Title,
		Format:          entry.Media.Format,
		List:            entry.ListName,
		Status:          entry.Status,
		Score:           entry.Score,
		Progress:        entry.Progress,
		ProgressVolumes: entry.ProgressVolumes,
		Total:           total,
		Repeat:          entry.Repeat,
		StartedAt:       entry.StartedAt,
		CompletedAt:     entry.CompletedAt,
		Notes:           entry.Notes,
		Url:             entry.Media.SiteUrl,
	}
	if !entry.UpdatedAt.IsZero() {
		exported.UpdatedAt = entry.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return exported
}

func optionalInt(value int) string {
	if value == 0 {
		return ""
	}
	return strconv.Itoa(value)
}

// ISO 8601 with reduced precision for partially known dates
func csvDate(date FuzzyDate) string {
	switch {
	case date.Year == 0:
		return ""
	case date.Month == 0:
		return fmt.Sprintf("%04d", date.Year)
	case date.Day == 0:
		return fmt.Sprintf("%04d-%02d", date.Year, date.Month)
	}
	return fmt.Sprintf("%04d-%02d-%02d", date.Year, date.Month, date.Day)
}
