// Package template renders newsletter HTML from stored template bodies.
package template

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ghostarr/ghostarr/internal/integrations"
)

// DateContext is the date bundle exposed to templates and titles.
type DateContext struct {
	Year      int
	Month     string
	MonthNum  int
	Day       int
	Week      int
	Weekday   string
	Formatted string // "January 2, 2006"
	ISO       string // "2006-01-02"
	Range     string // "Dec 26 - Jan 2"
}

// NewDateContext builds the bundle for a generation date and its
// lookback window.
func NewDateContext(now time.Time, lookbackDays int) DateContext {
	_, week := now.ISOWeek()
	start := now.AddDate(0, 0, -lookbackDays)

	return DateContext{
		Year:      now.Year(),
		Month:     now.Month().String(),
		MonthNum:  int(now.Month()),
		Day:       now.Day(),
		Week:      week,
		Weekday:   now.Weekday().String(),
		Formatted: now.Format("January 2, 2006"),
		ISO:       now.Format("2006-01-02"),
		Range:     fmt.Sprintf("%s - %s", start.Format("Jan 2"), now.Format("Jan 2")),
	}
}

// Context is the data a newsletter template renders against.
type Context struct {
	Title      string
	Date       DateContext
	Movies     []integrations.MediaItem
	Episodes   []integrations.MediaItem
	Games      []integrations.GameItem
	Books      []integrations.BookItem
	Audiobooks []integrations.AudiobookItem
	Programs   []integrations.Program
	Statistics *integrations.Statistics
	TotalItems int
}

var funcs = template.FuncMap{
	"formatDuration": formatDuration,
	"formatTime": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("Jan 2 15:04")
	},
	"lower": strings.ToLower,
	"truncate": func(n int, s string) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "…"
	},
}

// formatDuration renders seconds as "3h 24m".
func formatDuration(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// Render parses the template body and executes it with the context.
func Render(body string, ctx Context) (string, error) {
	tmpl, err := template.New("newsletter").Funcs(funcs).Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// RenderTitle substitutes {{date.*}} tokens in a newsletter title. It is
// deliberately not a full template: titles only carry date placeholders.
func RenderTitle(title string, date DateContext) string {
	replacer := strings.NewReplacer(
		"{{date.year}}", fmt.Sprintf("%d", date.Year),
		"{{date.month}}", date.Month,
		"{{date.month_num}}", fmt.Sprintf("%d", date.MonthNum),
		"{{date.day}}", fmt.Sprintf("%d", date.Day),
		"{{date.week}}", fmt.Sprintf("%d", date.Week),
		"{{date.weekday}}", date.Weekday,
		"{{date.formatted}}", date.Formatted,
		"{{date.iso}}", date.ISO,
		"{{date.range}}", date.Range,
	)
	return replacer.Replace(title)
}

// MockContext returns sample data for template previews.
func MockContext(now time.Time) Context {
	year := 2024
	added := now.Add(-24 * time.Hour)
	season, episode := 1, 3

	return Context{
		Title: "Newsletter Preview",
		Date:  NewDateContext(now, 7),
		Movies: []integrations.MediaItem{
			{
				Title: "Example Movie", Year: &year, MediaType: "movie",
				RatingKey: "1", AddedAt: &added,
				Overview: "A sample movie used for template previews.",
				Rating:   7.8,
			},
		},
		Episodes: []integrations.MediaItem{
			{
				Title: "Example Episode", MediaType: "episode", RatingKey: "2",
				GrandparentTitle: "Example Show",
				ParentMediaIndex: &season, MediaIndex: &episode,
				AddedAt: &added,
			},
		},
		Games: []integrations.GameItem{
			{ID: 1, Name: "Example Game", Platform: "SNES", AddedAt: &added},
		},
		Books: []integrations.BookItem{
			{ID: "b1", Title: "Example Book", Series: "Example Series", Number: "4", AddedAt: &added},
		},
		Audiobooks: []integrations.AudiobookItem{
			{ID: "a1", Title: "Example Audiobook", Author: "A. Writer", Duration: 23400, AddedAt: &added},
		},
		Statistics: &integrations.Statistics{
			TotalPlays:  142,
			MoviesPlays: 61,
			SeriesPlays: 81,
			UniqueUsers: 9,
			TopMovies: []integrations.MovieStats{
				{Title: "Example Movie", Plays: 12, EvolutionType: integrations.EvolutionUp, EvolutionValue: 2},
			},
		},
		TotalItems: 5,
	}
}
