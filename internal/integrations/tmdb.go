package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

const (
	tmdbBaseURL  = "https://api.themoviedb.org/3"
	tmdbImageURL = "https://image.tmdb.org/t/p/w500"
	tmdbLanguage = "fr-FR"
)

// TMDBClient enriches media items with TMDB metadata.
type TMDBClient struct {
	client *Client
	apiKey string
}

func NewTMDB(apiKey string, logger *slog.Logger) *TMDBClient {
	return &TMDBClient{
		client: NewClient("tmdb", tmdbBaseURL, logger),
		apiKey: apiKey,
	}
}

func (t *TMDBClient) configured() bool { return t.apiKey != "" }

func (t *TMDBClient) params() url.Values {
	p := url.Values{}
	p.Set("api_key", t.apiKey)
	p.Set("language", tmdbLanguage)
	return p
}

// TestConnection checks the API key against the configuration endpoint.
func (t *TMDBClient) TestConnection(ctx context.Context) ConnectionStatus {
	if !t.configured() {
		return ConnectionStatus{Message: "Not configured"}
	}

	start := time.Now()
	var out struct {
		Images struct {
			BaseURL string `json:"base_url"`
		} `json:"images"`
	}
	if err := t.client.GetJSON(ctx, "/configuration", t.params(), &out); err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	return ConnectionStatus{
		OK:        true,
		Message:   "Connected to TMDB",
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

type tmdbResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int   `json:"genre_ids"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
}

// Enrich fills metadata for a single media item in place. Episodes are
// looked up by their series title.
func (t *TMDBClient) Enrich(ctx context.Context, item *MediaItem) error {
	if !t.configured() {
		return ErrNotConfigured
	}

	title := item.Title
	path := "/search/movie"
	if item.MediaType == "episode" {
		path = "/search/tv"
		if item.GrandparentTitle != "" {
			title = item.GrandparentTitle
		}
	}

	params := t.params()
	params.Set("query", title)
	if item.Year != nil && item.MediaType == "movie" {
		params.Set("year", strconv.Itoa(*item.Year))
	}

	var out struct {
		Results []tmdbResult `json:"results"`
	}
	if err := t.client.GetJSON(ctx, path, params, &out); err != nil {
		return fmt.Errorf("tmdb search failed for %q: %w", title, err)
	}
	if len(out.Results) == 0 {
		return nil
	}

	best := out.Results[0]
	item.TMDBID = strconv.Itoa(best.ID)
	item.Overview = best.Overview
	item.Rating = best.VoteAverage
	if best.PosterPath != "" {
		item.PosterURL = tmdbImageURL + best.PosterPath
	}
	if best.BackdropPath != "" {
		item.BackdropURL = tmdbImageURL + best.BackdropPath
	}
	return nil
}

// EnrichAll enriches every item, logging and skipping per-item failures.
// Returns how many items were enriched.
func (t *TMDBClient) EnrichAll(ctx context.Context, items []MediaItem) (int, error) {
	if !t.configured() {
		return 0, ErrNotConfigured
	}

	enriched := 0
	for i := range items {
		if err := ctx.Err(); err != nil {
			return enriched, err
		}
		if err := t.Enrich(ctx, &items[i]); err != nil {
			t.client.Logger.Warn("enrichment failed", "title", items[i].Title, "error", err)
			continue
		}
		if items[i].TMDBID != "" {
			enriched++
		}
	}
	return enriched, nil
}
