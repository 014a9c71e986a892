package integrations

import "time"

// MediaItem is a recently added movie or episode from Tautulli,
// optionally enriched with TMDB metadata.
type MediaItem struct {
	Title            string     `json:"title"`
	Year             *int       `json:"year,omitempty"`
	MediaType        string     `json:"media_type"` // "movie" or "episode"
	RatingKey        string     `json:"rating_key"`
	Thumb            string     `json:"thumb,omitempty"`
	Art              string     `json:"art,omitempty"`
	AddedAt          *time.Time `json:"added_at,omitempty"`
	GrandparentTitle string     `json:"grandparent_title,omitempty"` // series name for episodes
	ParentMediaIndex *int       `json:"parent_media_index,omitempty"`
	MediaIndex       *int       `json:"media_index,omitempty"`

	// Filled by TMDB enrichment.
	TMDBID      string   `json:"tmdb_id,omitempty"`
	Overview    string   `json:"overview,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// GameItem is a recently added ROM from RoMM.
type GameItem struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Platform string     `json:"platform"`
	CoverURL string     `json:"cover_url,omitempty"`
	Summary  string     `json:"summary,omitempty"`
	AddedAt  *time.Time `json:"added_at,omitempty"`
}

// BookItem is a recently added book from Komga.
type BookItem struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Series   string     `json:"series,omitempty"`
	Library  string     `json:"library,omitempty"`
	Number   string     `json:"number,omitempty"`
	CoverURL string     `json:"cover_url,omitempty"`
	AddedAt  *time.Time `json:"added_at,omitempty"`
}

// AudiobookItem is a recently added audiobook from Audiobookshelf.
type AudiobookItem struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Author   string     `json:"author,omitempty"`
	Narrator string     `json:"narrator,omitempty"`
	Duration float64    `json:"duration,omitempty"` // seconds
	CoverURL string     `json:"cover_url,omitempty"`
	AddedAt  *time.Time `json:"added_at,omitempty"`
}

// Program is an upcoming TV-guide entry from Tunarr.
type Program struct {
	Channel string     `json:"channel"`
	Title   string     `json:"title"`
	Start   *time.Time `json:"start,omitempty"`
	Stop    *time.Time `json:"stop,omitempty"`
	Summary string     `json:"summary,omitempty"`
	IconURL string     `json:"icon_url,omitempty"`
}

// Evolution classification of a ranked item against the previous period.
const (
	EvolutionNew    = "new"
	EvolutionUp     = "up"
	EvolutionDown   = "down"
	EvolutionStable = "stable"
)

// MovieStats is one entry in the top-movies ranking.
type MovieStats struct {
	Title          string `json:"title"`
	Plays          int    `json:"plays"`
	TotalDuration  int    `json:"total_duration"`
	Year           string `json:"year,omitempty"`
	Thumb          string `json:"thumb,omitempty"`
	EvolutionType  string `json:"evolution_type,omitempty"`
	EvolutionValue int    `json:"evolution_value"`
}

// ShowStats is one entry in the top-shows ranking.
type ShowStats struct {
	Title          string `json:"title"`
	Plays          int    `json:"plays"`
	TotalDuration  int    `json:"total_duration"`
	Year           string `json:"year,omitempty"`
	Thumb          string `json:"thumb,omitempty"`
	EvolutionType  string `json:"evolution_type,omitempty"`
	EvolutionValue int    `json:"evolution_value"`
}

// UserStats is one entry in the top-users ranking.
type UserStats struct {
	Username       string `json:"username"`
	UserID         int    `json:"user_id"`
	FriendlyName   string `json:"friendly_name,omitempty"`
	Plays          int    `json:"plays"`
	WatchTime      int    `json:"watch_time"` // seconds
	EvolutionType  string `json:"evolution_type,omitempty"`
	EvolutionValue int    `json:"evolution_value"`
}

// DailyViews is plays per day split by content type.
type DailyViews struct {
	Day    string `json:"day"`
	Movies int    `json:"movies"`
	Series int    `json:"series"`
	Total  int    `json:"total"`
}

// Statistics is the viewing-statistics bundle rendered into the
// newsletter's statistics section.
type Statistics struct {
	TotalPlays    int `json:"total_plays"`
	TotalDuration int `json:"total_duration"` // seconds
	MoviesPlays   int `json:"movies_plays"`
	SeriesPlays   int `json:"series_plays"`
	UniqueUsers   int `json:"unique_users"`

	// Growth against the previous equal-length period, percent.
	PlaysGrowthPercentage float64 `json:"plays_growth_percentage"`
	TimeGrowthPercentage  float64 `json:"time_growth_percentage"`
	UsersGrowthPercentage float64 `json:"users_growth_percentage"`

	PreviousTotalPlays     int `json:"previous_total_plays"`
	PreviousTotalWatchTime int `json:"previous_total_watch_time"`
	PreviousUniqueUsers    int `json:"previous_unique_users"`

	TopMovies []MovieStats `json:"top_movies_played"`
	TopShows  []ShowStats  `json:"top_shows_played"`
	TopUsers  []UserStats  `json:"top_users_by_time"`

	PlaysByHour    map[int]int    `json:"plays_by_hour,omitempty"`
	PlaysByWeekday map[string]int `json:"plays_by_weekday,omitempty"`
	DailyViews     []DailyViews   `json:"daily_views_by_type,omitempty"`

	LibraryTotalMovies   int `json:"library_total_movies"`
	LibraryTotalShows    int `json:"library_total_shows"`
	LibraryTotalEpisodes int `json:"library_total_episodes"`
}
