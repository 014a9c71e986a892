package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// TautulliClient talks to the Tautulli API (single /api/v2 endpoint,
// command selected by the cmd query parameter).
type TautulliClient struct {
	client *Client
	apiKey string
}

func NewTautulli(baseURL, apiKey string, logger *slog.Logger) *TautulliClient {
	return &TautulliClient{
		client: NewClient("tautulli", baseURL, logger),
		apiKey: apiKey,
	}
}

func (t *TautulliClient) configured() bool {
	return t.client.BaseURL != "" && t.apiKey != ""
}

// tautulliResponse is the envelope every command returns.
type tautulliResponse struct {
	Response struct {
		Result  string          `json:"result"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"response"`
}

func (t *TautulliClient) command(ctx context.Context, cmd string, params url.Values, data interface{}) error {
	if !t.configured() {
		return ErrNotConfigured
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", t.apiKey)
	params.Set("cmd", cmd)

	var envelope tautulliResponse
	if err := t.client.GetJSON(ctx, "/api/v2", params, &envelope); err != nil {
		return err
	}
	if envelope.Response.Result != "success" {
		return fmt.Errorf("tautulli command %s failed: %s", cmd, envelope.Response.Message)
	}
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Response.Data, data); err != nil {
		return fmt.Errorf("tautulli command %s: decode data: %w", cmd, err)
	}
	return nil
}

// TestConnection probes the server info endpoint.
func (t *TautulliClient) TestConnection(ctx context.Context) ConnectionStatus {
	if !t.configured() {
		return ConnectionStatus{Message: "Not configured"}
	}

	start := time.Now()
	var info struct {
		PMSName    string `json:"pms_name"`
		PMSVersion string `json:"pms_version"`
	}
	if err := t.command(ctx, "get_server_info", nil, &info); err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	return ConnectionStatus{
		OK:        true,
		Message:   fmt.Sprintf("Connected to %s", info.PMSName),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

// flexInt tolerates Tautulli returning numbers as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		// Tolerate floats.
		var fl float64
		if err2 := json.Unmarshal(b, &fl); err2 != nil {
			return err
		}
		n = int(fl)
	}
	*f = flexInt(n)
	return nil
}

type recentlyAddedRow struct {
	Title            string  `json:"title"`
	Year             flexInt `json:"year"`
	MediaType        string  `json:"media_type"`
	RatingKey        flexInt `json:"rating_key"`
	Thumb            string  `json:"thumb"`
	Art              string  `json:"art"`
	AddedAt          flexInt `json:"added_at"`
	GrandparentTitle string  `json:"grandparent_title"`
	ParentMediaIndex flexInt `json:"parent_media_index"`
	MediaIndex       flexInt `json:"media_index"`
}

// RecentlyAdded fetches media added in the last `days` days. maxItems -1
// means no limit (the request still caps at 100 rows).
func (t *TautulliClient) RecentlyAdded(ctx context.Context, days, maxItems int) ([]MediaItem, error) {
	if !t.configured() {
		return nil, ErrNotConfigured
	}

	count := 100
	if maxItems > 0 {
		count = maxItems
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))

	var data struct {
		RecentlyAdded []recentlyAddedRow `json:"recently_added"`
	}
	if err := t.command(ctx, "get_recently_added", params, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch recently added: %w", err)
	}

	since := time.Now().AddDate(0, 0, -days)
	var items []MediaItem
	for _, row := range data.RecentlyAdded {
		if row.AddedAt == 0 {
			continue
		}
		added := time.Unix(int64(row.AddedAt), 0)
		if added.Before(since) {
			continue
		}

		mediaType := "movie"
		if row.MediaType == "episode" {
			mediaType = "episode"
		}

		item := MediaItem{
			Title:     row.Title,
			MediaType: mediaType,
			RatingKey: strconv.Itoa(int(row.RatingKey)),
			Thumb:     row.Thumb,
			Art:       row.Art,
			AddedAt:   &added,
		}
		if row.Year != 0 {
			year := int(row.Year)
			item.Year = &year
		}
		if row.GrandparentTitle != "" {
			item.GrandparentTitle = row.GrandparentTitle
			if row.ParentMediaIndex != 0 {
				season := int(row.ParentMediaIndex)
				item.ParentMediaIndex = &season
			}
			if row.MediaIndex != 0 {
				episode := int(row.MediaIndex)
				item.MediaIndex = &episode
			}
		}
		items = append(items, item)

		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}

	return items, nil
}

type homeStatRow struct {
	Title         string  `json:"title"`
	Year          flexInt `json:"year"`
	Thumb         string  `json:"thumb"`
	TotalPlays    flexInt `json:"total_plays"`
	TotalDuration flexInt `json:"total_duration"`
	UserID        flexInt `json:"user_id"`
	User          string  `json:"user"`
	FriendlyName  string  `json:"friendly_name"`
}

type homeStat struct {
	StatID string        `json:"stat_id"`
	Rows   []homeStatRow `json:"rows"`
}

// Statistics assembles the viewing-statistics bundle. Comparison data is
// best effort: a failure fetching the previous period degrades to "new"
// evolution markers instead of failing the call.
func (t *TautulliClient) Statistics(ctx context.Context, days int, includeComparison bool) (*Statistics, error) {
	if !t.configured() {
		return nil, ErrNotConfigured
	}

	stats := &Statistics{
		PlaysByHour:    make(map[int]int),
		PlaysByWeekday: make(map[string]int),
	}

	if err := t.fetchHomeStats(ctx, stats, days); err != nil {
		return nil, fmt.Errorf("failed to fetch home stats: %w", err)
	}
	if err := t.fetchLibraryTotals(ctx, stats); err != nil {
		t.client.Logger.Warn("library totals unavailable", "error", err)
	}
	if err := t.fetchPlaysByDate(ctx, stats, days); err != nil {
		t.client.Logger.Warn("plays by date unavailable", "error", err)
	}
	if err := t.fetchPlaysGraph(ctx, stats, days, "get_plays_by_hourofday", graphHour); err != nil {
		t.client.Logger.Warn("plays by hour unavailable", "error", err)
	}
	if err := t.fetchPlaysGraph(ctx, stats, days, "get_plays_by_dayofweek", graphWeekday); err != nil {
		t.client.Logger.Warn("plays by weekday unavailable", "error", err)
	}

	if includeComparison {
		t.applyComparison(ctx, stats, days)
	}

	return stats, nil
}

func (t *TautulliClient) fetchHomeStats(ctx context.Context, stats *Statistics, days int) error {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days))
	params.Set("stats_count", "10")

	var home []homeStat
	if err := t.command(ctx, "get_home_stats", params, &home); err != nil {
		return err
	}

	users := map[int]bool{}
	for _, stat := range home {
		switch stat.StatID {
		case "top_movies":
			for _, row := range stat.Rows {
				stats.TopMovies = append(stats.TopMovies, MovieStats{
					Title:         row.Title,
					Plays:         int(row.TotalPlays),
					TotalDuration: int(row.TotalDuration),
					Year:          yearString(int(row.Year)),
					Thumb:         row.Thumb,
				})
				stats.MoviesPlays += int(row.TotalPlays)
			}
		case "top_tv":
			for _, row := range stat.Rows {
				stats.TopShows = append(stats.TopShows, ShowStats{
					Title:         row.Title,
					Plays:         int(row.TotalPlays),
					TotalDuration: int(row.TotalDuration),
					Year:          yearString(int(row.Year)),
					Thumb:         row.Thumb,
				})
				stats.SeriesPlays += int(row.TotalPlays)
			}
		case "top_users":
			for _, row := range stat.Rows {
				stats.TopUsers = append(stats.TopUsers, UserStats{
					Username:     row.User,
					UserID:       int(row.UserID),
					FriendlyName: row.FriendlyName,
					Plays:        int(row.TotalPlays),
					WatchTime:    int(row.TotalDuration),
				})
				users[int(row.UserID)] = true
				stats.TotalDuration += int(row.TotalDuration)
			}
		}
	}

	stats.TotalPlays = stats.MoviesPlays + stats.SeriesPlays
	stats.UniqueUsers = len(users)
	return nil
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func (t *TautulliClient) fetchLibraryTotals(ctx context.Context, stats *Statistics) error {
	var libraries []struct {
		SectionType string  `json:"section_type"`
		Count       flexInt `json:"count"`
		ChildCount  flexInt `json:"child_count"`
	}
	if err := t.command(ctx, "get_libraries", nil, &libraries); err != nil {
		return err
	}

	for _, lib := range libraries {
		switch lib.SectionType {
		case "movie":
			stats.LibraryTotalMovies += int(lib.Count)
		case "show":
			stats.LibraryTotalShows += int(lib.Count)
			stats.LibraryTotalEpisodes += int(lib.ChildCount)
		}
	}
	return nil
}

// graphData is the shape of Tautulli's graph commands: category labels
// plus one series of data points per content type.
type graphData struct {
	Categories []string `json:"categories"`
	Series     []struct {
		Name string    `json:"name"`
		Data []flexInt `json:"data"`
	} `json:"series"`
}

func (t *TautulliClient) fetchPlaysByDate(ctx context.Context, stats *Statistics, days int) error {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days))

	var graph graphData
	if err := t.command(ctx, "get_plays_by_date", params, &graph); err != nil {
		return err
	}

	for i, day := range graph.Categories {
		entry := DailyViews{Day: day}
		for _, series := range graph.Series {
			if i >= len(series.Data) {
				continue
			}
			count := int(series.Data[i])
			switch series.Name {
			case "Movies":
				entry.Movies = count
			case "TV":
				entry.Series = count
			}
			entry.Total += count
		}
		stats.DailyViews = append(stats.DailyViews, entry)
	}
	return nil
}

type graphKind int

const (
	graphHour graphKind = iota
	graphWeekday
)

func (t *TautulliClient) fetchPlaysGraph(ctx context.Context, stats *Statistics, days int, cmd string, kind graphKind) error {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days))

	var graph graphData
	if err := t.command(ctx, cmd, params, &graph); err != nil {
		return err
	}

	for i, label := range graph.Categories {
		total := 0
		for _, series := range graph.Series {
			if i < len(series.Data) {
				total += int(series.Data[i])
			}
		}
		switch kind {
		case graphHour:
			if hour, err := strconv.Atoi(label); err == nil {
				stats.PlaysByHour[hour] = total
			}
		case graphWeekday:
			stats.PlaysByWeekday[label] = total
		}
	}
	return nil
}

// applyComparison fills previous-period totals, growth percentages and
// per-item evolution markers. Never fails: missing data leaves the
// rankings marked "new".
func (t *TautulliClient) applyComparison(ctx context.Context, stats *Statistics, days int) {
	previous, err := t.previousPeriodTotals(ctx, stats, days)
	if err != nil {
		t.client.Logger.Warn("previous period stats unavailable", "error", err)
	} else {
		stats.PreviousTotalPlays = previous.plays
		stats.PreviousTotalWatchTime = previous.duration
		stats.PreviousUniqueUsers = previous.users
		stats.PlaysGrowthPercentage = growth(stats.TotalPlays, previous.plays)
		stats.TimeGrowthPercentage = growth(stats.TotalDuration, previous.duration)
		stats.UsersGrowthPercentage = growth(stats.UniqueUsers, previous.users)
	}

	rankings, err := t.previousRankings(ctx, days)
	if err != nil {
		t.client.Logger.Warn("previous rankings unavailable", "error", err)
		rankings = previousRankings{}
	}

	for i := range stats.TopMovies {
		kind, value := calculateEvolution(stats.TopMovies[i].Title, i+1, rankings.movies)
		stats.TopMovies[i].EvolutionType = kind
		stats.TopMovies[i].EvolutionValue = value
	}
	for i := range stats.TopShows {
		kind, value := calculateEvolution(stats.TopShows[i].Title, i+1, rankings.shows)
		stats.TopShows[i].EvolutionType = kind
		stats.TopShows[i].EvolutionValue = value
	}
	for i := range stats.TopUsers {
		kind, value := calculateEvolution(stats.TopUsers[i].Username, i+1, rankings.users)
		stats.TopUsers[i].EvolutionType = kind
		stats.TopUsers[i].EvolutionValue = value
	}
}

type periodTotals struct {
	plays    int
	duration int
	users    int
}

// previousPeriodTotals derives the prior period by fetching twice the
// window and subtracting the current totals.
func (t *TautulliClient) previousPeriodTotals(ctx context.Context, current *Statistics, days int) (periodTotals, error) {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days*2))
	params.Set("stats_count", "10")

	var home []homeStat
	if err := t.command(ctx, "get_home_stats", params, &home); err != nil {
		return periodTotals{}, err
	}

	doubled := periodTotals{}
	users := map[int]bool{}
	for _, stat := range home {
		switch stat.StatID {
		case "top_movies", "top_tv":
			for _, row := range stat.Rows {
				doubled.plays += int(row.TotalPlays)
			}
		case "top_users":
			for _, row := range stat.Rows {
				doubled.duration += int(row.TotalDuration)
				users[int(row.UserID)] = true
			}
		}
	}
	doubled.users = len(users)

	prev := periodTotals{
		plays:    doubled.plays - current.TotalPlays,
		duration: doubled.duration - current.TotalDuration,
		users:    doubled.users - current.UniqueUsers,
	}
	if prev.plays < 0 {
		prev.plays = 0
	}
	if prev.duration < 0 {
		prev.duration = 0
	}
	if prev.users < 0 {
		prev.users = 0
	}
	return prev, nil
}

type previousRankings struct {
	movies map[string]int
	shows  map[string]int
	users  map[string]int
}

// previousRankings rebuilds play-count rankings for the period before
// the current one from the raw history.
func (t *TautulliClient) previousRankings(ctx context.Context, days int) (previousRankings, error) {
	end := time.Now().AddDate(0, 0, -days)
	start := end.AddDate(0, 0, -days)

	params := url.Values{}
	params.Set("after", start.Format("2006-01-02"))
	params.Set("before", end.Format("2006-01-02"))
	params.Set("length", "1000")

	var data struct {
		Data []struct {
			MediaType        string  `json:"media_type"`
			Title            string  `json:"title"`
			GrandparentTitle string  `json:"grandparent_title"`
			User             string  `json:"user"`
			Duration         flexInt `json:"duration"`
		} `json:"data"`
	}
	if err := t.command(ctx, "get_history", params, &data); err != nil {
		return previousRankings{}, err
	}

	moviePlays := map[string]int{}
	showPlays := map[string]int{}
	userTime := map[string]int{}
	for _, row := range data.Data {
		switch row.MediaType {
		case "movie":
			moviePlays[row.Title]++
		case "episode":
			if row.GrandparentTitle != "" {
				showPlays[row.GrandparentTitle]++
			}
		}
		if row.User != "" {
			userTime[row.User] += int(row.Duration)
		}
	}

	return previousRankings{
		movies: rankByCount(moviePlays),
		shows:  rankByCount(showPlays),
		users:  rankByCount(userTime),
	}, nil
}

// rankByCount converts counts to 1-based ranks, highest count first.
func rankByCount(counts map[string]int) map[string]int {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, entry{k, c})
	}
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].count > entries[i].count {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	ranks := make(map[string]int, len(entries))
	for i, e := range entries {
		ranks[e.key] = i + 1
	}
	return ranks
}

// calculateEvolution classifies a ranked item against the previous
// period: absent before is "new", otherwise the rank delta decides
// up/down/stable. The value is how many places the item moved.
func calculateEvolution(title string, currentRank int, previous map[string]int) (string, int) {
	prevRank, ok := previous[title]
	if !ok {
		return EvolutionNew, 0
	}

	delta := prevRank - currentRank
	switch {
	case delta > 0:
		return EvolutionUp, delta
	case delta < 0:
		return EvolutionDown, -delta
	default:
		return EvolutionStable, 0
	}
}

func growth(current, previous int) float64 {
	if previous == 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}
