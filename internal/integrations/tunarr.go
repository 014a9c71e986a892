package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// TunarrClient fetches channel lineups and upcoming programming from a
// Tunarr server. Tunarr has no auth; the URL alone configures it.
type TunarrClient struct {
	client *Client
}

func NewTunarr(baseURL string, logger *slog.Logger) *TunarrClient {
	return &TunarrClient{client: NewClient("tunarr", baseURL, logger)}
}

func (t *TunarrClient) configured() bool { return t.client.BaseURL != "" }

func (t *TunarrClient) TestConnection(ctx context.Context) ConnectionStatus {
	if !t.configured() {
		return ConnectionStatus{Message: "Not configured"}
	}

	start := time.Now()
	channels, err := t.Channels(ctx)
	if err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	return ConnectionStatus{
		OK:        true,
		Message:   fmt.Sprintf("Connected, %d channels", len(channels)),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

// Channel is one Tunarr channel.
type Channel struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Name   string `json:"name"`
}

func (t *TunarrClient) Channels(ctx context.Context) ([]Channel, error) {
	if !t.configured() {
		return nil, ErrNotConfigured
	}

	var channels []Channel
	if err := t.client.GetJSON(ctx, "/api/channels", nil, &channels); err != nil {
		return nil, fmt.Errorf("failed to fetch channels: %w", err)
	}
	return channels, nil
}

// UpcomingPrograms returns guide entries for the next `days` days,
// optionally limited to the named channels.
func (t *TunarrClient) UpcomingPrograms(ctx context.Context, days int, channelNames []string) ([]Program, error) {
	if !t.configured() {
		return nil, ErrNotConfigured
	}

	channels, err := t.Channels(ctx)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, name := range channelNames {
		wanted[name] = true
	}

	from := time.Now()
	to := from.AddDate(0, 0, days)
	params := url.Values{}
	params.Set("dateFrom", from.UTC().Format(time.RFC3339))
	params.Set("dateTo", to.UTC().Format(time.RFC3339))

	var programs []Program
	for _, ch := range channels {
		if len(wanted) > 0 && !wanted[ch.Name] && !wanted[strconv.Itoa(ch.Number)] {
			continue
		}

		var guide struct {
			Programs []struct {
				Title   string `json:"title"`
				Start   int64  `json:"start"` // unix millis
				Stop    int64  `json:"stop"`
				Summary string `json:"summary"`
				Icon    string `json:"icon"`
			} `json:"programs"`
		}
		path := "/api/channels/" + ch.ID + "/programming"
		if err := t.client.GetJSON(ctx, path, params, &guide); err != nil {
			return nil, fmt.Errorf("failed to fetch guide for channel %s: %w", ch.Name, err)
		}

		for _, p := range guide.Programs {
			start := time.UnixMilli(p.Start)
			stop := time.UnixMilli(p.Stop)
			programs = append(programs, Program{
				Channel: ch.Name,
				Title:   p.Title,
				Start:   &start,
				Stop:    &stop,
				Summary: p.Summary,
				IconURL: p.Icon,
			})
		}
	}

	return programs, nil
}
