package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCalculateEvolution(t *testing.T) {
	previous := map[string]int{
		"Dune":    1,
		"Heat":    2,
		"Alien":   3,
		"Contact": 4,
	}

	tests := []struct {
		name        string
		title       string
		currentRank int
		wantType    string
		wantValue   int
	}{
		{"absent before is new", "Tenet", 1, EvolutionNew, 0},
		{"moved up", "Alien", 1, EvolutionUp, 2},
		{"moved down", "Dune", 3, EvolutionDown, 2},
		{"same rank", "Heat", 2, EvolutionStable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, value := calculateEvolution(tt.title, tt.currentRank, previous)
			if kind != tt.wantType || value != tt.wantValue {
				t.Errorf("calculateEvolution(%q, %d) = (%q, %d), want (%q, %d)",
					tt.title, tt.currentRank, kind, value, tt.wantType, tt.wantValue)
			}
		})
	}
}

func TestRankByCount(t *testing.T) {
	ranks := rankByCount(map[string]int{"a": 5, "b": 12, "c": 7})

	want := map[string]int{"b": 1, "c": 2, "a": 3}
	for key, rank := range want {
		if ranks[key] != rank {
			t.Errorf("rank[%q] = %d, want %d", key, ranks[key], rank)
		}
	}
}

func tautulliServer(t *testing.T, rows []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if cmd := r.URL.Query().Get("cmd"); cmd != "get_recently_added" {
			t.Errorf("unexpected cmd %q", cmd)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"result": "success",
				"data":   map[string]interface{}{"recently_added": rows},
			},
		})
	}))
}

func TestTautulliRecentlyAddedFiltersWindow(t *testing.T) {
	now := time.Now()
	rows := []map[string]interface{}{
		{
			"title": "Fresh Movie", "media_type": "movie", "rating_key": 11,
			"year": 2026, "added_at": now.Add(-24 * time.Hour).Unix(),
		},
		{
			// added_at as string, outside the window
			"title": "Stale Movie", "media_type": "movie", "rating_key": 12,
			"added_at": fmt.Sprintf("%d", now.Add(-30*24*time.Hour).Unix()),
		},
		{
			"title": "Pilot", "media_type": "episode", "rating_key": 13,
			"grandparent_title": "Some Show", "parent_media_index": 1, "media_index": 2,
			"added_at": now.Add(-48 * time.Hour).Unix(),
		},
	}
	server := tautulliServer(t, rows)
	defer server.Close()

	client := NewTautulli(server.URL, "key", testLogger())
	client.client.Backoff = time.Millisecond

	items, err := client.RecentlyAdded(context.Background(), 7, -1)
	if err != nil {
		t.Fatalf("RecentlyAdded returned error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (stale row filtered)", len(items))
	}
	if items[0].Title != "Fresh Movie" || items[0].MediaType != "movie" {
		t.Errorf("first item = %+v", items[0])
	}

	episode := items[1]
	if episode.MediaType != "episode" || episode.GrandparentTitle != "Some Show" {
		t.Errorf("episode item = %+v", episode)
	}
	if episode.ParentMediaIndex == nil || *episode.ParentMediaIndex != 1 {
		t.Errorf("episode season = %v, want 1", episode.ParentMediaIndex)
	}
	if episode.MediaIndex == nil || *episode.MediaIndex != 2 {
		t.Errorf("episode number = %v, want 2", episode.MediaIndex)
	}
}

func TestTautulliRecentlyAddedHonorsMaxItems(t *testing.T) {
	now := time.Now()
	var rows []map[string]interface{}
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]interface{}{
			"title": fmt.Sprintf("Movie %d", i), "media_type": "movie",
			"rating_key": i, "added_at": now.Add(-time.Hour).Unix(),
		})
	}
	server := tautulliServer(t, rows)
	defer server.Close()

	client := NewTautulli(server.URL, "key", testLogger())
	client.client.Backoff = time.Millisecond

	items, err := client.RecentlyAdded(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("RecentlyAdded returned error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
}

func TestTautulliNotConfigured(t *testing.T) {
	client := NewTautulli("", "", testLogger())
	if _, err := client.RecentlyAdded(context.Background(), 7, -1); err != ErrNotConfigured {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
