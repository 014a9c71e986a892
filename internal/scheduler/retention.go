package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ghostarr/ghostarr/internal/generator"
	"github.com/ghostarr/ghostarr/internal/models"
)

// HistoryPruner deletes finished history rows older than a cutoff and
// returns the Ghost post IDs of the deleted rows.
type HistoryPruner interface {
	DeleteOlderThan(cutoff time.Time) ([]string, error)
}

// CredentialStore resolves Ghost credentials for post deletion.
type CredentialStore interface {
	GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error)
}

// Retention prunes old history rows once a day. When DeletePosts is
// set, the Ghost posts created by pruned runs are deleted as well.
type Retention struct {
	history     HistoryPruner
	settings    CredentialStore
	ghost       func(cfg models.ServiceConfig) generator.Publisher
	logger      *slog.Logger
	stopChan    chan struct{}
	interval    time.Duration
	Days        int
	DeletePosts bool
}

func NewRetention(
	history HistoryPruner,
	settings CredentialStore,
	ghost func(cfg models.ServiceConfig) generator.Publisher,
	logger *slog.Logger,
	days int,
) *Retention {
	return &Retention{
		history:  history,
		settings: settings,
		ghost:    ghost,
		logger:   logger.With("component", "retention"),
		stopChan: make(chan struct{}),
		interval: 24 * time.Hour,
		Days:     days,
	}
}

// Start begins the retention loop. A non-positive Days disables pruning.
func (r *Retention) Start(ctx context.Context) {
	if r.Days <= 0 {
		r.logger.Info("history retention disabled")
		return
	}

	r.logger.Info("starting history retention", "days", r.Days, "delete_posts", r.DeletePosts)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.prune(ctx)

	for {
		select {
		case <-ticker.C:
			r.prune(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Retention) Stop() {
	close(r.stopChan)
}

func (r *Retention) prune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -r.Days)

	postIDs, err := r.history.DeleteOlderThan(cutoff)
	if err != nil {
		r.logger.Error("history pruning failed", "error", err)
		return
	}
	if len(postIDs) == 0 {
		return
	}
	r.logger.Info("pruned old history rows", "count", len(postIDs), "cutoff", cutoff.Format(time.RFC3339))

	if !r.DeletePosts {
		return
	}

	creds, err := r.settings.GetServiceConfig(models.ServiceGhost)
	if err != nil || !creds.Configured(models.ServiceGhost) {
		r.logger.Warn("cannot delete pruned posts, Ghost not configured")
		return
	}

	publisher := r.ghost(creds)
	for _, postID := range postIDs {
		if postID == "" {
			continue
		}
		if err := publisher.DeletePost(ctx, postID); err != nil {
			r.logger.Warn("failed to delete Ghost post for pruned run", "post_id", postID, "error", err)
		}
	}
}
