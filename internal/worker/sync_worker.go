package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cashplan/internal/amqp"
	"cashplan/internal/export"
	applog "cashplan/internal/log"
	"cashplan/internal/store"
)

// Consumer delivers project events to a handler until the context is
// cancelled. Satisfied by the AMQP client.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker mirrors persisted projects to an external summary
// destination. It reacts to project events and runs a periodic full
// resync as a backup for lost messages.
type SyncWorker struct {
	storage        store.ProjectLoader
	summaries      export.SummaryWriter
	logger         *applog.Logger
	resyncInterval time.Duration
}

var _ amqp.Handler = (*SyncWorker)(nil)

func NewSyncWorker(storage store.ProjectLoader, summaries export.SummaryWriter, logger *applog.Logger, resyncInterval time.Duration) *SyncWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if resyncInterval <= 0 {
		resyncInterval = 15 * time.Minute
	}
	return &SyncWorker{
		storage:        storage,
		summaries:      summaries,
		logger:         logger.WithComponent(applog.ComponentWorker),
		resyncInterval: resyncInterval,
	}
}

// HandleSync fetches the announced project from the store and exports
// its summary. The message carries only the id, so a stale announcement
// still exports the latest persisted state.
func (w *SyncWorker) HandleSync(ctx context.Context, msg *amqp.ProjectSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing project sync",
		applog.FieldProjectID, msg.ProjectID,
		"revision", msg.Revision)

	doc, err := w.storage.Load(ctx, msg.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			// Deleted between publish and consume; nothing to export.
			w.logger.WarnContext(ctx, "Project gone before sync",
				applog.FieldProjectID, msg.ProjectID)
			return nil
		}
		return fmt.Errorf("load project %s: %w", msg.ProjectID, err)
	}

	if err := w.summaries.WriteSummary(ctx, doc.Project); err != nil {
		return fmt.Errorf("export summary for %s: %w", msg.ProjectID, err)
	}
	return nil
}

// HandleDelete acknowledges a removal. The summary destination holds
// one dashboard per configured sheet, not per project, so there is
// nothing to tear down; the next sync of any project overwrites it.
func (w *SyncWorker) HandleDelete(ctx context.Context, msg *amqp.ProjectDeleteMessage) error {
	w.logger.InfoContext(ctx, "Project deleted upstream",
		applog.FieldProjectID, msg.ProjectID)
	return nil
}

// ResyncAll exports every stored project. Individual failures are
// logged and skipped so one broken project does not starve the rest.
func (w *SyncWorker) ResyncAll(ctx context.Context) error {
	docs, err := w.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load projects for resync: %w", err)
	}

	exported := 0
	for id, doc := range docs {
		if err := w.summaries.WriteSummary(ctx, doc.Project); err != nil {
			w.logger.ErrorContext(ctx, "Resync export failed",
				applog.FieldProjectID, id, applog.FieldError, err)
			continue
		}
		exported++
	}
	w.logger.InfoContext(ctx, "Full resync completed",
		"total", len(docs), "exported", exported)
	return nil
}

// Run consumes project events and drives the periodic full resync. It
// returns when the context is cancelled or consumption fails.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Consume(ctx, w)
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.resyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ResyncAll(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic resync failed", applog.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}
