package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cashplan/internal/amqp"
	"cashplan/internal/core"
	"cashplan/internal/store"
	"cashplan/internal/store/memory"
)

type recordingSummaryWriter struct {
	mu       sync.Mutex
	projects []string
	fail     bool
}

func (r *recordingSummaryWriter) WriteSummary(_ context.Context, p core.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sheets unavailable")
	}
	r.projects = append(r.projects, p.ID)
	return nil
}

func (r *recordingSummaryWriter) written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.projects))
	copy(out, r.projects)
	return out
}

func seedStore(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, id := range ids {
		p := core.NewProject(id, core.ProjectInfo{Name: "Project " + id})
		if err := st.Save(context.Background(), id, store.NewDocument(*p)); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return st
}

func TestHandleSyncExportsStoredProject(t *testing.T) {
	st := seedStore(t, "p1")
	sw := &recordingSummaryWriter{}
	w := NewSyncWorker(st, sw, nil, time.Minute)

	msg := amqp.NewProjectSyncMessage("p1", 3)
	if err := w.HandleSync(context.Background(), msg); err != nil {
		t.Fatalf("HandleSync: %v", err)
	}
	if got := sw.written(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("written = %v", got)
	}
}

func TestHandleSyncMissingProjectIsNotAnError(t *testing.T) {
	st := seedStore(t)
	sw := &recordingSummaryWriter{}
	w := NewSyncWorker(st, sw, nil, time.Minute)

	msg := amqp.NewProjectSyncMessage("ghost", 1)
	if err := w.HandleSync(context.Background(), msg); err != nil {
		t.Fatalf("expected missing project to be skipped, got %v", err)
	}
	if len(sw.written()) != 0 {
		t.Fatal("export happened for missing project")
	}
}

func TestHandleSyncPropagatesExportFailure(t *testing.T) {
	st := seedStore(t, "p1")
	sw := &recordingSummaryWriter{fail: true}
	w := NewSyncWorker(st, sw, nil, time.Minute)

	msg := amqp.NewProjectSyncMessage("p1", 1)
	if err := w.HandleSync(context.Background(), msg); err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
}

func TestHandleDeleteIsANoOp(t *testing.T) {
	w := NewSyncWorker(seedStore(t), &recordingSummaryWriter{}, nil, time.Minute)
	if err := w.HandleDelete(context.Background(), amqp.NewProjectDeleteMessage("p1")); err != nil {
		t.Fatalf("HandleDelete: %v", err)
	}
}

func TestResyncAllSkipsFailuresAndContinues(t *testing.T) {
	st := seedStore(t, "p1", "p2", "p3")
	sw := &recordingSummaryWriter{}
	w := NewSyncWorker(st, sw, nil, time.Minute)

	if err := w.ResyncAll(context.Background()); err != nil {
		t.Fatalf("ResyncAll: %v", err)
	}
	if got := sw.written(); len(got) != 3 {
		t.Fatalf("exported %d projects, want 3", len(got))
	}
}

type blockingConsumer struct{}

func (blockingConsumer) Consume(ctx context.Context, _ amqp.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w := NewSyncWorker(seedStore(t), &recordingSummaryWriter{}, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, blockingConsumer{}) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
