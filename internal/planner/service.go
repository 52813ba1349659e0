package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashplan/internal/core"
	"cashplan/internal/export"
	applog "cashplan/internal/log"
	"cashplan/internal/store"
)

// DefaultSaveDebounce is the trailing-edge delay between the last
// mutation and the persistence write.
const DefaultSaveDebounce = time.Second

// Store is the persistence surface the planner needs.
type Store interface {
	store.ProjectLoader
	store.ProjectWriter
}

// EventPublisher announces persisted changes to downstream consumers.
// A nil publisher disables messaging without changing behavior.
type EventPublisher interface {
	PublishProjectSync(ctx context.Context, projectID string, revision int64) error
	PublishProjectDelete(ctx context.Context, projectID string) error
}

// projectState pairs the live document with its save revision.
type projectState struct {
	doc      store.Document
	revision int64
}

// Planner owns the in-memory projects and serializes every operation
// on them. Mutations apply optimistically: memory first, then a
// debounced best-effort save. A persistence failure never rolls the
// in-memory state back; it is logged, remembered in LastError, and
// retried by the next debounced write.
type Planner struct {
	mu       sync.Mutex
	projects map[string]*projectState
	storage  Store
	events   EventPublisher
	logger   *applog.Logger
	sched    *saveScheduler
	lastErr  error
}

// Option configures a Planner.
type Option func(*Planner)

// WithPublisher attaches an event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(pl *Planner) { pl.events = p }
}

// WithSaveDebounce overrides the persistence debounce delay.
func WithSaveDebounce(d time.Duration) Option {
	return func(pl *Planner) {
		pl.sched = newSaveScheduler(d, pl.saveNow)
	}
}

func New(storage Store, logger *applog.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	p := &Planner{
		projects: make(map[string]*projectState),
		storage:  storage,
		logger:   logger.WithComponent(applog.ComponentPlanner),
	}
	p.sched = newSaveScheduler(DefaultSaveDebounce, p.saveNow)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadAll hydrates the planner from the store.
func (p *Planner) LoadAll(ctx context.Context) error {
	docs, err := p.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.projects = make(map[string]*projectState, len(docs))
	for id, doc := range docs {
		doc.Project.Normalize()
		p.projects[id] = &projectState{doc: doc}
	}
	p.logger.InfoContext(ctx, "Projects loaded", "count", len(docs))
	return nil
}

// Close flushes pending writes and stops the debounce timer.
func (p *Planner) Close() {
	p.sched.Close()
}

// Flush forces any pending debounced write immediately.
func (p *Planner) Flush() {
	p.sched.Flush()
}

// LastError returns the most recent persistence failure, if any. It is
// surfaced as a notification, never as a failed mutation.
func (p *Planner) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// CreateProject adds a new project with its baseline scenario.
func (p *Planner) CreateProject(ctx context.Context, info core.ProjectInfo) (string, error) {
	if err := info.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	proj := core.NewProject(id, info)

	p.mu.Lock()
	p.projects[id] = &projectState{doc: store.NewDocument(*proj)}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Project created",
		applog.FieldProjectID, id, "name", info.Name)
	p.sched.Schedule(id)
	return id, nil
}

// DeleteProject removes a project from memory and the store. The role
// check lives at the transport boundary; the planner assumes the caller
// was authorized.
func (p *Planner) DeleteProject(ctx context.Context, id string) error {
	p.mu.Lock()
	_, ok := p.projects[id]
	delete(p.projects, id)
	p.mu.Unlock()
	if !ok {
		return core.ErrNotFound
	}

	// Never persisted yet is fine: the debounce may not have fired.
	if err := p.storage.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrProjectNotFound) {
		p.recordPersistenceError(ctx, err)
	}
	if p.events != nil {
		if err := p.events.PublishProjectDelete(ctx, id); err != nil {
			p.logger.WarnContext(ctx, "Failed to publish project delete",
				applog.FieldProjectID, id, applog.FieldError, err)
		}
	}
	p.logger.InfoContext(ctx, "Project deleted", applog.FieldProjectID, id)
	return nil
}

// Project returns an independent snapshot of one project.
func (p *Planner) Project(id string) (core.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[id]
	if !ok {
		return core.Project{}, core.ErrNotFound
	}
	return st.doc.Clone().Project, nil
}

// Projects returns snapshots of every loaded project.
func (p *Planner) Projects() []core.Project {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Project, 0, len(p.projects))
	for _, st := range p.projects {
		out = append(out, st.doc.Clone().Project)
	}
	return out
}

// AddCategory validates and appends a category, then recomputes its
// projections in every scenario.
func (p *Planner) AddCategory(ctx context.Context, projectID string, cat core.BudgetCategory) (string, error) {
	cat.ID = core.NewCategoryID()
	if err := cat.Validate(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return "", core.ErrNotFound
	}

	proj := &st.doc.Project
	proj.Categories = append(proj.Categories, cat)
	if err := core.RecomputeProjections(proj, cat.ID); err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "Category added",
		applog.FieldProjectID, projectID,
		applog.FieldCategoryID, cat.ID,
		applog.FieldAmount, cat.Amount)
	p.sched.Schedule(projectID)
	return cat.ID, nil
}

// UpdateCategory replaces a category's fields in place (the id is
// preserved) and recomputes projections.
func (p *Planner) UpdateCategory(ctx context.Context, projectID string, cat core.BudgetCategory) error {
	if err := cat.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	proj := &st.doc.Project
	existing := proj.Category(cat.ID)
	if existing == nil {
		return core.ErrCategoryNotFound
	}
	*existing = cat

	if err := core.RecomputeProjections(proj, cat.ID); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Category updated",
		applog.FieldProjectID, projectID,
		applog.FieldCategoryID, cat.ID,
		applog.FieldAmount, cat.Amount)
	p.sched.Schedule(projectID)
	return nil
}

// DeleteCategory removes a category and cascades the removal of its
// projections and actuals from every scenario.
func (p *Planner) DeleteCategory(ctx context.Context, projectID, categoryID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	proj := &st.doc.Project
	idx := -1
	for i := range proj.Categories {
		if proj.Categories[i].ID == categoryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.ErrCategoryNotFound
	}
	proj.Categories = append(proj.Categories[:idx], proj.Categories[idx+1:]...)
	core.RemoveCategoryData(proj, categoryID)

	p.logger.InfoContext(ctx, "Category deleted",
		applog.FieldProjectID, projectID,
		applog.FieldCategoryID, categoryID)
	p.sched.Schedule(projectID)
	return nil
}

// CreateScenario clones a base scenario under a new name.
func (p *Planner) CreateScenario(ctx context.Context, projectID, name, baseScenarioID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return "", core.ErrNotFound
	}

	id, err := st.doc.Project.CreateScenario(name, baseScenarioID)
	if err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "Scenario created",
		applog.FieldProjectID, projectID,
		applog.FieldScenarioID, id, "name", name)
	p.sched.Schedule(projectID)
	return id, nil
}

// DeleteScenario removes a non-baseline scenario.
func (p *Planner) DeleteScenario(ctx context.Context, projectID, scenarioID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	if err := st.doc.Project.DeleteScenario(scenarioID); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Scenario deleted",
		applog.FieldProjectID, projectID,
		applog.FieldScenarioID, scenarioID)
	p.sched.Schedule(projectID)
	return nil
}

// SwitchScenario moves the current-scenario pointer. Unknown scenario
// ids are silently ignored.
func (p *Planner) SwitchScenario(ctx context.Context, projectID, scenarioID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	before := st.doc.Project.CurrentScenario
	st.doc.Project.SwitchScenario(scenarioID)
	if st.doc.Project.CurrentScenario != before {
		p.logger.InfoContext(ctx, "Scenario switched",
			applog.FieldProjectID, projectID,
			applog.FieldScenarioID, scenarioID)
		p.sched.Schedule(projectID)
	}
	return nil
}

// RecordActual writes an actual-spend entry into the current scenario.
func (p *Planner) RecordActual(ctx context.Context, projectID, categoryID string, month int, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	if err := st.doc.Project.RecordActual(categoryID, month, amount); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Actual recorded",
		applog.FieldProjectID, projectID,
		applog.FieldCategoryID, categoryID,
		applog.FieldMonth, month,
		applog.FieldAmount, amount)
	p.sched.Schedule(projectID)
	return nil
}

// SetAdjustment records an explicit per-scenario budget override.
func (p *Planner) SetAdjustment(ctx context.Context, projectID, scenarioID, categoryID string, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.ErrNotFound
	}

	if err := st.doc.Project.SetAdjustment(scenarioID, categoryID, amount); err != nil {
		return err
	}
	p.sched.Schedule(projectID)
	return nil
}

// Summary reduces the project's categories against one scenario. An
// empty scenarioID means the current scenario.
func (p *Planner) Summary(projectID, scenarioID string) (core.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return core.Summary{}, core.ErrNotFound
	}
	proj := &st.doc.Project
	if scenarioID == "" {
		scenarioID = proj.CurrentScenario
	}
	return core.Summarize(proj, scenarioID), nil
}

// Export wraps the full project document in a versioned envelope.
func (p *Planner) Export(projectID, exportedBy string) (export.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.projects[projectID]
	if !ok {
		return export.Envelope{}, core.ErrNotFound
	}
	return export.NewEnvelope(st.doc.Clone(), exportedBy), nil
}

// Import replaces the project wholesale with the envelope contents.
// Projections are recomputed so the imported document is internally
// consistent with this build's distribution math.
func (p *Planner) Import(ctx context.Context, env export.Envelope) (string, error) {
	doc := env.ProjectData.Clone()
	doc.Project.Normalize()
	if doc.Project.ID == "" {
		doc.Project.ID = uuid.NewString()
	}
	core.RecalculateAll(&doc.Project)
	id := doc.Project.ID

	p.mu.Lock()
	p.projects[id] = &projectState{doc: doc}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Project imported",
		applog.FieldProjectID, id,
		"exported_by", env.ExportedBy,
		"export_date", env.ExportDate)
	p.sched.Schedule(id)
	return id, nil
}

// ApplyRemote reconciles an externally changed document set. Whole
// documents that differ byte-wise from ours replace our copy: last
// writer wins at project granularity, no field-level merge.
func (p *Planner) ApplyRemote(docs map[string]store.Document, err error) {
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Warn("Remote update delivery failed", applog.FieldError, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	replaced := 0
	for id, doc := range docs {
		st, ok := p.projects[id]
		if !ok {
			doc.Project.Normalize()
			p.projects[id] = &projectState{doc: doc.Clone()}
			replaced++
			continue
		}
		if st.doc.Equal(doc) {
			continue
		}
		doc.Project.Normalize()
		st.doc = doc.Clone()
		replaced++
	}
	for id := range p.projects {
		if _, ok := docs[id]; !ok {
			delete(p.projects, id)
			replaced++
		}
	}
	if replaced > 0 {
		p.logger.Info("Applied remote project updates", "changed", replaced)
	}
}

// saveNow persists the given projects. Snapshots are taken under the
// lock; the writes themselves run outside it.
func (p *Planner) saveNow(ids []string) {
	ctx := context.Background()

	type snapshot struct {
		id       string
		doc      store.Document
		revision int64
	}
	p.mu.Lock()
	snaps := make([]snapshot, 0, len(ids))
	for _, id := range ids {
		st, ok := p.projects[id]
		if !ok {
			continue // deleted while the timer was pending
		}
		st.revision++
		snaps = append(snaps, snapshot{id: id, doc: st.doc.Clone(), revision: st.revision})
	}
	p.mu.Unlock()

	failed := 0
	for _, s := range snaps {
		if err := p.storage.Save(ctx, s.id, s.doc); err != nil {
			p.recordPersistenceError(ctx, err)
			// Keep the id dirty so the next debounced save retries it.
			p.sched.MarkDirty(s.id)
			failed++
			continue
		}

		if p.events != nil {
			if err := p.events.PublishProjectSync(ctx, s.id, s.revision); err != nil {
				p.logger.WarnContext(ctx, "Failed to publish project sync",
					applog.FieldProjectID, s.id, applog.FieldError, err)
			}
		}
	}

	// Readiness recovers only once a batch goes through with no losses;
	// a success for one project must not mask a dropped write for
	// another.
	if failed == 0 && len(snaps) > 0 {
		p.mu.Lock()
		p.lastErr = nil
		p.mu.Unlock()
	}
}

func (p *Planner) recordPersistenceError(ctx context.Context, err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.logger.ErrorContext(ctx, "Persistence failure (state kept, will retry on next save)",
		applog.FieldError, err)
}
