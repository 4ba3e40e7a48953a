// Package sync implements the polling fallback for backends without
// webhook delivery: it periodically lists issues per configured project,
// diffs them against the stored snapshots, and synthesizes the same
// normalized events a webhook would have produced.
package sync

import (
	"context"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/store"
)

// State represents the current state of a backend sync operation.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

// Status holds the sync state for a single backend instance.
type Status struct {
	Kind     backend.Kind
	Instance string
	State    State
	LastSync time.Time
	Err      error
}

// fetchTimeout is the maximum time allowed for a single sync pass.
const fetchTimeout = 30 * time.Second

// entry holds a registered adapter, its configuration, and its private
// refresh trigger. Each backend loop owns one channel so a refresh for one
// backend can never be consumed and discarded by another's loop.
type entry struct {
	adapter backend.Adapter
	cfg     model.BackendConfig
	trigger chan struct{}
}

// Poller orchestrates background polling of registered backends.
type Poller struct {
	store    store.Store
	entries  []entry
	statuses map[string]*Status
	eventCh  chan store.StoredEvent
	stopCh   chan struct{}
	wg       gosync.WaitGroup
	mu       gosync.Mutex
	running  bool
}

// New creates a new Poller writing through the given store.
func New(s store.Store) *Poller {
	return &Poller{
		store:    s,
		statuses: make(map[string]*Status),
		eventCh:  make(chan store.StoredEvent, 64),
		stopCh:   make(chan struct{}),
	}
}

// instanceKey names one backend instance for status and trigger routing.
func instanceKey(a backend.Adapter) string {
	return fmt.Sprintf("%s/%s", a.Kind(), a.Instance())
}

// Register adds a backend adapter and its configuration to the poller.
func (p *Poller) Register(a backend.Adapter, cfg model.BackendConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entry{
		adapter: a,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	})
	p.statuses[instanceKey(a)] = &Status{
		Kind:     a.Kind(),
		Instance: a.Instance(),
		State:    StateIdle,
	}
}

// Events returns the channel synthesized events are published on. Events
// are also persisted; the channel is best-effort fan-out and drops when
// no consumer keeps up.
func (p *Poller) Events() <-chan store.StoredEvent {
	return p.eventCh
}

// Start launches one polling goroutine per registered backend.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	entries := make([]entry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	for _, e := range entries {
		p.wg.Add(1)
		go p.pollLoop(e)
	}
}

// Stop halts all polling goroutines and waits for them to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// RefreshAll triggers an immediate poll of every registered backend.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	entries := make([]entry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	for _, e := range entries {
		select {
		case e.trigger <- struct{}{}:
		default:
			// Channel full; a poll is already pending for this backend.
		}
	}
}

// Statuses returns a copy of the current per-backend sync statuses.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.statuses))
	for _, st := range p.statuses {
		statuses = append(statuses, *st)
	}
	return statuses
}

// pollLoop drives one backend: an immediate first pass, then interval
// ticks and manual triggers until stopped.
func (p *Poller) pollLoop(e entry) {
	defer p.wg.Done()

	interval := time.Duration(e.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	key := instanceKey(e.adapter)
	p.runSync(key, e)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runSync(key, e)
		case <-e.trigger:
			p.runSync(key, e)
		}
	}
}

// runSync performs one sync pass and records its outcome.
func (p *Poller) runSync(key string, e entry) {
	p.setState(key, StateRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if err := p.syncOnce(ctx, e); err != nil {
		log.Printf("sync %s: %v", key, err)
		p.setState(key, StateError, err)
		return
	}
	p.setState(key, StateIdle, nil)
}

func (p *Poller) setState(key string, state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.statuses[key]; ok {
		st.State = state
		st.Err = err
		if state == StateIdle {
			st.LastSync = time.Now()
		}
	}
}

// syncOnce lists every configured project of one backend, synthesizes
// events for new and changed issues against the stored snapshots, and
// persists both.
func (p *Poller) syncOnce(ctx context.Context, e entry) error {
	kind := string(e.adapter.Kind())
	instance := e.adapter.Instance()

	known, err := p.store.GetSnapshots(ctx, kind, instance)
	if err != nil {
		return err
	}

	var snapshots []store.Snapshot
	for _, pm := range e.cfg.Projects {
		issues, err := e.adapter.ListIssues(ctx, pm.ProjectID, nil)
		if err != nil {
			return fmt.Errorf("listing issues for %s: %w", pm.ProjectID, err)
		}

		for _, issue := range issues {
			snapshots = append(snapshots, store.Snapshot{
				IssueID:   issue.ID,
				ProjectID: issue.ProjectID,
				Title:     issue.Title,
				Status:    issue.Status,
				UpdatedAt: issue.UpdatedAt,
			})

			event := diffIssue(known, issue)
			if event == nil {
				continue
			}
			if err := p.store.SaveEvent(ctx, kind, instance, event); err != nil {
				return err
			}
			p.publish(store.StoredEvent{
				Backend:  kind,
				Instance: instance,
				Event:    *event,
			})
		}
	}

	return p.store.UpsertSnapshots(ctx, kind, instance, snapshots)
}

// diffIssue synthesizes the event one issue's change implies, or nil
// when nothing observable changed.
func diffIssue(known map[string]store.Snapshot, issue *model.Issue) *model.WebhookEvent {
	prev, seen := known[issue.ID]

	if !seen {
		return &model.WebhookEvent{
			Kind:         model.EventIssueCreated,
			ResourceKind: model.KindIssue,
			ResourceID:   issue.ID,
			ProjectID:    issue.ProjectID,
			Timestamp:    time.Now().UTC(),
			Raw:          issue.Raw,
		}
	}

	changes := make(map[string]any)
	if prev.Status != issue.Status {
		changes["status"] = map[string]string{
			"from": string(prev.Status),
			"to":   string(issue.Status),
		}
	}
	if prev.Title != issue.Title {
		changes["title"] = map[string]string{
			"from": prev.Title,
			"to":   issue.Title,
		}
	}
	if len(changes) == 0 && !issue.UpdatedAt.After(prev.UpdatedAt) {
		return nil
	}

	kind := model.EventIssueUpdated
	if prev.Status != model.StatusClosed && issue.Status == model.StatusClosed {
		kind = model.EventIssueClosed
	}

	return &model.WebhookEvent{
		Kind:         kind,
		ResourceKind: model.KindIssue,
		ResourceID:   issue.ID,
		ProjectID:    issue.ProjectID,
		Timestamp:    time.Now().UTC(),
		Changes:      changes,
		Raw:          issue.Raw,
	}
}

// publish offers an event to the fan-out channel without blocking.
func (p *Poller) publish(event store.StoredEvent) {
	select {
	case p.eventCh <- event:
	default:
	}
}
