// Package resource keeps one server-backed value in sync with local edits.
//
// A Resource tracks the outcome of the last fetch (remote), the best known
// merged view (latest) and a caller-owned edit buffer (draft). Fetches are
// tagged with the refresh counter that triggered them; a completion whose tag
// is no longer the newest is discarded. Commits send the draft, then force a
// refresh so latest always ends on the server's answer.
package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Status int

const (
	// StatusIdle means no fetch has been started yet
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Funcs are the server operations behind a Resource. Get is needed to ever
// produce data; Post and Put only for CommitNew and CommitUpdate.
type Funcs[T any] struct {
	Get  func(ctx context.Context) (T, error)
	Post func(ctx context.Context, draft T) error
	Put  func(ctx context.Context, draft T, diff Diff) error
}

// Snapshot is a consistent copy of a Resource's state
type Snapshot[T any] struct {
	Status    Status
	Remote    T
	Err       error
	Latest    T
	HasLatest bool
	Draft     T
	HasDraft  bool
	Counter   uint64
}

type Resource[T any] struct {
	name         string
	funcs        Funcs[T]
	fetchTimeout time.Duration
	logger       zerolog.Logger

	mu            sync.Mutex
	counter       uint64
	issued        bool
	cancelFetch   context.CancelFunc
	status        Status
	remote        T
	remoteErr     error
	latest        T
	hasLatest     bool
	latestVersion uint64
	seeded        bool
	draft         T
	hasDraft      bool
	changed       chan struct{}
	subscribers   map[int]func(Snapshot[T])
	nextSub       int
	seq           uint64

	notifyMu  sync.Mutex
	delivered uint64
}

type Option[T any] func(*Resource[T])

// WithFetchTimeout bounds every Get call. Zero means no bound.
func WithFetchTimeout[T any](d time.Duration) Option[T] {
	return func(r *Resource[T]) {
		r.fetchTimeout = d
	}
}

func WithLogger[T any](logger zerolog.Logger) Option[T] {
	return func(r *Resource[T]) {
		r.logger = logger
	}
}

// WithName labels the resource in log output
func WithName[T any](name string) Option[T] {
	return func(r *Resource[T]) {
		r.name = name
	}
}

func New[T any](funcs Funcs[T], options ...Option[T]) *Resource[T] {
	r := &Resource[T]{
		name:        "resource",
		funcs:       funcs,
		logger:      log.Logger,
		changed:     make(chan struct{}),
		subscribers: make(map[int]func(Snapshot[T])),
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With().Str("resource", r.name).Logger()
	return r
}

// Remote returns the outcome of the current fetch. The first call starts a
// fetch; later calls reuse the current outcome until TriggerRefresh. When a
// fetch is pending, Remote waits for whichever fetch is current when one
// settles, or for ctx.
func (r *Resource[T]) Remote(ctx context.Context) (T, error) {
	var zero T
	if r.funcs.Get == nil {
		return zero, fmt.Errorf("%s get: %w", r.name, ErrUnsupportedOperation)
	}

	r.mu.Lock()
	if !r.issued {
		r.startFetchLocked()
	}
	for r.status == StatusPending {
		changed := r.changed
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-changed:
		}
		r.mu.Lock()
	}
	value, err := r.remote, r.remoteErr
	r.mu.Unlock()
	return value, err
}

// TriggerRefresh increments the refresh counter and starts a fetch tagged
// with the new value. A fetch still in flight is cancelled and its result
// ignored. It returns the new counter.
func (r *Resource[T]) TriggerRefresh() uint64 {
	r.mu.Lock()
	r.counter++
	counter := r.counter
	if r.funcs.Get != nil {
		r.startFetchLocked()
	}
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
	return counter
}

// Refresh triggers a refresh and waits for its outcome
func (r *Resource[T]) Refresh(ctx context.Context) (T, error) {
	r.TriggerRefresh()
	return r.Remote(ctx)
}

func (r *Resource[T]) startFetchLocked() {
	if r.cancelFetch != nil {
		r.cancelFetch()
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	r.cancelFetch = cancel
	r.issued = true
	r.status = StatusPending

	tag := r.counter
	r.logger.Debug().Uint64("tag", tag).Msg("Fetch started")
	go func() {
		defer cancel()
		value, err := r.funcs.Get(ctx)
		r.complete(tag, value, err)
	}()
}

// complete applies a fetch outcome when tag is still the newest issued tag
func (r *Resource[T]) complete(tag uint64, value T, err error) {
	r.mu.Lock()
	if tag != r.counter {
		r.mu.Unlock()
		r.logger.Debug().Uint64("tag", tag).Msg("Discarding superseded fetch")
		return
	}

	r.cancelFetch = nil
	if err != nil {
		var zero T
		r.status, r.remote, r.remoteErr = StatusFailed, zero, err
		r.logger.Warn().Err(err).Uint64("tag", tag).Msg("Fetch failed")
	} else {
		r.status, r.remote, r.remoteErr = StatusSucceeded, value, nil
		r.setLatestLocked(value)
	}
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

// Latest returns the merged view and whether one exists yet
func (r *Resource[T]) Latest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.hasLatest
}

// SetLatest overwrites the merged view. The next successful fetch replaces it.
func (r *Resource[T]) SetLatest(value T) {
	r.mu.Lock()
	r.setLatestLocked(value)
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

func (r *Resource[T]) setLatestLocked(value T) {
	r.latest, r.hasLatest = value, true
	r.latestVersion++
	if !r.seeded {
		r.seeded = true
		if !r.hasDraft {
			r.draft, r.hasDraft = value, true
		}
	}
}

func (r *Resource[T]) State() Snapshot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Resource[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Status:    r.status,
		Remote:    r.remote,
		Err:       r.remoteErr,
		Latest:    r.latest,
		HasLatest: r.hasLatest,
		Draft:     r.draft,
		HasDraft:  r.hasDraft,
		Counter:   r.counter,
	}
}

// Draft returns the edit buffer, falling back to latest and then to the zero
// value when the buffer has not been set.
func (r *Resource[T]) Draft() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasDraft {
		return r.draft
	}
	return r.latest
}

func (r *Resource[T]) SetDraft(value T) {
	r.mu.Lock()
	r.draft, r.hasDraft = value, true
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

// UpdateDraft replaces the draft with update applied to the current draft
func (r *Resource[T]) UpdateDraft(update func(T) T) {
	r.mu.Lock()
	current := r.latest
	if r.hasDraft {
		current = r.draft
	}
	r.draft, r.hasDraft = update(current), true
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

// ResetDraft discards local edits; Draft falls back to latest afterwards
func (r *Resource[T]) ResetDraft() {
	r.mu.Lock()
	var zero T
	r.draft, r.hasDraft = zero, false
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

// CommitUpdate writes the draft through Put. The draft is folded into latest
// straight away, the changed fields are computed against the last known
// server value, and after Put succeeds latest is re-anchored on a forced
// refresh. If Put fails latest is restored and the error returned.
func (r *Resource[T]) CommitUpdate(ctx context.Context) error {
	if r.funcs.Put == nil {
		return fmt.Errorf("%s put: %w", r.name, ErrUnsupportedOperation)
	}

	r.mu.Lock()
	if !r.hasDraft || isEmpty(r.draft) {
		r.mu.Unlock()
		return fmt.Errorf("%s commit: %w", r.name, ErrEmptyDraft)
	}
	draft := r.draft
	prevLatest, prevHasLatest := r.latest, r.hasLatest

	baseline := r.latest
	if r.status == StatusSucceeded {
		baseline = r.remote
	}

	folded, err := merge(r.latest, draft)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%s fold draft: %w", r.name, err)
	}
	r.setLatestLocked(folded)
	foldedVersion := r.latestVersion
	n := r.transitionLocked()
	r.mu.Unlock()
	r.notify(n)

	diff, err := ComputeDiff(baseline, draft)
	if err == nil {
		r.logger.Debug().Strs("changed", diff.Keys()).Msg("Committing update")
		err = r.funcs.Put(ctx, draft, diff)
	}
	if err != nil {
		r.restoreLatest(foldedVersion, prevLatest, prevHasLatest)
		return fmt.Errorf("%s put: %w", r.name, err)
	}

	if _, err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("%s refresh after commit: %w", r.name, err)
	}
	return nil
}

// restoreLatest undoes an optimistic fold unless latest moved on since
func (r *Resource[T]) restoreLatest(foldedVersion uint64, prev T, hadPrev bool) {
	r.mu.Lock()
	if r.latestVersion != foldedVersion {
		r.mu.Unlock()
		return
	}
	r.latest, r.hasLatest = prev, hadPrev
	r.latestVersion++
	n := r.transitionLocked()
	r.mu.Unlock()

	r.notify(n)
}

// CommitNew creates the draft through Post and then refreshes. A non-nil
// value replaces the draft first.
func (r *Resource[T]) CommitNew(ctx context.Context, value *T) error {
	if r.funcs.Post == nil {
		return fmt.Errorf("%s post: %w", r.name, ErrUnsupportedOperation)
	}
	if value != nil {
		r.SetDraft(*value)
	}

	r.mu.Lock()
	if !r.hasDraft || isEmpty(r.draft) {
		r.mu.Unlock()
		return fmt.Errorf("%s commit: %w", r.name, ErrEmptyDraft)
	}
	draft := r.draft
	r.mu.Unlock()

	if err := r.funcs.Post(ctx, draft); err != nil {
		return fmt.Errorf("%s post: %w", r.name, err)
	}
	if _, err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("%s refresh after commit: %w", r.name, err)
	}
	return nil
}

// Subscribe registers fn to receive a snapshot after state changes.
// Snapshots arrive in order; one overtaken by a newer change is skipped.
// fn runs on the goroutine that caused the change, one delivery at a time,
// and must not modify the resource.
func (r *Resource[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

// notification is one state change waiting to be delivered
type notification[T any] struct {
	seq  uint64
	subs []func(Snapshot[T])
	snap Snapshot[T]
}

// transitionLocked wakes Remote waiters and collects what to notify
func (r *Resource[T]) transitionLocked() notification[T] {
	close(r.changed)
	r.changed = make(chan struct{})

	r.seq++
	subs := make([]func(Snapshot[T]), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	return notification[T]{seq: r.seq, subs: subs, snap: r.snapshotLocked()}
}

// notify delivers n unless a newer snapshot has already gone out, so
// subscribers never see state move backwards.
func (r *Resource[T]) notify(n notification[T]) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if n.seq <= r.delivered {
		return
	}
	r.delivered = n.seq
	for _, fn := range n.subs {
		fn(n.snap)
	}
}
