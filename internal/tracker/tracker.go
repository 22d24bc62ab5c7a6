package tracker

import (
	"context"
	"errors"
	"fmt"
	"jobtracker/internal/apperrors"
	"log/slog"
	"sync"
	"time"
)

// Notification contexts shown to users.
const (
	msgLaunched     = "Job has been started."
	msgLaunchFailed = "Failed to start job"
	msgFetchFailed  = "Failed to retrieve job status"
)

// MetricsRecorder is an optional interface for recording tracker metrics.
type MetricsRecorder interface {
	RecordLaunch(ctx context.Context, workflowKey string, success bool)
	RecordPoll(ctx context.Context, success bool, durationSeconds float64)
	RecordPollSkipped(ctx context.Context)
	RecordSessionActive(ctx context.Context, delta int64)
	RecordTerminal(ctx context.Context, status string)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the polling interval (default: DefaultInterval).
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.interval = d
	}
}

// WithReconciler sets the reconciler used for every refresh.
func WithReconciler(r Reconciler) Option {
	return func(t *Tracker) {
		t.reconciler = r
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observers = append(t.observers, o)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithClock overrides time.Now for refresh timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker tracks a single job session. It is safe for concurrent use.
//
// Every Launch, Attach, Stop and Close starts a new generation; responses
// belonging to an older generation are discarded when they arrive, so a late
// response can never resurrect a session that has moved on.
type Tracker struct {
	client     Client
	reconciler Reconciler
	scheduler  *Scheduler
	interval   time.Duration
	observers  Observers
	metrics    MetricsRecorder
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context // cancelled by Close, used by scheduled ticks
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	handle        JobHandle
	view          *ViewModel
	lastRefreshed time.Time
	lastErr       error
	generation    uint64
	fetching      bool // a fetch of the current generation is outstanding
	active        bool // last scheduler liveness reported to metrics
	closed        bool

	emitMu   sync.Mutex
	pending  []Event // events waiting for the current drainer
	draining bool
}

// New creates an idle tracker using client for all backend calls.
func New(client Client, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		client:    client,
		scheduler: NewScheduler(),
		interval:  DefaultInterval,
		logger:    slog.With("component", "tracker"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	return t
}

// Launch starts a new job and begins polling it.
//
// Launch is allowed when no session is in progress: from IDLE, STOPPED or a
// terminal state. A failed start leaves the tracker IDLE without polling and
// returns an error classified as apperrors.ErrLaunch.
func (t *Tracker) Launch(ctx context.Context, params LaunchParams) (JobHandle, error) {
	if params.WorkflowKey == "" {
		return "", apperrors.Validation("workflowKey", "workflow key is required")
	}

	t.mu.Lock()
	if err := t.checkOpenLocked("launch"); err != nil {
		t.mu.Unlock()
		return "", err
	}
	if t.state == StateLaunching || t.state == StatePolling {
		state := t.state
		t.mu.Unlock()
		return "", apperrors.InvalidState("launch", string(state))
	}
	t.scheduler.Stop()
	t.nextGenerationLocked()
	t.handle = ""
	t.view = nil
	t.lastRefreshed = time.Time{}
	t.lastErr = nil
	t.state = StateLaunching
	gen := t.generation
	t.mu.Unlock()

	logger := t.logger.With("workflowKey", params.WorkflowKey)

	handle, err := t.client.StartJob(ctx, params.WorkflowKey, params.Payload)
	if err == nil && handle == "" {
		err = apperrors.Launch("backend returned no job id", nil)
	}
	if err != nil && !errors.Is(err, apperrors.ErrLaunch) {
		err = apperrors.Launch(apperrors.ServerMessage(err), err)
	}
	if t.metrics != nil {
		t.metrics.RecordLaunch(ctx, params.WorkflowKey, err == nil)
	}

	t.mu.Lock()
	if t.closed || gen != t.generation {
		// Stopped or closed while the start call was in flight. Keep the
		// handle so the job can still be attached to.
		if err == nil && !t.closed && t.handle == "" {
			t.handle = handle
		}
		t.mu.Unlock()
		logger.Info("Launch superseded, not polling", "jobId", handle)
		return handle, err
	}

	if err != nil {
		t.state = StateIdle
		t.lastErr = err
		snap := t.snapshotLocked()
		t.mu.Unlock()

		logger.Error("Job failed to start", "error", err)
		t.emit(EventError, snap, nil)
		t.emit(EventNotification, snap, failureNotification(msgLaunchFailed, err))
		return "", err
	}

	t.handle = handle
	t.state = StatePolling
	t.scheduler.Start(t.tick, t.interval)
	t.syncActiveLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	logger.Info("Job launched", "jobId", handle, "interval", t.interval)
	t.emit(EventLaunched, snap, nil)
	t.emit(EventNotification, snap, &Notification{Title: "Success", Message: msgLaunched, Severity: SeveritySuccess})
	return handle, nil
}

// Attach starts tracking an existing job.
//
// Attach fetches the status once before returning, then either polls or
// settles in a terminal state. A fetch failure is recorded on the session,
// leaves polling stopped and is returned. Attaching again to the same handle
// is the way to retry after a failure; the last view is kept meanwhile.
func (t *Tracker) Attach(ctx context.Context, handle JobHandle) error {
	if handle == "" {
		return apperrors.Validation("handle", "job id is required")
	}

	t.mu.Lock()
	if err := t.checkOpenLocked("attach"); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.state == StateLaunching {
		t.mu.Unlock()
		return apperrors.InvalidState("attach", string(StateLaunching))
	}
	t.scheduler.Stop()
	t.nextGenerationLocked()
	if handle != t.handle {
		t.view = nil
		t.lastRefreshed = time.Time{}
	}
	t.handle = handle
	t.lastErr = nil
	t.state = StatePolling
	t.syncActiveLocked()
	gen := t.generation
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Info("Attached to job", "jobId", handle)
	t.emit(EventAttached, snap, nil)

	return t.refresh(ctx, gen)
}

// Refresh fetches the status of the current session immediately.
// It is only valid while POLLING; after a transport error a successful
// Refresh resumes polling.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if err := t.checkOpenLocked("refresh"); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.state != StatePolling {
		state := t.state
		t.mu.Unlock()
		return apperrors.InvalidState("refresh", string(state))
	}
	gen := t.generation
	t.mu.Unlock()

	return t.refresh(ctx, gen)
}

// Stop halts polling and keeps the last view for display.
// Stopping an idle or already stopped tracker is a no-op; stopping a
// terminal session returns apperrors.ErrInvalidState.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if t.closed || t.state == StateIdle || t.state == StateStopped {
		t.mu.Unlock()
		return nil
	}
	if t.state.Terminal() {
		state := t.state
		t.mu.Unlock()
		return apperrors.InvalidState("stop", string(state))
	}
	t.scheduler.Stop()
	t.nextGenerationLocked()
	t.state = StateStopped
	t.syncActiveLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Info("Tracking stopped", "jobId", snap.Handle)
	t.emit(EventStopped, snap, nil)
	return nil
}

// Close tears the tracker down: the ticker is released, in-flight ticks are
// cancelled and every later response is discarded. Close is idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.scheduler.Stop()
	t.nextGenerationLocked()
	t.syncActiveLocked()
	handle := t.handle
	t.mu.Unlock()

	t.cancel()
	t.logger.Debug("Tracker closed", "jobId", handle)
	return nil
}

// Snapshot returns a copy of the current session.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// HasSession reports whether a job handle is held.
func (t *Tracker) HasSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != ""
}

// IsRunning reports whether the session is non-terminal and polling.
func (t *Tracker) IsRunning() bool {
	return t.Snapshot().Running()
}

// Severity returns the display severity of the current view.
func (t *Tracker) Severity() Severity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SeverityOf(t.view)
}

// LastRefreshedText formats the last refresh time at call time.
// It returns "" before the first successful refresh.
func (t *Tracker) LastRefreshedText() string {
	t.mu.Lock()
	ts := t.lastRefreshed
	t.mu.Unlock()

	return FormatLastRefreshed(ts)
}

// FormatLastRefreshed renders a refresh time in local wall-clock form.
// The zero time renders as "".
func FormatLastRefreshed(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return "Last updated: " + ts.Local().Format("3:04:05 PM")
}

// ShowStart reports whether launching a new job makes sense: there is no
// session yet, or the current one has a view and is no longer running.
func (t *Tracker) ShowStart() bool {
	snap := t.Snapshot()
	return snap.Handle == "" || (snap.View != nil && !snap.Running())
}

func (t *Tracker) tick() {
	t.mu.Lock()
	gen, state := t.generation, t.state
	t.mu.Unlock()

	if state != StatePolling {
		return
	}
	_ = t.refresh(t.ctx, gen)
}

// refresh performs fetch, reconcile and publish for generation gen.
func (t *Tracker) refresh(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	if t.closed || gen != t.generation {
		t.mu.Unlock()
		return nil
	}
	handle := t.handle
	if t.fetching {
		t.mu.Unlock()
		if t.metrics != nil {
			t.metrics.RecordPollSkipped(ctx)
		}
		t.logger.Debug("Previous fetch still in flight, skipping", "jobId", handle)
		return nil
	}
	t.fetching = true
	t.mu.Unlock()

	logger := t.logger.With("jobId", handle)

	start := time.Now()
	raw, err := t.client.FetchStatus(ctx, handle)
	if t.metrics != nil {
		t.metrics.RecordPoll(ctx, err == nil, time.Since(start).Seconds())
	}
	if err != nil && !errors.Is(err, apperrors.ErrTransport) {
		err = apperrors.Transport("fetchStatus", apperrors.ServerMessage(err), err)
	}

	t.mu.Lock()
	if t.closed || gen != t.generation {
		t.mu.Unlock()
		logger.Debug("Discarding stale status response")
		return err
	}
	t.fetching = false

	if err != nil {
		t.lastErr = err
		t.scheduler.Stop()
		t.syncActiveLocked()
		snap := t.snapshotLocked()
		t.mu.Unlock()

		logger.Error("Status fetch failed, polling stopped", "error", err)
		t.emit(EventError, snap, nil)
		t.emit(EventNotification, snap, failureNotification(msgFetchFailed, err))
		return err
	}

	view := t.reconciler.Reconcile(raw)
	t.view = &view
	t.lastRefreshed = t.now()
	t.lastErr = nil

	var terminal, started bool
	switch {
	case view.Status.Terminal():
		t.scheduler.Stop()
		t.state = terminalState(view.Status)
		terminal = true
	case t.state == StatePolling && !t.scheduler.Active():
		// First fetch after Attach, or a stop that raced with a tick.
		t.scheduler.Start(t.tick, t.interval)
		started = true
	}
	t.syncActiveLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if started {
		logger.Info("Polling started", "interval", t.interval)
	}
	t.emit(EventUpdated, snap, nil)

	if terminal {
		logger.Info("Job reached terminal status", "status", view.Status, "duration", view.Duration)
		if t.metrics != nil {
			t.metrics.RecordTerminal(ctx, string(view.Status))
		}
		t.emit(EventTerminal, snap, nil)
		t.emit(EventNotification, snap, terminalNotification(snap))
	}
	return nil
}

func (t *Tracker) checkOpenLocked(op string) error {
	if t.closed {
		return apperrors.InvalidState(op, "CLOSED")
	}
	return nil
}

func (t *Tracker) nextGenerationLocked() {
	t.generation++
	t.fetching = false
}

func (t *Tracker) syncActiveLocked() {
	active := t.scheduler.Active()
	if active == t.active {
		return
	}
	t.active = active
	if t.metrics == nil {
		return
	}
	delta := int64(1)
	if !active {
		delta = -1
	}
	t.metrics.RecordSessionActive(context.Background(), delta)
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Handle:        t.handle,
		State:         t.state,
		View:          t.view.clone(),
		LastRefreshed: t.lastRefreshed,
		Err:           t.lastErr,
		Polling:       t.scheduler.Active(),
	}
}

// emit queues an event for the observers. The first caller drains the
// queue; events emitted meanwhile, including from inside an observer, are
// appended and delivered by that drainer in order.
func (t *Tracker) emit(typ EventType, snap Snapshot, n *Notification) {
	if len(t.observers) == 0 {
		return
	}
	t.emitMu.Lock()
	t.pending = append(t.pending, Event{
		Type:         typ,
		Time:         t.now(),
		Snapshot:     snap,
		Notification: n,
	})
	if t.draining {
		t.emitMu.Unlock()
		return
	}
	t.draining = true
	for len(t.pending) > 0 {
		e := t.pending[0]
		t.pending[0] = Event{}
		t.pending = t.pending[1:]
		t.emitMu.Unlock()
		t.observers.Notify(e)
		t.emitMu.Lock()
	}
	t.pending = nil
	t.draining = false
	t.emitMu.Unlock()
}

func failureNotification(context string, err error) *Notification {
	msg := context + "."
	if serverMsg := apperrors.ServerMessage(err); serverMsg != "" {
		msg = fmt.Sprintf("%s: %s", context, serverMsg)
	}
	return &Notification{Title: "Error", Message: msg, Severity: SeverityError}
}

func terminalNotification(snap Snapshot) *Notification {
	if snap.View.Status == StatusCompleted {
		return &Notification{
			Title:    "Success",
			Message:  fmt.Sprintf("Job %s completed in %s.", snap.Handle, snap.View.Duration),
			Severity: SeveritySuccess,
		}
	}
	msg := fmt.Sprintf("Job %s finished with status %s.", snap.Handle, snap.View.Status)
	if snap.View.Message != "" {
		msg = fmt.Sprintf("%s %s", msg, snap.View.Message)
	}
	return &Notification{Title: "Error", Message: msg, Severity: SeverityError}
}
