package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/example/campus-presence/internal/activity"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/channel"
	"github.com/example/campus-presence/internal/checkin"
	"github.com/example/campus-presence/internal/clock"
	"github.com/example/campus-presence/internal/eventsync"
	"github.com/example/campus-presence/internal/model"
	"github.com/example/campus-presence/internal/notify"
)

const serviceName = "Orchestrator"

// DefaultCheckInMinutes is the planned duration sent with every check-in.
const DefaultCheckInMinutes = 60

// DefaultChannels are the static chat channels.
var DefaultChannels = []model.Channel{
	{ID: "global", Label: "Campus Global"},
	{ID: "study", Label: "Study Hall"},
	{ID: "events", Label: "Events Lounge"},
}

// AuthPrompter is asked to show the sign-in flow when an intent needs a
// signed-in user.
type AuthPrompter interface {
	PromptSignIn()
}

// PrompterFunc adapts a function to AuthPrompter.
type PrompterFunc func()

// PromptSignIn calls f.
func (f PrompterFunc) PromptSignIn() { f() }

// Orchestrator turns user intents into backend calls and keeps the
// client-side state derived from them. Each component guards its own state;
// no lock is held across a backend call, so intents interleave at their
// suspension points.
type Orchestrator struct {
	client    backend.Client
	clock     clock.Clock
	logger    *slog.Logger
	publisher activity.Publisher
	prompter  AuthPrompter

	notes    *notify.Queue
	channels *channel.Registry
	machine  *checkin.Machine
	joined   *checkin.JoinedSet
	events   *eventsync.Loop

	defaultChannel string
	checkInMinutes int

	mu            sync.RWMutex
	session       *backend.Session
	epoch         uint64
	user          *model.User
	stats         *model.Stats
	locations     []model.Location
	activeChannel string
	surface       model.Surface

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}

	lifeMu  sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type options struct {
	clock          clock.Clock
	logger         *slog.Logger
	publisher      activity.Publisher
	store          eventsync.SnapshotStore
	static         []model.Channel
	defaultChannel string
	checkInMinutes int
	interval       time.Duration
	ttl            time.Duration
	prompter       AuthPrompter
	entropy        io.Reader
}

// Option configures an Orchestrator.
type Option func(*options)

// WithClock overrides the clock driving expiry and sync timers.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithPublisher sets the activity publisher.
func WithPublisher(p activity.Publisher) Option { return func(o *options) { o.publisher = p } }

// WithSnapshotStore persists the event list between runs.
func WithSnapshotStore(s eventsync.SnapshotStore) Option { return func(o *options) { o.store = s } }

// WithStaticChannels replaces the default static channels.
func WithStaticChannels(chs []model.Channel) Option { return func(o *options) { o.static = chs } }

// WithDefaultChannel sets the channel selected initially and after leaving
// the active channel.
func WithDefaultChannel(id string) Option { return func(o *options) { o.defaultChannel = id } }

// WithCheckInMinutes sets the planned check-in duration.
func WithCheckInMinutes(n int) Option { return func(o *options) { o.checkInMinutes = n } }

// WithSyncInterval sets the event refresh interval.
func WithSyncInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

// WithNotificationTTL sets how long notifications stay visible.
func WithNotificationTTL(d time.Duration) Option { return func(o *options) { o.ttl = d } }

// WithAuthPrompter sets the sign-in prompt.
func WithAuthPrompter(p AuthPrompter) Option { return func(o *options) { o.prompter = p } }

// WithEntropy overrides the randomness behind notification ids.
func WithEntropy(r io.Reader) Option { return func(o *options) { o.entropy = r } }

// New wires an orchestrator around client. Nothing runs until Start.
func New(client backend.Client, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("application: backend client is required")
	}
	cfg := options{
		static:         DefaultChannels,
		checkInMinutes: DefaultCheckInMinutes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.clock = clock.OrSystem(cfg.clock)
	cfg.logger = defaultLogger(cfg.logger)
	if cfg.publisher == nil {
		cfg.publisher = activity.Nop{}
	}
	if cfg.prompter == nil {
		cfg.prompter = PrompterFunc(func() {})
	}
	if cfg.checkInMinutes <= 0 {
		cfg.checkInMinutes = DefaultCheckInMinutes
	}

	registry := channel.NewRegistry(cfg.static)
	if cfg.defaultChannel == "" {
		if list := registry.List(); len(list) > 0 {
			cfg.defaultChannel = list[0].ID
		}
	}
	if cfg.defaultChannel != "" && !registry.IsStatic(cfg.defaultChannel) {
		return nil, fmt.Errorf("application: default channel %q is not a static channel", cfg.defaultChannel)
	}

	o := &Orchestrator{
		client:         client,
		clock:          cfg.clock,
		logger:         cfg.logger,
		publisher:      cfg.publisher,
		prompter:       cfg.prompter,
		channels:       registry,
		machine:        checkin.NewMachine(),
		joined:         checkin.NewJoinedSet(),
		defaultChannel: cfg.defaultChannel,
		checkInMinutes: cfg.checkInMinutes,
		activeChannel:  cfg.defaultChannel,
		surface:        model.SurfaceDashboard,
		subs:           make(map[chan struct{}]struct{}),
	}

	noteOpts := []notify.Option{notify.WithClock(cfg.clock), notify.WithTTL(cfg.ttl)}
	if cfg.entropy != nil {
		noteOpts = append(noteOpts, notify.WithEntropy(cfg.entropy))
	}
	o.notes = notify.NewQueue(noteOpts...)
	o.notes.OnChange(o.changed)

	syncOpts := []eventsync.Option{
		eventsync.WithClock(cfg.clock),
		eventsync.WithInterval(cfg.interval),
		eventsync.WithLogger(cfg.logger),
	}
	if cfg.store != nil {
		syncOpts = append(syncOpts, eventsync.WithSnapshotStore(cfg.store))
	}
	o.events = eventsync.New(eventsync.SourceFunc(o.fetchEvents), syncOpts...)
	o.events.OnChange(func([]model.Event) { o.changed() })

	return o, nil
}

func (o *Orchestrator) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, o.logger, serviceName, operation, attrs...)
}

func (o *Orchestrator) fetchEvents(ctx context.Context) ([]model.Event, error) {
	records, err := o.client.Events().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return backend.NormalizeEvents(records, o.clock.Now()), nil
}

// Start subscribes to auth changes, loads locations and starts the event
// sync loop. Calling Start twice does nothing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	o.lifeMu.Lock()
	if o.closed {
		o.lifeMu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.lifeMu.Unlock()
		return nil
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.lifeMu.Unlock()

	sessions := o.client.Auth().Watch(runCtx)
	go o.watchAuth(runCtx, sessions)

	if err := o.RefreshLocations(runCtx); err != nil {
		o.loggerWith(runCtx, "Start").WarnContext(runCtx, "initial location load failed", "error", err)
	}

	// Close may run while the locations load; it marks closed before
	// stopping the loop, so a recheck after Start catches it.
	if o.isClosed() {
		return ErrClosed
	}
	o.events.Start(runCtx)
	if o.isClosed() {
		o.events.Stop()
		return ErrClosed
	}
	return nil
}

// Close stops the sync loop, the auth watcher and every notification timer.
// Subscriber channels are closed.
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}
	o.lifeMu.Lock()
	if o.closed {
		o.lifeMu.Unlock()
		return
	}
	o.closed = true
	cancel, done := o.cancel, o.done
	o.lifeMu.Unlock()

	o.events.Stop()
	if cancel != nil {
		cancel()
		<-done
	}
	o.notes.Close()

	o.subMu.Lock()
	for ch := range o.subs {
		close(ch)
	}
	o.subs = make(map[chan struct{}]struct{})
	o.subMu.Unlock()
}

func (o *Orchestrator) isClosed() bool {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	return o.closed
}

func (o *Orchestrator) watchAuth(ctx context.Context, sessions <-chan *backend.Session) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sessions:
			if !ok {
				return
			}
			if epoch, changed := o.applySession(s); changed && s != nil {
				o.loadUserData(ctx, epoch)
			}
		}
	}
}

// applySession installs s as the current session. A different user, or a
// sign-out, bumps the auth epoch and clears every user-derived field;
// locations, events and channels are kept.
func (o *Orchestrator) applySession(s *backend.Session) (uint64, bool) {
	o.mu.Lock()
	prev := o.session
	sameUser := prev != nil && s != nil && prev.UserID == s.UserID
	if sameUser || (prev == nil && s == nil) {
		if s != nil {
			o.session = s
		}
		epoch := o.epoch
		o.mu.Unlock()
		return epoch, false
	}
	o.epoch++
	epoch := o.epoch
	o.session = s
	o.user = nil
	o.stats = nil
	o.machine.Reset()
	o.joined.Reset()
	o.mu.Unlock()

	o.logger.Info("auth state changed", "service", serviceName, "signed_in", s != nil, "epoch", epoch)
	o.changed()
	return epoch, true
}

func (o *Orchestrator) loadUserData(ctx context.Context, epoch uint64) {
	logger := o.loggerWith(ctx, "loadUserData")

	rec, err := o.client.Users().GetProfile(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to load profile", "error", err)
		return
	}
	user := backend.NormalizeUser(rec)
	if !o.setIfCurrent(epoch, func() { o.user = &user }) {
		return
	}

	srec, err := o.client.Users().GetStats(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to load stats", "error", err)
		return
	}
	stats := backend.NormalizeStats(srec)
	o.setIfCurrent(epoch, func() { o.stats = &stats })
}

// setIfCurrent applies fn when the auth epoch has not moved since a call was
// issued. Responses for an older epoch are dropped.
func (o *Orchestrator) setIfCurrent(epoch uint64, fn func()) bool {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return false
	}
	fn()
	o.mu.Unlock()
	o.changed()
	return true
}

func (o *Orchestrator) current(epoch uint64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.epoch == epoch
}

// requireAuth returns the signed-in user id and the auth epoch, prompting
// for sign-in when nobody is signed in.
func (o *Orchestrator) requireAuth() (string, uint64, error) {
	if o.isClosed() {
		return "", 0, ErrClosed
	}
	o.mu.RLock()
	s, epoch := o.session, o.epoch
	o.mu.RUnlock()
	if s == nil {
		o.prompter.PromptSignIn()
		return "", epoch, ErrAuthRequired
	}
	return s.UserID, epoch, nil
}

func (o *Orchestrator) publish(ctx context.Context, kind activity.Kind, userID, subjectID, label string) {
	a := activity.Activity{
		Kind:       kind,
		UserID:     userID,
		SubjectID:  subjectID,
		Label:      label,
		OccurredAt: o.clock.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, a); err != nil {
		o.loggerWith(ctx, "publish", "kind", kind).WarnContext(ctx, "activity not published", "error", err)
	}
}

// resync runs an immediate event tick. Failures stay silent like any other
// sync failure.
func (o *Orchestrator) resync(ctx context.Context) {
	_, _ = o.events.Tick(ctx)
}

// logOutcome records the result of an intent.
func logOutcome(ctx context.Context, logger *slog.Logger, msg string, err error) {
	switch {
	case err == nil:
		logger.InfoContext(ctx, msg)
	case errors.Is(err, ErrStaleResponse):
		logger.DebugContext(ctx, "dropped stale response", "error_kind", ErrorKind(err))
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrClosed):
		logger.InfoContext(ctx, "intent rejected", "error_kind", ErrorKind(err))
	case errors.Is(err, ErrBackend):
		logger.ErrorContext(ctx, "intent failed", "error", err, "error_kind", ErrorKind(err))
	default:
		logger.WarnContext(ctx, "intent refused", "error", err, "error_kind", ErrorKind(err))
	}
}

// changed signals every subscriber without blocking.
func (o *Orchestrator) changed() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives a signal after state changes.
// Signals coalesce; read Snapshot after each one. The returned function
// unsubscribes.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	o.subMu.Lock()
	if o.isClosed() {
		o.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	o.subs[ch] = struct{}{}
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			defer o.subMu.Unlock()
			if _, ok := o.subs[ch]; ok {
				delete(o.subs, ch)
				close(ch)
			}
		})
	}
}
