// Package scheduler drives the render timeline. A single goroutine owns the
// active plugin and issues at most one frame job at a time; ticks that find
// a job still running are skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/light"
	"github.com/lightshow/lightshow/internal/protocol"
)

var (
	// ErrNoAnimation is returned when a command needs an active animation
	// and none is selected or it is still starting.
	ErrNoAnimation = errors.New("no active animation")
	// ErrStopped is returned for commands sent after Run returned.
	ErrStopped = errors.New("scheduler stopped")
)

// Stale frame policies.
const (
	StaleLast  = "last"
	StaleBlack = "black"
)

// Options configure a Scheduler.
type Options struct {
	TickInterval time.Duration
	// Points is the configured light count, used for black frames.
	Points int
	// StaleFrame chooses what is shown when a frame job fails.
	StaleFrame string
	// RenderTimeout bounds each call to the light client. Rendering runs
	// beside the timeline; a frame still waiting when the next one arrives
	// is replaced.
	RenderTimeout time.Duration
	Logger        *slog.Logger
}

// Status is a snapshot of the scheduler.
type Status struct {
	Animation  string    `json:"animation"`
	Name       string    `json:"name,omitempty"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	InFlight   bool      `json:"in_flight"`
	Ticks      uint64    `json:"ticks"`
	Frames     uint64    `json:"frames"`
	Skipped    uint64    `json:"skipped"`
	Failed     uint64    `json:"failed"`
	Discarded  uint64    `json:"discarded"`
	Superseded uint64    `json:"superseded"`
	LastFrame  time.Time `json:"last_frame"`
}

type commandKind int

const (
	cmdSelect commandKind = iota
	cmdRespawn
	cmdSetParameters
	cmdRestart
	cmdActive
)

type command struct {
	kind   commandKind
	id     string
	values animation.Values
	reply  chan reply
}

type reply struct {
	plugin Plugin
	err    error
}

type job struct {
	gen     uint64
	plugin  Plugin
	t       float64
	params  []animation.Values
	restart bool
}

type jobResult struct {
	gen   uint64
	frame animation.Frame
	err   error
}

type launchResult struct {
	gen    uint64
	id     string
	plugin Plugin
	err    error
}

// Scheduler renders the active animation to a light client.
type Scheduler struct {
	launcher Launcher
	router   Router
	client   light.Client
	opts     Options
	logger   *slog.Logger

	cmds     chan command
	results  chan jobResult
	launched chan launchResult
	frames   chan animation.Frame
	quit     chan struct{}

	running bool
	runMu   sync.Mutex

	statusMu sync.RWMutex
	status   Status

	wg         sync.WaitGroup
	superseded atomic.Uint64

	// owned by the Run goroutine
	gen          uint64
	active       string
	plugin       Plugin
	launching    bool
	unusable     error
	inFlight     bool
	cancelJob    context.CancelFunc
	cancelLaunch context.CancelFunc
	pending      []animation.Values
	restart      bool
	origin       time.Time
	last         animation.Frame
	counters     Status
}

// New creates a scheduler. router may be nil when no events are routed.
func New(launcher Launcher, router Router, client light.Client, opts Options) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 25 * time.Millisecond
	}
	if opts.StaleFrame == "" {
		opts.StaleFrame = StaleLast
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if client == nil {
		client = light.Discard{}
	}
	return &Scheduler{
		launcher: launcher,
		router:   router,
		client:   client,
		opts:     opts,
		logger:   opts.Logger.With("component", "scheduler"),
		cmds:     make(chan command),
		results:  make(chan jobResult),
		launched: make(chan launchResult),
		frames:   make(chan animation.Frame, 1),
		quit:     make(chan struct{}),
		status:   Status{State: "idle"},
	}
}

// Run drives the timeline until ctx is cancelled. If initial is not empty
// that animation is selected first.
func (s *Scheduler) Run(ctx context.Context, initial string) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("Starting scheduler",
		"tick_interval", s.opts.TickInterval,
		"stale_frame", s.opts.StaleFrame,
		"points", s.opts.Points,
	)

	s.wg.Add(1)
	go s.renderLoop(ctx)

	if initial != "" {
		s.selectAnimation(ctx, initial)
	}
	s.publish()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		var done <-chan struct{}
		if s.plugin != nil && s.unusable == nil {
			done = s.plugin.Done()
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, shutting down")
			s.shutdown()
			return ctx.Err()
		case cmd := <-s.cmds:
			s.handle(ctx, cmd)
		case r := <-s.results:
			s.finish(r)
		case r := <-s.launched:
			s.activate(r)
		case <-done:
			err := s.plugin.Err()
			if err == nil {
				err = protocol.ErrClosed
			}
			s.markUnusable(err)
		case <-ticker.C:
			s.tick(ctx)
		}
		s.publish()
	}
}

func (s *Scheduler) shutdown() {
	if s.cancelJob != nil {
		s.cancelJob()
	}
	if s.cancelLaunch != nil {
		s.cancelLaunch()
	}
	close(s.quit)
	if s.plugin != nil {
		s.plugin.Shutdown()
		s.plugin = nil
	}
	s.detach()
	s.wg.Wait()
	s.publish()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) handle(ctx context.Context, cmd command) {
	var r reply
	switch cmd.kind {
	case cmdSelect:
		s.selectAnimation(ctx, cmd.id)
	case cmdRespawn:
		if s.active == "" {
			r.err = ErrNoAnimation
			break
		}
		s.selectAnimation(ctx, s.active)
	case cmdSetParameters:
		if r.err = s.usable(); r.err != nil {
			break
		}
		if err := animation.CheckValues(s.plugin.CachedSchema(), cmd.values); err != nil {
			r.err = protocol.NewError(protocol.CodeInvalidParams, err.Error(), nil)
			break
		}
		s.pending = append(s.pending, cmd.values.Clone())
	case cmdRestart:
		if r.err = s.usable(); r.err != nil {
			break
		}
		s.restart = true
	case cmdActive:
		if r.err = s.usable(); r.err == nil {
			r.plugin = s.plugin
		}
	}
	cmd.reply <- r
}

func (s *Scheduler) usable() error {
	if s.unusable != nil {
		return fmt.Errorf("animation %s unusable: %w", s.active, s.unusable)
	}
	if s.plugin == nil {
		return ErrNoAnimation
	}
	return nil
}

// selectAnimation makes id the active animation. Interest in the previous
// plugin's outstanding frame is dropped at once and its process is stopped
// in the background.
func (s *Scheduler) selectAnimation(ctx context.Context, id string) {
	s.gen++
	if s.cancelJob != nil {
		s.cancelJob()
		s.cancelJob = nil
	}
	s.inFlight = false
	if s.cancelLaunch != nil {
		s.cancelLaunch()
		s.cancelLaunch = nil
	}
	if s.plugin != nil {
		s.plugin.Shutdown()
		s.plugin = nil
	}
	s.detach()
	s.dropQueuedFrame()

	s.active = id
	s.unusable = nil
	s.pending = nil
	s.restart = false
	s.launching = true
	s.last = animation.Frame{}

	s.logger.Info("Selecting animation", "animation", id, "generation", s.gen)

	lctx, cancel := context.WithCancel(ctx)
	s.cancelLaunch = cancel
	gen := s.gen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p, err := s.launcher.Launch(lctx, id)
		select {
		case s.launched <- launchResult{gen: gen, id: id, plugin: p, err: err}:
		case <-s.quit:
			if p != nil {
				p.Shutdown()
			}
		}
	}()
}

func (s *Scheduler) activate(r launchResult) {
	if r.gen != s.gen {
		if r.plugin != nil {
			r.plugin.Shutdown()
		}
		return
	}
	s.launching = false
	if s.cancelLaunch != nil {
		s.cancelLaunch()
		s.cancelLaunch = nil
	}
	if r.err != nil {
		s.unusable = r.err
		s.logger.Error("Animation failed to start", "animation", r.id, "error", r.err)
		return
	}

	s.plugin = r.plugin
	s.origin = time.Now()
	if s.router != nil {
		s.router.SetDestination(s.plugin)
	}
	s.logger.Info("Animation active", "animation", r.id, "name", s.plugin.Name())
}

func (s *Scheduler) detach() {
	if s.router != nil {
		s.router.SetDestination(nil)
	}
}

func (s *Scheduler) markUnusable(err error) {
	if s.unusable != nil {
		return
	}
	s.unusable = err
	s.detach()
	s.logger.Error("Animation unusable until respawned", "animation", s.active, "error", err)
}

func (s *Scheduler) tick(ctx context.Context) {
	s.counters.Ticks++
	if s.plugin == nil || s.unusable != nil {
		return
	}
	if s.inFlight {
		s.counters.Skipped++
		return
	}

	now := time.Now()
	if s.restart {
		s.origin = now
	}
	j := job{
		gen:     s.gen,
		plugin:  s.plugin,
		t:       now.Sub(s.origin).Seconds(),
		params:  s.pending,
		restart: s.restart,
	}
	s.pending = nil
	s.restart = false

	jctx, cancel := context.WithCancel(ctx)
	s.cancelJob = cancel
	s.inFlight = true
	s.wg.Add(1)
	go s.run(jctx, j)
}

// run executes one job: queued parameter updates in order, an optional
// restart, then the frame.
func (s *Scheduler) run(ctx context.Context, j job) {
	defer s.wg.Done()

	r := jobResult{gen: j.gen}
	r.frame, r.err = s.execute(ctx, j)

	select {
	case s.results <- r:
	case <-s.quit:
	}
}

func (s *Scheduler) execute(ctx context.Context, j job) (animation.Frame, error) {
	for _, vs := range j.params {
		if err := j.plugin.SetParameters(ctx, vs); err != nil {
			if fatal(err) {
				return animation.Frame{}, err
			}
			s.logger.Warn("Parameter update rejected", "error", err)
		}
	}
	if j.restart {
		if err := j.plugin.Restart(ctx); err != nil {
			if fatal(err) {
				return animation.Frame{}, err
			}
			s.logger.Warn("Restart failed", "error", err)
		}
	}
	return j.plugin.Frame(ctx, j.t)
}

func fatal(err error) bool {
	return errors.Is(err, protocol.ErrTransport) || errors.Is(err, protocol.ErrClosed)
}

func (s *Scheduler) finish(r jobResult) {
	if r.gen != s.gen {
		s.counters.Discarded++
		return
	}
	s.inFlight = false
	if s.cancelJob != nil {
		s.cancelJob()
		s.cancelJob = nil
	}

	if r.err != nil {
		s.counters.Failed++
		if fatal(r.err) {
			s.markUnusable(r.err)
		} else {
			s.logger.Warn("Frame failed", "animation", s.active, "error", r.err)
		}
		s.render(s.fallback())
		return
	}

	s.counters.Frames++
	s.counters.LastFrame = time.Now()
	s.last = r.frame
	s.render(r.frame)
}

func (s *Scheduler) fallback() animation.Frame {
	if s.opts.StaleFrame == StaleLast && s.last.Len() > 0 {
		return s.last
	}
	return animation.NewFrame(s.opts.Points)
}

// render hands f to the render loop, replacing a frame the light client
// has not taken yet. It never blocks.
func (s *Scheduler) render(f animation.Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
			s.superseded.Add(1)
		default:
		}
	}
}

func (s *Scheduler) dropQueuedFrame() {
	select {
	case <-s.frames:
	default:
	}
}

func (s *Scheduler) renderLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case f := <-s.frames:
			rctx, cancel := context.WithTimeout(ctx, s.opts.RenderTimeout)
			if err := s.client.Render(rctx, f); err != nil {
				s.logger.Debug("Light client render failed", "error", err)
			}
			cancel()
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) publish() {
	st := s.counters
	st.Superseded = s.superseded.Load()
	st.Animation = s.active
	st.InFlight = s.inFlight
	switch {
	case s.unusable != nil:
		st.State = "failed"
		st.Error = s.unusable.Error()
	case s.launching:
		st.State = "spawning"
	case s.plugin != nil:
		st.State = s.plugin.State().String()
		st.Name = s.plugin.Name()
	default:
		st.State = "idle"
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Status returns the latest snapshot.
func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Scheduler) send(ctx context.Context, cmd command) (Plugin, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-cmd.reply
	return r.plugin, r.err
}

// Select switches to the animation with the given plugin id. It returns
// once the switch is accepted; the plugin starts in the background.
func (s *Scheduler) Select(ctx context.Context, id string) error {
	_, err := s.send(ctx, command{kind: cmdSelect, id: id})
	return err
}

// Respawn restarts the process of the current animation, clearing an
// unusable state.
func (s *Scheduler) Respawn(ctx context.Context) error {
	_, err := s.send(ctx, command{kind: cmdRespawn})
	return err
}

// SetParameters validates vs against the active schema and queues it. It is
// applied before the next frame, never while a frame is being computed.
func (s *Scheduler) SetParameters(ctx context.Context, vs animation.Values) error {
	_, err := s.send(ctx, command{kind: cmdSetParameters, values: vs})
	return err
}

// Restart queues a restart of the animation; its timeline starts over.
func (s *Scheduler) Restart(ctx context.Context) error {
	_, err := s.send(ctx, command{kind: cmdRestart})
	return err
}

// Schema returns the parameter schema of the active animation.
func (s *Scheduler) Schema(ctx context.Context) ([]animation.ParameterSchema, error) {
	p, err := s.send(ctx, command{kind: cmdActive})
	if err != nil {
		return nil, err
	}
	return p.CachedSchema(), nil
}

// Parameters asks the active animation for its current values.
func (s *Scheduler) Parameters(ctx context.Context) (animation.Values, error) {
	p, err := s.send(ctx, command{kind: cmdActive})
	if err != nil {
		return nil, err
	}
	return p.Parameters(ctx)
}
