// Package host runs animation plugins as child processes and talks to them
// over the line protocol on the child's stdin and stdout.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/protocol"
)

// State is the lifecycle position of a Host.
type State int32

const (
	StateUninitialized State = iota
	StateSpawning
	StateReady
	StateBusy
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configure a Host.
type Options struct {
	Lights config.LightsConfig
	// CallTimeout bounds every call. Zero means calls wait for their context.
	CallTimeout time.Duration
	// SpawnTimeout bounds the handshake performed by Spawn.
	SpawnTimeout time.Duration
	// TerminateGrace is how long Shutdown waits after closing stdin and
	// again after SIGTERM before escalating.
	TerminateGrace time.Duration
	// EventQueue is how many event notifications may wait for the plugin
	// to read its input. When full the oldest is dropped.
	EventQueue int
	Logger     *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.SpawnTimeout <= 0 {
		o.SpawnTimeout = 5 * time.Second
	}
	if o.TerminateGrace <= 0 {
		o.TerminateGrace = 2 * time.Second
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are counters maintained by a Host.
type Stats struct {
	Calls     uint64 `json:"calls"`
	Timeouts  uint64 `json:"timeouts"`
	Discarded uint64 `json:"discarded"`
	Malformed uint64 `json:"malformed"`
	// EventsDropped counts notifications evicted while the plugin was not
	// reading.
	EventsDropped uint64 `json:"events_dropped"`
}

// Host owns one plugin process. All methods are safe for concurrent use;
// responses are matched to calls by id so calls may overlap.
type Host struct {
	id     uuid.UUID
	desc   *plugins.Descriptor
	opts   Options
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	enc    *protocol.Encoder

	// requests and events feed writeLoop, the only writer of stdin.
	requests chan protocol.Message
	events   *eventbus.Queue[protocol.Message]

	mu      sync.Mutex
	state   State
	err     error
	nextID  uint64
	pending map[uint64]chan protocol.Message

	name   string
	schema []animation.ParameterSchema

	calls     atomic.Uint64
	timeouts  atomic.Uint64
	discarded atomic.Uint64
	malformed atomic.Uint64

	done     chan struct{}
	exited   chan struct{}
	readDone chan struct{}
	stopOnce sync.Once
}

// Spawn validates desc, starts the plugin process and performs the
// get_name/get_schema handshake. On any failure no process is left
// running and the error wraps one of protocol.ErrConfig,
// protocol.ErrTransport, protocol.ErrTimeout or an application error.
func Spawn(ctx context.Context, desc *plugins.Descriptor, opts Options) (*Host, error) {
	opts.applyDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Lights.Validate(); err != nil {
		return nil, fmt.Errorf("plugin %s: %w: %w", desc.ID(), protocol.ErrConfig, err)
	}
	lightsEnv, err := opts.Lights.Env()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w: %w", desc.ID(), protocol.ErrConfig, err)
	}

	h := &Host{
		id:       uuid.New(),
		desc:     desc,
		opts:     opts,
		state:    StateSpawning,
		pending:  make(map[uint64]chan protocol.Message),
		requests: make(chan protocol.Message),
		events:   eventbus.NewQueue[protocol.Message](opts.EventQueue),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	h.logger = opts.Logger.With("component", "plugin_host", "plugin", desc.ID(), "instance", h.id.String())

	if err := h.start(lightsEnv); err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, opts.SpawnTimeout)
	defer cancel()
	if err := h.handshake(hctx); err != nil {
		h.kill()
		return nil, fmt.Errorf("plugin %s handshake: %w", desc.ID(), err)
	}

	h.mu.Lock()
	if h.state == StateSpawning {
		h.state = StateReady
	}
	h.mu.Unlock()

	h.logger.Info("Plugin ready", "name", h.name, "parameters", len(h.schema), "pid", h.cmd.Process.Pid)
	return h, nil
}

func (h *Host) start(lightsEnv string) error {
	ir, iw, err := os.Pipe()
	if err != nil {
		return &protocol.TransportError{Op: "spawn", Err: err}
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		ir.Close()
		iw.Close()
		return &protocol.TransportError{Op: "spawn", Err: err}
	}

	cmd := exec.Command(h.desc.Executable, h.desc.Manifest.Args...)
	cmd.Dir = h.desc.Dir
	cmd.Env = append(os.Environ(), lightsEnv)
	cmd.Stdin = ir
	cmd.Stdout = pw
	cmd.Stderr = newLogWriter(h.logger)
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{ir, iw, pr, pw} {
			f.Close()
		}
		return fmt.Errorf("plugin %s: %w", h.desc.ID(), &protocol.TransportError{Op: "spawn", Err: err})
	}
	ir.Close()
	pw.Close()

	h.cmd = cmd
	h.stdin = iw
	h.stdout = pr
	h.enc = protocol.NewEncoder(iw)

	go h.readLoop()
	go h.writeLoop()
	go h.waitLoop()
	return nil
}

func (h *Host) handshake(ctx context.Context) error {
	name, err := call(ctx, h, protocol.GetName, protocol.Empty{})
	if err != nil {
		return err
	}
	schema, err := call(ctx, h, protocol.GetSchema, protocol.Empty{})
	if err != nil {
		return err
	}
	if err := animation.ValidateSchema(schema); err != nil {
		return fmt.Errorf("%w: schema: %w", protocol.ErrProtocol, err)
	}
	h.mu.Lock()
	h.name, h.schema = name, schema
	h.mu.Unlock()
	return nil
}

func (h *Host) readLoop() {
	defer close(h.readDone)

	dec := protocol.NewDecoder(h.stdout)
	for msg, err := range dec.Messages() {
		if err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				h.malformed.Add(1)
				h.logger.Warn("Dropped malformed plugin output", "error", err)
				continue
			}
			h.fail(err)
			return
		}

		if msg.Kind != protocol.KindResponse {
			h.logger.Debug("Ignoring unsolicited plugin message", "kind", msg.Kind.String(), "method", msg.Method)
			continue
		}
		h.deliver(msg)
	}
}

// writeLoop writes queued requests and notifications to stdin. A plugin that
// stops reading blocks this goroutine only; callers wait on their context
// and notifications pile up in the drop-oldest queue.
func (h *Host) writeLoop() {
	for {
		select {
		case msg := <-h.requests:
			h.write(msg)
		case <-h.events.Ready():
			for {
				msg, ok := h.events.Pop()
				if !ok {
					break
				}
				h.write(msg)
			}
		case <-h.done:
			return
		}
	}
}

func (h *Host) write(msg protocol.Message) {
	err := h.enc.Encode(msg)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrTransport):
		h.fail(err)
	case msg.Kind == protocol.KindRequest:
		h.deliver(protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.CodeInternalError, err.Error(), nil)))
	default:
		h.logger.Warn("Dropped unencodable notification", "method", msg.Method, "error", err)
	}
}

func (h *Host) waitLoop() {
	err := h.cmd.Wait()
	close(h.exited)

	select {
	case <-h.readDone:
	case <-time.After(200 * time.Millisecond):
	}
	h.stdout.Close()

	if err == nil {
		err = errors.New("plugin exited")
	}
	h.logger.Debug("Plugin process exited", "error", err)
	h.fail(&protocol.TransportError{Op: "wait", Err: err})
}

func (h *Host) deliver(msg protocol.Message) {
	h.mu.Lock()
	ch, ok := h.pending[msg.ID]
	if ok {
		delete(h.pending, msg.ID)
	}
	h.mu.Unlock()

	if !ok {
		h.discarded.Add(1)
		h.logger.Debug("Discarding response with unknown id", "id", msg.ID)
		return
	}
	ch <- msg
}

func (h *Host) register() (uint64, chan protocol.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state >= StateClosing {
		return 0, nil, h.closedErrLocked()
	}
	h.nextID++
	ch := make(chan protocol.Message, 1)
	h.pending[h.nextID] = ch
	return h.nextID, ch, nil
}

func (h *Host) forget(id uint64) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

func (h *Host) closedErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closedErrLocked()
}

func (h *Host) closedErrLocked() error {
	if h.err != nil {
		return h.err
	}
	return protocol.ErrClosed
}

// call performs one typed request. It is the single path every public
// method goes through.
func call[P, R any](ctx context.Context, h *Host, m protocol.Method[P, R], params P) (R, error) {
	var zero R

	raw, err := m.EncodeParams(params)
	if err != nil {
		return zero, err
	}

	if h.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.CallTimeout)
		defer cancel()
	}

	id, ch, err := h.register()
	if err != nil {
		return zero, err
	}
	h.calls.Add(1)

	select {
	case h.requests <- protocol.NewRequest(id, m.Name, raw):
	case <-ctx.Done():
		h.forget(id)
		return zero, h.abandoned(ctx, m.Name)
	case <-h.done:
		return zero, h.closedErr()
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return zero, msg.Error
		}
		return m.DecodeResult(msg.Result)

	case <-ctx.Done():
		h.forget(id)
		return zero, h.abandoned(ctx, m.Name)

	case <-h.done:
		return zero, h.closedErr()
	}
}

func (h *Host) abandoned(ctx context.Context, method string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		h.timeouts.Add(1)
		return fmt.Errorf("%s: %w", method, protocol.ErrTimeout)
	}
	return ctx.Err()
}

// fail moves the host to Closed because the channel broke. Pending calls
// return err.
func (h *Host) fail(err error) {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	wasClosing := h.state == StateClosing
	h.state = StateClosed
	if h.err == nil {
		h.err = err
	}
	h.pending = make(map[uint64]chan protocol.Message)
	h.mu.Unlock()

	h.closeDone()
	if !wasClosing {
		h.logger.Warn("Plugin channel failed", "error", err)
	}
	go h.terminate()
}

func (h *Host) closeDone() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Shutdown closes the channel and asynchronously stops the process:
// stdin is closed, then SIGTERM and finally SIGKILL are sent if the process
// lingers. Outstanding calls return protocol.ErrClosed. Shutdown does not
// wait for the process; use Exited for that.
func (h *Host) Shutdown() {
	h.mu.Lock()
	if h.state >= StateClosing {
		h.mu.Unlock()
		return
	}
	h.state = StateClosing
	h.err = protocol.ErrClosed
	h.mu.Unlock()

	h.logger.Info("Shutting down plugin")
	h.closeDone()
	go h.terminate()

	h.mu.Lock()
	h.state = StateClosed
	h.pending = make(map[uint64]chan protocol.Message)
	h.mu.Unlock()
}

func (h *Host) terminate() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.stdin.Close()

	select {
	case <-h.exited:
		return
	case <-time.After(h.opts.TerminateGrace):
	}

	h.logger.Debug("Plugin ignored closed stdin, sending SIGTERM")
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		h.cmd.Process.Kill()
		return
	}

	select {
	case <-h.exited:
	case <-time.After(h.opts.TerminateGrace):
		h.logger.Warn("Plugin ignored SIGTERM, killing")
		h.cmd.Process.Kill()
	}
}

// kill stops a process that never became ready and waits for it.
func (h *Host) kill() {
	h.fail(protocol.ErrClosed)
	h.cmd.Process.Kill()
	<-h.exited
}

// ID is the unique id of this plugin instance.
func (h *Host) ID() string { return h.id.String() }

// PluginID is the manifest id.
func (h *Host) PluginID() string { return h.desc.ID() }

// Descriptor returns the plugin this host runs.
func (h *Host) Descriptor() *plugins.Descriptor { return h.desc }

// Name is the animation name reported during the handshake.
func (h *Host) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// CachedSchema is the schema reported during the handshake.
func (h *Host) CachedSchema() []animation.ParameterSchema {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.schema
}

// State returns the current lifecycle state. A ready host with calls in
// flight reports StateBusy.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReady && len(h.pending) > 0 {
		return StateBusy
	}
	return h.state
}

// Err returns the error that closed the channel, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the channel is no longer usable.
func (h *Host) Done() <-chan struct{} { return h.done }

// Exited is closed once the process has been reaped.
func (h *Host) Exited() <-chan struct{} { return h.exited }

// Stats returns a snapshot of the counters.
func (h *Host) Stats() Stats {
	return Stats{
		Calls:     h.calls.Load(),
		Timeouts:  h.timeouts.Load(),
		Discarded: h.discarded.Load(),
		Malformed: h.malformed.Load(),

		EventsDropped: h.events.Dropped(),
	}
}
