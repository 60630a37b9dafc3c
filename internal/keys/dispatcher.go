package keys

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
)

const defaultQueueSize = 64

// confirmSendTimeout bounds how long a debounce confirmation waits for queue
// space. Dropping one would leave the noisy key's press state stuck.
const confirmSendTimeout = 250 * time.Millisecond

// Orchestrator is the recording pipeline as seen from the key loop.
type Orchestrator interface {
	SessionProbe
	RecorderVisible() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) (domain.StopResult, error)
	Cancel() error
	MarkHandsFree()
}

// HookManager installs and releases the input sources for a binding.
type HookManager interface {
	Reconfigure(ctx context.Context, binding domain.PushToTalkBinding) error
}

// EnhancementControls are the recorder-visible enhancement shortcuts.
type EnhancementControls interface {
	EnhancementEnabled() bool
	SetEnhancementEnabled(enabled bool) error
	Prompts() []domain.Prompt
	SetActivePrompt(id string) error
}

type messageKind int

const (
	msgRawEvent messageKind = iota
	msgConfirmed
	msgToggle
	msgCancel
	msgReconfigure
	msgToggleEnhancement
	msgSelectPrompt
)

type message struct {
	kind    messageKind
	event   domain.RawKeyEvent
	signal  domain.PressSignal
	seq     uint64
	binding domain.PushToTalkBinding
	index   int
	at      time.Time
	done    chan error
}

// Dispatcher serializes every key-related input onto one goroutine. Producers
// only enqueue; classifier, state machine and cooldown state are touched by Run.
type Dispatcher struct {
	orchestrator Orchestrator
	hooks        HookManager
	enhancement  EnhancementControls
	log          *slog.Logger
	now          func() time.Time

	inbox chan message

	// Owned by Run.
	binding    domain.PushToTalkBinding
	classifier *Classifier
	machine    *StateMachine
	gate       *CooldownGate

	work sync.WaitGroup
}

type DispatcherConfig struct {
	Binding   domain.PushToTalkBinding
	Cooldown  time.Duration
	QueueSize int
}

func NewDispatcher(
	orchestrator Orchestrator,
	hooks HookManager,
	enhancement EnhancementControls,
	log *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Binding.Key == "" {
		cfg.Binding.Key = domain.DefaultPushToTalkKey
	}

	d := &Dispatcher{
		orchestrator: orchestrator,
		hooks:        hooks,
		enhancement:  enhancement,
		log:          logger.OrDefault(log).With("component", "keys"),
		now:          time.Now,
		inbox:        make(chan message, cfg.QueueSize),
		binding:      cfg.Binding,
		machine:      NewStateMachine(orchestrator),
		gate:         NewCooldownGate(cfg.Cooldown),
	}
	d.classifier = NewClassifier(cfg.Binding.Key, d.confirmDebounced)
	return d
}

// Publish hands a raw event to the loop. It never blocks; a full queue drops the event.
func (d *Dispatcher) Publish(ev domain.RawKeyEvent) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	d.enqueue(message{kind: msgRawEvent, event: ev})
}

// Toggle is the global shortcut entry point. Fires inside the cooldown are dropped.
func (d *Dispatcher) Toggle() {
	d.enqueue(message{kind: msgToggle, at: d.now()})
}

// Cancel dismisses the recorder and cancels the run if the recorder is visible.
func (d *Dispatcher) Cancel() {
	d.enqueue(message{kind: msgCancel})
}

func (d *Dispatcher) ToggleEnhancement() {
	d.enqueue(message{kind: msgToggleEnhancement})
}

// SelectPrompt activates the n-th prompt (1-based) and turns enhancement on.
func (d *Dispatcher) SelectPrompt(n int) {
	d.enqueue(message{kind: msgSelectPrompt, index: n})
}

// Reconfigure changes the binding and waits until the hooks are reinstalled.
func (d *Dispatcher) Reconfigure(ctx context.Context, binding domain.PushToTalkBinding) error {
	done := make(chan error, 1)
	select {
	case d.inbox <- message{kind: msgReconfigure, binding: binding, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until ctx is done, then waits for pipeline work it started.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.hooks != nil {
		if err := d.hooks.Reconfigure(ctx, d.binding); err != nil {
			d.log.Warn("initial hook install failed", "error", err)
		}
	}

	defer d.work.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.inbox:
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) enqueue(msg message) {
	select {
	case d.inbox <- msg:
	default:
		d.log.Warn("key queue full, dropping input", "kind", int(msg.kind))
	}
}

// confirmDebounced runs on the debounce timer goroutine, never on Run, so it
// may wait for Run to drain the queue.
func (d *Dispatcher) confirmDebounced(seq uint64, signal domain.PressSignal) {
	msg := message{kind: msgConfirmed, seq: seq, signal: signal, at: d.now()}
	select {
	case d.inbox <- msg:
		return
	default:
	}

	timer := time.NewTimer(confirmSendTimeout)
	defer timer.Stop()
	select {
	case d.inbox <- msg:
	case <-timer.C:
		d.log.Warn("key queue full, dropping debounce confirmation", "seq", seq)
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg message) {
	switch msg.kind {
	case msgRawEvent:
		if !d.binding.Enabled {
			return
		}
		signal, ok := d.classifier.Classify(msg.event)
		if !ok {
			return
		}
		d.apply(ctx, signal, msg.event.At)
	case msgConfirmed:
		if !d.binding.Enabled {
			return
		}
		signal, ok := d.classifier.Confirm(msg.seq)
		if !ok {
			d.log.Debug("stale debounce confirmation dropped", "seq", msg.seq)
			return
		}
		d.apply(ctx, signal, msg.at)
	case msgToggle:
		d.handleToggle(ctx, msg.at)
	case msgCancel:
		d.handleCancel()
	case msgReconfigure:
		msg.done <- d.handleReconfigure(ctx, msg.binding)
	case msgToggleEnhancement:
		d.handleToggleEnhancement()
	case msgSelectPrompt:
		d.handleSelectPrompt(msg.index)
	}
}

func (d *Dispatcher) apply(ctx context.Context, signal domain.PressSignal, at time.Time) {
	before := d.machine.State()
	action := d.machine.Handle(signal, at)
	if action == ActionNone {
		return
	}
	d.log.Debug("push-to-talk transition",
		"key", d.binding.Key,
		"pressed", signal.Pressed,
		"from", before.String(),
		"to", d.machine.State().String(),
		"action", action.String(),
	)

	switch action {
	case ActionStart:
		// Capture start is quick and the probe must see the session before the
		// release arrives, so it runs inline.
		if err := d.orchestrator.Start(ctx); err != nil {
			d.log.Warn("recording start failed", "error", err)
		}
	case ActionEnterHandsFree:
		d.orchestrator.MarkHandsFree()
	case ActionStopAndTranscribe, ActionExitHandsFree:
		d.stopAsync(ctx)
	}
}

func (d *Dispatcher) stopAsync(ctx context.Context) {
	d.work.Add(1)
	go func() {
		defer d.work.Done()
		if _, err := d.orchestrator.Stop(context.WithoutCancel(ctx)); err != nil {
			d.log.Info("recording run ended without delivery", "error", err)
		}
	}()
}

func (d *Dispatcher) handleToggle(ctx context.Context, at time.Time) {
	if !d.gate.TryTrigger(at) {
		d.log.Debug("toggle shortcut ignored during cooldown")
		return
	}
	d.machine.Reset()
	d.classifier.Reset()
	if d.orchestrator.SessionActive() {
		d.stopAsync(ctx)
		return
	}
	if err := d.orchestrator.Start(ctx); err != nil {
		d.log.Warn("recording start failed", "error", err)
	}
}

func (d *Dispatcher) handleCancel() {
	if !d.orchestrator.RecorderVisible() {
		return
	}
	d.machine.Reset()
	d.classifier.Reset()
	if err := d.orchestrator.Cancel(); err != nil {
		d.log.Debug("cancel had nothing to do", "error", err)
	}
}

func (d *Dispatcher) handleReconfigure(ctx context.Context, binding domain.PushToTalkBinding) error {
	if binding.Key == "" {
		binding.Key = domain.DefaultPushToTalkKey
	}
	if binding.Key.KeyCode() == 0 {
		return errors.New("unsupported push-to-talk key " + string(binding.Key))
	}

	// Transient key state never crosses a reconfiguration. A live session keeps
	// running and is ended through the toggle path.
	d.classifier.Reset()
	d.machine.Reset()
	if binding.Key != d.classifier.Key() {
		d.classifier = NewClassifier(binding.Key, d.confirmDebounced)
	}
	d.binding = binding
	d.log.Info("push-to-talk reconfigured", "key", binding.Key, "enabled", binding.Enabled)

	if d.hooks == nil {
		return nil
	}
	return d.hooks.Reconfigure(ctx, binding)
}

func (d *Dispatcher) handleToggleEnhancement() {
	if d.enhancement == nil || !d.orchestrator.RecorderVisible() {
		return
	}
	enabled := !d.enhancement.EnhancementEnabled()
	if err := d.enhancement.SetEnhancementEnabled(enabled); err != nil {
		d.log.Warn("toggle enhancement failed", "error", err)
		return
	}
	d.log.Info("enhancement toggled", "enabled", enabled)
}

func (d *Dispatcher) handleSelectPrompt(n int) {
	if d.enhancement == nil || !d.orchestrator.RecorderVisible() {
		return
	}
	prompts := d.enhancement.Prompts()
	if n < 1 || n > len(prompts) {
		return
	}
	prompt := prompts[n-1]
	if !d.enhancement.EnhancementEnabled() {
		if err := d.enhancement.SetEnhancementEnabled(true); err != nil {
			d.log.Warn("enable enhancement failed", "error", err)
			return
		}
	}
	if err := d.enhancement.SetActivePrompt(prompt.ID); err != nil {
		d.log.Warn("select prompt failed", "prompt", prompt.ID, "error", err)
		return
	}
	d.log.Info("prompt selected", "prompt", prompt.ID)
}
