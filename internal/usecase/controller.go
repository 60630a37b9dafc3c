package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

// TempRecordingPrefix names in-progress capture files so stale ones can be swept.
const TempRecordingPrefix = "RecordTemp_"

// Config controls where recordings live and how capture is configured.
type Config struct {
	Audio         ports.AudioConfig
	TempDir       string
	RecordingsDir string
}

// Dependencies are the collaborators of a SessionController.
type Dependencies struct {
	Audio       ports.AudioCapture
	Inspector   ports.AudioInspector
	Transcriber ports.Transcriber
	Models      *ModelCache
	Enhancer    ports.Enhancer
	Store       ports.TranscriptionStore
	Rules       ports.RulesEngine
	Clipboard   ports.Clipboard
	Paster      ports.Paster
	Permissions ports.PermissionChecker
	Notifier    ports.Notifier
	Events      ports.EventSink
	Preferences ports.Preferences
	Log         *slog.Logger
}

// SessionController orchestrates push-to-talk recording, transcription and delivery.
// At most one session records and at most one run is in flight at a time.
type SessionController struct {
	audio       ports.AudioCapture
	inspector   ports.AudioInspector
	transcriber ports.Transcriber
	models      *ModelCache
	store       ports.TranscriptionStore
	notifier    ports.Notifier
	events      ports.EventSink
	prefs       ports.Preferences
	finalizer   transcriptFinalizer
	log         *slog.Logger
	cfg         Config
	now         func() time.Time

	mu      sync.Mutex
	current *activeSession
	// inFlight is the run being transcribed or delivered, fresh or retry.
	inFlight *activeSession
	visible  bool
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = filepath.Join(cfg.TempDir, "recordings")
	}
	if deps.Models == nil {
		deps.Models = NewModelCache(nil, 0, deps.Log)
	}
	log := logger.OrDefault(deps.Log).With("component", "session")

	c := &SessionController{
		audio:       deps.Audio,
		inspector:   deps.Inspector,
		transcriber: deps.Transcriber,
		models:      deps.Models,
		store:       deps.Store,
		notifier:    deps.Notifier,
		events:      deps.Events,
		prefs:       deps.Preferences,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
	}
	c.finalizer = transcriptFinalizer{
		rules:       deps.Rules,
		clipboard:   deps.Clipboard,
		paster:      deps.Paster,
		permissions: deps.Permissions,
		enhancer:    deps.Enhancer,
		store:       deps.Store,
		prefs:       deps.Preferences,
		detector:    newPromptDetector(deps.Preferences),
		events:      deps.Events,
		log:         log,
		now:         func() time.Time { return c.now() },
	}
	return c
}

// Start begins capturing into a fresh temporary file.
func (c *SessionController) Start(ctx context.Context) error {
	model, ok := c.prefs.CurrentModel()
	if !ok {
		c.events.SessionError(domain.ErrorCodeNoModel, ErrNoModelSelected.Error())
		c.notify(ports.Notification{Title: "No model selected", Message: "Choose a transcription model first.", Kind: ports.NotificationError})
		return ErrNoModelSelected
	}

	id := uuid.NewString()
	session := &activeSession{
		id:        id,
		tempPath:  filepath.Join(c.cfg.TempDir, TempRecordingPrefix+id+".wav"),
		startedAt: c.now(),
		model:     model,
		state:     domain.SessionStateRecording,
	}

	c.mu.Lock()
	if c.current != nil || c.inFlight != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.current = session
	c.mu.Unlock()

	audioSession, err := c.startCapture(ctx, session)
	if err != nil {
		c.mu.Lock()
		if c.current == session {
			c.current = nil
		}
		c.mu.Unlock()
		removeFile(session.tempPath)

		c.events.SessionError(domain.ErrorCodeRecordingStart, err.Error())
		c.events.SessionStateChanged(domain.SessionStateError, domain.SessionReasonRecordingFailed)
		c.notify(ports.Notification{Title: "Recording failed", Message: err.Error(), Kind: ports.NotificationError})
		return fmt.Errorf("%w: %v", ErrRecordingStart, err)
	}

	var lease *ModelLease
	if model.IsLocal() {
		lease = c.models.Acquire(ctx, model)
	}

	c.mu.Lock()
	if session.cancelled() {
		// Cancelled while capture was starting.
		c.mu.Unlock()
		_ = audioSession.Stop()
		lease.Release()
		removeFile(session.tempPath)
		return ErrCancelled
	}
	session.audio = audioSession
	session.lease = lease
	c.mu.Unlock()

	c.setVisible(true)
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	c.log.Info("recording started", "session", session.id, "model", model.Name)
	return nil
}

func (c *SessionController) startCapture(ctx context.Context, session *activeSession) (ports.AudioSession, error) {
	if err := os.MkdirAll(c.cfg.TempDir, 0o755); err != nil {
		return nil, err
	}
	return c.audio.Start(ctx, session.tempPath, c.cfg.Audio)
}

// Stop ends capture and runs the transcription and delivery pipeline.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	active := c.current
	if active == nil || active.audio == nil {
		c.mu.Unlock()
		return domain.StopResult{}, ErrNoActiveSession
	}
	if c.inFlight != nil {
		// Never replace an in-flight run. The recording keeps going.
		c.mu.Unlock()
		return domain.StopResult{}, ErrSessionActive
	}
	c.current = nil
	c.inFlight = active
	c.mu.Unlock()

	outcome := runOutcome{domain.SessionStateIdle, domain.SessionReasonReady}
	defer func() {
		c.finishRun(active, outcome)
	}()

	active.setState(domain.SessionStateStopping)
	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonTranscribing)

	// Capture always stops, cancelled or not.
	if err := active.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
		c.log.Warn("audio stop failed", "session", active.id, "error", err)
	}
	duration := c.duration(active.tempPath, active.startedAt)

	if active.cancelled() {
		outcome = runOutcome{domain.SessionStateIdle, domain.SessionReasonRecordingCancelled}
		return domain.StopResult{Cancelled: true}, ErrCancelled
	}

	permanent, err := c.persistAudio(active.tempPath)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRecordingPersist, err)
		c.appendFailure(ctx, pipelineRun{model: active.model, duration: duration}, err)
		c.events.SessionError(domain.ErrorCodeRecordingPersist, err.Error())
		c.notify(ports.Notification{Title: "Recording could not be saved", Message: err.Error(), Kind: ports.NotificationError})
		outcome = runOutcome{domain.SessionStateError, domain.SessionReasonRecordingFailed}
		return domain.StopResult{}, err
	}

	result, runOut, err := c.runPipeline(ctx, pipelineRun{
		session:   active,
		audioPath: permanent,
		ownsAudio: true,
		model:     active.model,
		duration:  duration,
		lease:     active.lease,
	})
	outcome = runOut
	return result, err
}

// Cancel requests cancellation of the recording or the run in flight. A
// recording that is still capturing is stopped and cleaned up here.
func (c *SessionController) Cancel() error {
	c.mu.Lock()
	if active := c.current; active != nil {
		active.cancelRequested.Store(true)
		c.current = nil
		started := active.audio != nil
		c.mu.Unlock()

		if started {
			if err := active.audio.Stop(); err != nil {
				c.log.Warn("audio stop failed", "session", active.id, "error", err)
			}
			c.finishRun(active, runOutcome{domain.SessionStateIdle, domain.SessionReasonRecordingCancelled})
		}
		c.log.Info("recording cancelled", "session", active.id)
		return nil
	}
	if running := c.inFlight; running != nil {
		running.cancelRequested.Store(true)
		c.mu.Unlock()
		c.log.Info("cancellation requested for run in flight", "session", running.id)
		return nil
	}
	c.mu.Unlock()
	return ErrNoActiveSession
}

// Toggle starts a session when none is recording and stops it otherwise.
func (c *SessionController) Toggle(ctx context.Context) error {
	if c.SessionActive() {
		_, err := c.Stop(ctx)
		return err
	}
	return c.Start(ctx)
}

// Retry re-runs transcription and delivery on the saved audio of record with
// the currently selected model. record itself is never modified.
func (c *SessionController) Retry(ctx context.Context, record domain.TranscriptionRecord) (domain.TranscriptionRecord, error) {
	if record.AudioPath == "" {
		return domain.TranscriptionRecord{}, ErrNothingToRetry
	}
	if _, err := os.Stat(record.AudioPath); err != nil {
		return domain.TranscriptionRecord{}, fmt.Errorf("%w: audio unavailable: %v", ErrNothingToRetry, err)
	}
	model, ok := c.prefs.CurrentModel()
	if !ok {
		return domain.TranscriptionRecord{}, ErrNoModelSelected
	}

	run := &activeSession{id: uuid.NewString(), model: model, state: domain.SessionStateStopping}

	c.mu.Lock()
	if c.current != nil || c.inFlight != nil {
		c.mu.Unlock()
		return domain.TranscriptionRecord{}, ErrSessionActive
	}
	c.inFlight = run
	c.mu.Unlock()

	var lease *ModelLease
	if model.IsLocal() {
		lease = c.models.Acquire(ctx, model)
	}
	run.lease = lease

	outcome := runOutcome{domain.SessionStateIdle, domain.SessionReasonReady}
	defer func() {
		c.finishRun(run, outcome)
	}()

	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonTranscribing)
	duration := time.Duration(record.DurationSeconds * float64(time.Second))
	if duration <= 0 {
		duration = c.duration(record.AudioPath, time.Time{})
	}

	result, runOut, err := c.runPipeline(ctx, pipelineRun{
		session:   run,
		audioPath: record.AudioPath,
		model:     model,
		duration:  duration,
		retryOf:   record.ID,
		lease:     lease,
	})
	outcome = runOut
	if err != nil {
		return result.Record, err
	}

	outcome.reason = domain.SessionReasonRetrySucceeded
	c.notify(ports.Notification{Title: "Transcription retried", Message: result.FinalTranscript, Kind: ports.NotificationSuccess})
	return result.Record, nil
}

// RetryLast retries the most recent record if it failed.
func (c *SessionController) RetryLast(ctx context.Context) (domain.TranscriptionRecord, error) {
	latest, ok, err := c.store.Latest(ctx)
	if err != nil {
		return domain.TranscriptionRecord{}, err
	}
	if !ok || !latest.Failed {
		return domain.TranscriptionRecord{}, ErrNothingToRetry
	}
	return c.Retry(ctx, latest)
}

// runPipeline transcribes the saved audio and hands the text to the finalizer.
func (c *SessionController) runPipeline(ctx context.Context, run pipelineRun) (result domain.StopResult, outcome runOutcome, err error) {
	defer func() {
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrNoTranscript) {
			c.discardAudio(run)
		}
	}()

	if run.cancelled() {
		return cancelledResult()
	}

	if err := run.lease.Wait(ctx); err != nil {
		return c.transcriptionFailed(ctx, run, fmt.Errorf("load model %s: %w", run.model.Name, err))
	}

	started := c.now()
	raw, err := c.transcriber.Transcribe(ctx, run.audioPath, run.model)
	if run.cancelled() {
		// The backend call ran to completion; its result is discarded.
		return cancelledResult()
	}
	if err != nil {
		return c.transcriptionFailed(ctx, run, err)
	}
	c.log.Info("transcription finished", "model", run.model.Name, "took", c.now().Sub(started))

	return c.finalizer.Finalize(ctx, finalizeInput{run: run, raw: raw})
}

func (c *SessionController) transcriptionFailed(ctx context.Context, run pipelineRun, cause error) (domain.StopResult, runOutcome, error) {
	err := fmt.Errorf("%w: %v", ErrTranscription, cause)
	record := c.appendFailure(ctx, run, cause)
	c.events.SessionError(domain.ErrorCodeTranscription, cause.Error())
	c.notify(ports.Notification{
		Title:     "Transcription failed",
		Message:   cause.Error(),
		Kind:      ports.NotificationError,
		Retryable: record.AudioPath != "",
	})
	return domain.StopResult{Record: record}, runOutcome{domain.SessionStateError, domain.SessionReasonTranscriptionFailed}, err
}

// appendFailure stores a failed record; store errors are logged only.
func (c *SessionController) appendFailure(ctx context.Context, run pipelineRun, cause error) domain.TranscriptionRecord {
	record := domain.TranscriptionRecord{
		ID:              uuid.NewString(),
		Text:            domain.FailedTextPrefix + cause.Error(),
		DurationSeconds: run.duration.Seconds(),
		AudioPath:       run.audioPath,
		ModelName:       run.model.Name,
		CreatedAt:       c.now(),
		Failed:          true,
		Error:           cause.Error(),
		RetryOf:         run.retryOf,
	}
	if err := c.store.Append(ctx, record); err != nil {
		c.events.SessionError(domain.ErrorCodeStore, err.Error())
		c.log.Error("failed transcription record not saved", "error", err)
	}
	return record
}

// finishRun is the cleanup every run ends with.
func (c *SessionController) finishRun(active *activeSession, outcome runOutcome) {
	if active.tempPath != "" {
		removeFile(active.tempPath)
	}

	c.mu.Lock()
	lease := active.lease
	active.lease = nil
	if c.inFlight == active {
		c.inFlight = nil
	}
	idle := c.current == nil && c.inFlight == nil
	c.mu.Unlock()

	lease.Release()
	active.setState(outcome.state)
	if idle {
		c.setVisible(false)
	}
	c.events.SessionStateChanged(outcome.state, outcome.reason)
}

func (c *SessionController) discardAudio(run pipelineRun) {
	if run.ownsAudio && run.audioPath != "" {
		removeFile(run.audioPath)
	}
}

func (c *SessionController) persistAudio(tempPath string) (string, error) {
	if err := os.MkdirAll(c.cfg.RecordingsDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(c.cfg.RecordingsDir, uuid.NewString()+".wav")
	if err := copyFile(tempPath, dst); err != nil {
		removeFile(dst)
		return "", err
	}
	return dst, nil
}

// duration prefers the recorded file's length and falls back to wall time.
func (c *SessionController) duration(path string, startedAt time.Time) time.Duration {
	if c.inspector != nil {
		if d, err := c.inspector.Duration(path); err == nil && d > 0 {
			return d
		}
	}
	if startedAt.IsZero() {
		return 0
	}
	return c.now().Sub(startedAt)
}

// MarkHandsFree records that the current session continues without the key held.
func (c *SessionController) MarkHandsFree() {
	c.mu.Lock()
	active := c.current
	if active != nil {
		active.handsFree = true
	}
	c.mu.Unlock()
	if active != nil {
		c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonHandsFree)
	}
}

// SessionActive reports whether a session is recording.
func (c *SessionController) SessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// RecorderVisible reports whether the recording indicator is shown.
func (c *SessionController) RecorderVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{State: domain.SessionStateIdle}
	if model, ok := c.prefs.CurrentModel(); ok {
		status.Model = model.Name
	}
	switch {
	case c.current != nil:
		status.State = c.current.getState()
		status.Active = true
		status.HandsFree = c.current.handsFree
	case c.inFlight != nil:
		status.State = c.inFlight.getState()
		status.Active = true
	}
	return status
}

func (c *SessionController) setVisible(visible bool) {
	c.mu.Lock()
	changed := c.visible != visible
	c.visible = visible
	c.mu.Unlock()
	if changed {
		c.events.RecorderVisibilityChanged(visible)
	}
}

func (c *SessionController) notify(n ports.Notification) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Debug("remove file failed", "path", path, "error", err)
	}
}
