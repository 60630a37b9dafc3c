package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

var localModel = domain.ModelRef{Name: "ggml-base.en", Provider: domain.ModelProviderLocal, Path: "/models/ggml-base.en.bin"}

type harness struct {
	controller  *SessionController
	audio       *fakeAudioCapture
	transcriber *fakeTranscriber
	enhancer    *fakeEnhancer
	store       *fakeStore
	clipboard   *fakeClipboard
	paster      *fakePaster
	notifier    *fakeNotifier
	events      *fakeEventSink
	prefs       *fakePrefs
	loader      *fakeLoader
	cfg         Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	h := &harness{
		audio:       &fakeAudioCapture{},
		transcriber: &fakeTranscriber{text: "hello world"},
		enhancer:    &fakeEnhancer{configured: true},
		store:       &fakeStore{},
		clipboard:   &fakeClipboard{},
		paster:      &fakePaster{},
		notifier:    &fakeNotifier{},
		events:      &fakeEventSink{},
		prefs:       &fakePrefs{model: localModel, hasModel: true, autoCopy: true},
		loader:      &fakeLoader{},
		cfg: Config{
			TempDir:       filepath.Join(root, "tmp"),
			RecordingsDir: filepath.Join(root, "recordings"),
		},
	}
	h.build(&fakePermissions{injection: true})
	return h
}

func (h *harness) build(permissions ports.PermissionChecker) {
	h.controller = NewSessionController(Dependencies{
		Audio:       h.audio,
		Transcriber: h.transcriber,
		Models:      NewModelCache(h.loader, 0, logger.Discard()),
		Enhancer:    h.enhancer,
		Store:       h.store,
		Rules:       &fakeRules{},
		Clipboard:   h.clipboard,
		Paster:      h.paster,
		Permissions: permissions,
		Notifier:    h.notifier,
		Events:      h.events,
		Preferences: h.prefs,
		Log:         logger.Discard(),
	}, h.cfg)
}

func (h *harness) recordings(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.cfg.RecordingsDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read recordings: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (h *harness) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.cfg.TempDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read temp dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSessionControllerStartStopSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !h.controller.SessionActive() || !h.controller.RecorderVisible() {
		t.Fatalf("expected live, visible session")
	}
	if !strings.HasPrefix(filepath.Base(h.audio.lastPath()), TempRecordingPrefix) {
		t.Fatalf("unexpected temp path: %s", h.audio.lastPath())
	}

	result, err := h.controller.Stop(ctx)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if result.RawTranscript != "hello world" || result.FinalTranscript != "hello world" {
		t.Fatalf("unexpected transcripts: %+v", result)
	}
	if !result.Copied || !result.Pasted {
		t.Fatalf("expected copied and pasted, got %+v", result)
	}
	if got := h.clipboard.snapshot(); !reflect.DeepEqual(got, []string{"hello world "}) {
		t.Fatalf("unexpected clipboard writes: %q", got)
	}
	if got := h.paster.snapshot(); len(got) != 1 || got[0].text != "hello world " || got[0].preserve {
		t.Fatalf("unexpected paste calls: %+v", got)
	}

	records := h.store.snapshot()
	if len(records) != 1 || records[0].Failed || records[0].Text != "hello world" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].EnhancedText != "" {
		t.Fatalf("enhancement is disabled, got %q", records[0].EnhancedText)
	}
	if _, err := os.Stat(records[0].AudioPath); err != nil {
		t.Fatalf("expected permanent audio: %v", err)
	}
	if len(h.tempFiles(t)) != 0 {
		t.Fatalf("temp files leaked: %v", h.tempFiles(t))
	}
	if h.audio.session.stopCalls() != 1 {
		t.Fatalf("expected capture stopped once")
	}

	if got := h.events.snapshotVisibility(); !reflect.DeepEqual(got, []bool{true, false}) {
		t.Fatalf("unexpected visibility: %v", got)
	}
	states := h.events.snapshotStates()
	if states[0].reason != domain.SessionReasonRecordingStarted {
		t.Fatalf("unexpected first reason: %s", states[0].reason)
	}
	if states[1].reason != domain.SessionReasonTranscribing {
		t.Fatalf("unexpected second reason: %s", states[1].reason)
	}
	if last := states[len(states)-1]; last.state != domain.SessionStateIdle || last.reason != domain.SessionReasonTranscriptPasted {
		t.Fatalf("unexpected final state: %+v", last)
	}
	if h.controller.SessionActive() {
		t.Fatalf("session should be released")
	}
}

func TestSessionControllerClipboardOrderWithEnhancement(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.enhancement = true
	h.enhancer.out = "Hello, world."
	ctx := context.Background()

	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := h.controller.Stop(ctx)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	want := []string{"hello world ", "Hello, world. "}
	if got := h.clipboard.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("clipboard writes = %q, want %q", got, want)
	}
	if got := h.paster.snapshot(); len(got) != 1 || got[0].text != "Hello, world. " {
		t.Fatalf("unexpected paste: %+v", got)
	}
	if result.Record.Text != "hello world" || result.Record.EnhancedText != "Hello, world." {
		t.Fatalf("unexpected record: %+v", result.Record)
	}
	if calls := h.enhancer.snapshot(); len(calls) != 1 || calls[0] != "hello world" {
		t.Fatalf("unexpected enhancer input: %q", calls)
	}
}

func TestSessionControllerUnchangedEnhancementWritesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.enhancement = true
	h.enhancer.out = "hello world"

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := h.clipboard.snapshot(); !reflect.DeepEqual(got, []string{"hello world "}) {
		t.Fatalf("unexpected clipboard writes: %q", got)
	}
}

func TestSessionControllerEnhancementFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.enhancement = true
	h.enhancer.err = errors.New("rate limited")

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := h.controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.FinalTranscript != "hello world" || result.Record.EnhancedText != "" {
		t.Fatalf("expected raw delivery, got %+v", result)
	}
	if got := h.clipboard.snapshot(); !reflect.DeepEqual(got, []string{"hello world "}) {
		t.Fatalf("unexpected clipboard writes: %q", got)
	}
	if !h.events.hasError(domain.ErrorCodeEnhancement) {
		t.Fatalf("expected enhancement error event")
	}
}

func TestSessionControllerAutoCopyDisabledPreservesClipboard(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.autoCopy = false

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := h.clipboard.snapshot(); len(got) != 0 {
		t.Fatalf("expected no clipboard writes, got %q", got)
	}
	if got := h.paster.snapshot(); len(got) != 1 || !got[0].preserve {
		t.Fatalf("expected clipboard-preserving paste, got %+v", got)
	}
}

func TestSessionControllerSkipsPasteWithoutPermission(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.build(&fakePermissions{injection: false})

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := h.controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.Pasted || len(h.paster.snapshot()) != 0 {
		t.Fatalf("expected no paste")
	}
	if !result.Copied {
		t.Fatalf("expected clipboard copy to still happen")
	}
	states := h.events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonTranscriptCopied {
		t.Fatalf("unexpected final reason: %s", states[len(states)-1].reason)
	}
}

func TestSessionControllerStartWithoutModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.hasModel = false

	err := h.controller.Start(context.Background())
	if !errors.Is(err, ErrNoModelSelected) {
		t.Fatalf("expected ErrNoModelSelected, got %v", err)
	}
	if h.audio.calls() != 0 {
		t.Fatalf("capture must not start without a model")
	}
	if h.controller.SessionActive() {
		t.Fatalf("no session should exist")
	}
}

func TestSessionControllerStartCaptureFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.audio.err = errors.New("device busy")

	err := h.controller.Start(context.Background())
	if !errors.Is(err, ErrRecordingStart) {
		t.Fatalf("expected ErrRecordingStart, got %v", err)
	}
	if h.controller.SessionActive() || h.controller.RecorderVisible() {
		t.Fatalf("session must be torn down")
	}
	if len(h.tempFiles(t)) != 0 {
		t.Fatalf("temp file leaked: %v", h.tempFiles(t))
	}
	notes := h.notifier.snapshot()
	if len(notes) != 1 || notes[0].Retryable {
		t.Fatalf("expected one non-retryable notification, got %+v", notes)
	}
	if h.loader.loads() != 0 {
		t.Fatalf("model must not load for a failed start")
	}
}

func TestSessionControllerRejectsSecondStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if h.audio.calls() != 1 {
		t.Fatalf("expected one capture, got %d", h.audio.calls())
	}
}

func failedRecordWithAudio(t *testing.T) domain.TranscriptionRecord {
	t.Helper()
	audioPath := filepath.Join(t.TempDir(), "A.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return domain.TranscriptionRecord{ID: "failed-1", AudioPath: audioPath, Failed: true, Error: "timeout"}
}

func TestSessionControllerRetryRefusedWhileRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Retry(context.Background(), failedRecordWithAudio(t)); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if h.transcriber.calls() != 0 {
		t.Fatalf("retry must not transcribe while recording")
	}

	if _, err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if h.transcriber.calls() != 1 || len(h.clipboard.snapshot()) != 1 {
		t.Fatalf("expected exactly one run, got %d transcriptions and clipboard %q", h.transcriber.calls(), h.clipboard.snapshot())
	}
}

func TestSessionControllerOneRunWhileRetryInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transcriber.started = make(chan struct{})
	h.transcriber.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.controller.Retry(context.Background(), failedRecordWithAudio(t))
		done <- err
	}()
	<-h.transcriber.started

	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive from start, got %v", err)
	}
	if _, err := h.controller.Retry(context.Background(), failedRecordWithAudio(t)); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive from second retry, got %v", err)
	}

	// A recording that somehow coexists with the run must not be stopped
	// into a second pipeline.
	recording := &fakeAudioSession{}
	h.controller.mu.Lock()
	h.controller.current = &activeSession{id: "rec", audio: recording}
	h.controller.mu.Unlock()
	if _, err := h.controller.Stop(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive from stop, got %v", err)
	}
	if recording.stopCalls() != 0 {
		t.Fatalf("refused stop must leave capture running")
	}
	h.controller.mu.Lock()
	h.controller.current = nil
	h.controller.mu.Unlock()

	close(h.transcriber.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("retry failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("retry did not return")
	}
	if h.transcriber.calls() != 1 || len(h.clipboard.snapshot()) != 1 {
		t.Fatalf("expected exactly one run, got %d transcriptions and clipboard %q", h.transcriber.calls(), h.clipboard.snapshot())
	}
}

func TestSessionControllerStopWithoutActiveSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.controller.Stop(context.Background())
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if err := h.controller.Cancel(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession from cancel, got %v", err)
	}
}

func TestSessionControllerTranscriptionFailurePersistsFailedRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transcriber.err = errors.New("model crashed")

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, err := h.controller.Stop(context.Background())
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}

	records := h.store.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one failed record, got %d", len(records))
	}
	failed := records[0]
	if !failed.Failed || failed.Text != "Transcription Failed: model crashed" {
		t.Fatalf("unexpected failed record: %+v", failed)
	}
	if _, err := os.Stat(failed.AudioPath); err != nil {
		t.Fatalf("failed record must keep its audio: %v", err)
	}
	if len(h.clipboard.snapshot()) != 0 || len(h.paster.snapshot()) != 0 {
		t.Fatalf("nothing may be delivered after a failed transcription")
	}
	notes := h.notifier.snapshot()
	if len(notes) != 1 || !notes[0].Retryable {
		t.Fatalf("expected retryable notification, got %+v", notes)
	}
	states := h.events.snapshotStates()
	if last := states[len(states)-1]; last.state != domain.SessionStateError || last.reason != domain.SessionReasonTranscriptionFailed {
		t.Fatalf("unexpected final state: %+v", last)
	}
	if len(h.tempFiles(t)) != 0 {
		t.Fatalf("temp file leaked")
	}
}

func TestSessionControllerCancelDuringTranscription(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.enhancement = true
	h.enhancer.out = "enhanced"
	h.transcriber.started = make(chan struct{})
	h.transcriber.release = make(chan struct{})

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	type stopOutcome struct {
		result domain.StopResult
		err    error
	}
	done := make(chan stopOutcome, 1)
	go func() {
		result, err := h.controller.Stop(context.Background())
		done <- stopOutcome{result: result, err: err}
	}()

	<-h.transcriber.started
	if err := h.controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(h.transcriber.release)

	var out stopOutcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}

	if !errors.Is(out.err, ErrCancelled) || !out.result.Cancelled {
		t.Fatalf("expected cancellation, got %+v %v", out.result, out.err)
	}
	if len(h.clipboard.snapshot()) != 0 {
		t.Fatalf("expected no clipboard writes, got %q", h.clipboard.snapshot())
	}
	if len(h.paster.snapshot()) != 0 {
		t.Fatalf("expected no paste")
	}
	if len(h.enhancer.snapshot()) != 0 {
		t.Fatalf("enhancement must be skipped")
	}
	if len(h.store.snapshot()) != 0 {
		t.Fatalf("cancelled runs persist no record")
	}
	if len(h.tempFiles(t)) != 0 || len(h.recordings(t)) != 0 {
		t.Fatalf("audio leaked: temp=%v permanent=%v", h.tempFiles(t), h.recordings(t))
	}
	if h.controller.RecorderVisible() || h.controller.Status().Active {
		t.Fatalf("controller should be idle")
	}
	states := h.events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonRecordingCancelled {
		t.Fatalf("unexpected final reason: %s", states[len(states)-1].reason)
	}
}

func TestSessionControllerCancelWhileRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if h.audio.session.stopCalls() != 1 {
		t.Fatalf("expected capture stopped")
	}
	if h.controller.SessionActive() || h.controller.RecorderVisible() {
		t.Fatalf("session must be released")
	}
	if len(h.tempFiles(t)) != 0 {
		t.Fatalf("temp file leaked")
	}
	if h.transcriber.calls() != 0 || len(h.store.snapshot()) != 0 {
		t.Fatalf("cancelled recording must not be transcribed or stored")
	}
	if _, err := h.controller.Stop(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession after cancel, got %v", err)
	}
}

func TestSessionControllerRetryCreatesNewRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	audioPath := filepath.Join(t.TempDir(), "A.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	original := domain.TranscriptionRecord{
		ID:              "failed-1",
		Text:            domain.FailedTextPrefix + "timeout",
		DurationSeconds: 2.5,
		AudioPath:       audioPath,
		ModelName:       "old-model",
		Failed:          true,
		Error:           "timeout",
	}
	h.store.records = []domain.TranscriptionRecord{original}
	h.transcriber.text = "retried text"

	record, err := h.controller.RetryLast(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if record.ID == original.ID || record.RetryOf != original.ID {
		t.Fatalf("expected a new record linked to the original, got %+v", record)
	}
	if record.Text != "retried text" || record.Failed || record.ModelName != localModel.Name {
		t.Fatalf("unexpected retry record: %+v", record)
	}
	records := h.store.snapshot()
	if len(records) != 2 || !reflect.DeepEqual(records[0], original) {
		t.Fatalf("original record must be untouched: %+v", records)
	}
	if got := h.transcriber.paths(); len(got) != 1 || got[0] != audioPath {
		t.Fatalf("retry must use the stored audio, got %v", got)
	}
	if got := h.paster.snapshot(); len(got) != 1 || got[0].text != "retried text " {
		t.Fatalf("expected paste of retried text, got %+v", got)
	}
	if _, err := os.Stat(audioPath); err != nil {
		t.Fatalf("retry must not delete stored audio: %v", err)
	}
	notes := h.notifier.snapshot()
	if len(notes) != 1 || notes[0].Kind != ports.NotificationSuccess {
		t.Fatalf("expected success notification, got %+v", notes)
	}
	states := h.events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonRetrySucceeded {
		t.Fatalf("unexpected final reason: %s", states[len(states)-1].reason)
	}
}

func TestSessionControllerRetryLastRequiresFailedRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.controller.RetryLast(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry on empty store, got %v", err)
	}

	h.store.records = []domain.TranscriptionRecord{{ID: "ok", Text: "fine"}}
	if _, err := h.controller.RetryLast(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry for successful record, got %v", err)
	}

	h.store.records = []domain.TranscriptionRecord{{ID: "gone", Failed: true, AudioPath: "/does/not/exist.wav"}}
	if _, err := h.controller.RetryLast(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry for missing audio, got %v", err)
	}
}

func TestSessionControllerPromptTriggerIsRevertedAfterRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prefs.prompts = []domain.Prompt{
		{ID: "default", Title: "Default"},
		{ID: "email", Title: "Email", TriggerWords: []string{"email"}},
	}
	h.prefs.activePrompt = "default"
	h.transcriber.text = "Email, can we meet tomorrow?"
	h.enhancer.out = "Hi, can we meet tomorrow?"

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	calls := h.enhancer.snapshot()
	if len(calls) != 1 || calls[0] != "Can we meet tomorrow?" {
		t.Fatalf("unexpected enhancer input: %q", calls)
	}
	if prompts := h.enhancer.snapshotPrompts(); prompts[0] != "email" {
		t.Fatalf("expected email prompt, got %v", prompts)
	}
	if h.prefs.EnhancementEnabled() {
		t.Fatalf("enhancement must be reverted")
	}
	if active, _ := h.prefs.ActivePrompt(); active.ID != "default" {
		t.Fatalf("active prompt must be reverted, got %s", active.ID)
	}
}

func TestSessionControllerEmptyTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transcriber.text = "   "

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, err := h.controller.Stop(context.Background())
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
	if len(h.store.snapshot()) != 0 || len(h.recordings(t)) != 0 {
		t.Fatalf("empty runs keep nothing")
	}
}

func TestSessionControllerLocalModelIsWarmedOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.controller.models = NewModelCache(h.loader, time.Hour, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.controller.Start(ctx); err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
		if _, err := h.controller.Stop(ctx); err != nil {
			t.Fatalf("stop %d failed: %v", i, err)
		}
	}
	if h.loader.loads() != 1 {
		t.Fatalf("expected one load across sessions, got %d", h.loader.loads())
	}
	if h.loader.unloads() != 0 {
		t.Fatalf("model must stay warm")
	}
	if !h.controller.models.Loaded(localModel) {
		t.Fatalf("model should still be cached")
	}
}

func TestSessionControllerToggleAndStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.Toggle(ctx); err != nil {
		t.Fatalf("toggle start failed: %v", err)
	}
	h.controller.MarkHandsFree()
	status := h.controller.Status()
	if status.State != domain.SessionStateRecording || !status.Active || !status.HandsFree || status.Model != localModel.Name {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := h.controller.Toggle(ctx); err != nil {
		t.Fatalf("toggle stop failed: %v", err)
	}
	if status := h.controller.Status(); status.Active {
		t.Fatalf("expected idle status, got %+v", status)
	}
}

type fakeAudioCapture struct {
	mu      sync.Mutex
	err     error
	n       int
	path    string
	session *fakeAudioSession
}

func (f *fakeAudioCapture) Start(_ context.Context, path string, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.path = path
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		return nil, err
	}
	f.session = &fakeAudioSession{}
	return f.session, nil
}

func (f *fakeAudioCapture) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *fakeAudioCapture) lastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

type fakeAudioSession struct {
	mu    sync.Mutex
	stops int
	err   error
}

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.err
}

func (f *fakeAudioSession) stopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	seen    []string
	started chan struct{}
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string, _ domain.ModelRef) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, audioPath)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	return f.text, f.err
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *fakeTranscriber) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeEnhancer struct {
	mu         sync.Mutex
	configured bool
	out        string
	err        error
	inputs     []string
	prompts    []string
}

func (f *fakeEnhancer) Configured() bool { return f.configured }

func (f *fakeEnhancer) Enhance(_ context.Context, text string, _ float64, prompt domain.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	f.prompts = append(f.prompts, prompt.ID)
	return f.out, f.err
}

func (f *fakeEnhancer) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

func (f *fakeEnhancer) snapshotPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeStore struct {
	mu      sync.Mutex
	records []domain.TranscriptionRecord
	err     error
}

func (f *fakeStore) Append(_ context.Context, record domain.TranscriptionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeStore) Latest(context.Context) (domain.TranscriptionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return domain.TranscriptionRecord{}, false, nil
	}
	return f.records[len(f.records)-1], true, nil
}

func (f *fakeStore) Recent(_ context.Context, limit int) ([]domain.TranscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TranscriptionRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeStore) snapshot() []domain.TranscriptionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptionRecord(nil), f.records...)
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type fakeClipboard struct {
	mu     sync.Mutex
	writes []string
	err    error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, text)
	return nil
}

func (f *fakeClipboard) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

type pasteCall struct {
	text     string
	preserve bool
}

type fakePaster struct {
	mu    sync.Mutex
	calls []pasteCall
}

func (f *fakePaster) Paste(_ context.Context, text string, preserve bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pasteCall{text: text, preserve: preserve})
	return nil
}

func (f *fakePaster) snapshot() []pasteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pasteCall(nil), f.calls...)
}

type fakePermissions struct {
	injection bool
}

func (f *fakePermissions) Accessibility() bool  { return f.injection }
func (f *fakePermissions) InputInjection() bool { return f.injection }

type fakeNotifier struct {
	mu    sync.Mutex
	notes []ports.Notification
}

func (f *fakeNotifier) Notify(n ports.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeNotifier) snapshot() []ports.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Notification(nil), f.notes...)
}

type fakePrefs struct {
	mu           sync.Mutex
	model        domain.ModelRef
	hasModel     bool
	autoCopy     bool
	replacement  bool
	enhancement  bool
	activePrompt string
	prompts      []domain.Prompt
}

func (f *fakePrefs) CurrentModel() (domain.ModelRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model, f.hasModel
}

func (f *fakePrefs) AutoCopy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoCopy
}

func (f *fakePrefs) WordReplacement() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replacement
}

func (f *fakePrefs) EnhancementEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enhancement
}

func (f *fakePrefs) SetEnhancementEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhancement = enabled
	return nil
}

func (f *fakePrefs) ActivePrompt() (domain.Prompt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.prompts {
		if p.ID == f.activePrompt {
			return p, true
		}
	}
	return domain.Prompt{}, false
}

func (f *fakePrefs) SetActivePrompt(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activePrompt = id
	return nil
}

func (f *fakePrefs) Prompts() []domain.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Prompt(nil), f.prompts...)
}

type fakeLoader struct {
	mu        sync.Mutex
	loadN     int
	unloadN   int
	loadErr   error
	unloadSig chan struct{}
	// When set, Unload blocks until it is closed.
	unloadGate chan struct{}
	order      []string
}

func (f *fakeLoader) Load(context.Context, domain.ModelRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadN++
	f.order = append(f.order, "load")
	return f.loadErr
}

func (f *fakeLoader) Unload(domain.ModelRef) error {
	f.mu.Lock()
	gate := f.unloadGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.unloadN++
	f.order = append(f.order, "unload")
	sig := f.unloadSig
	f.mu.Unlock()
	if sig != nil {
		sig <- struct{}{}
	}
	return nil
}

func (f *fakeLoader) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadN
}

func (f *fakeLoader) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeLoader) unloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unloadN
}

type fakeEventSink struct {
	mu sync.Mutex

	states     []stateEvent
	finals     []finalEvent
	errors     []errEvent
	visibility []bool
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type finalEvent struct {
	raw         string
	transformed string
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecorderVisibilityChanged(visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visibility = append(f.visibility, visible)
}

func (f *fakeEventSink) FinalTranscript(raw string, transformed string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, finalEvent{raw: raw, transformed: transformed})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotVisibility() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.visibility...)
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.errors {
		if e.code == code {
			return true
		}
	}
	return false
}
