package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"dictakey/internal/bootstrap"
	"dictakey/internal/domain"
	"dictakey/internal/ports"
	"dictakey/internal/usecase"
)

const (
	eventSession      = "dictakey:session"
	eventRecorder     = "dictakey:recorder"
	eventFinal        = "dictakey:final"
	eventError        = "dictakey:error"
	eventNotification = "dictakey:notification"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error

	cancel context.CancelFunc
	done   sync.WaitGroup
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Options{
		Events:    a,
		Notifier:  a,
		Clipboard: &wailsClipboard{ctx: ctx},
	})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done.Add(1)
	go func() {
		defer a.done.Done()
		if err := services.Run(runCtx); err != nil {
			services.Log.Error("background services stopped", "error", err)
		}
	}()
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.done.Wait()
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.services.Log.Warn("shutdown cleanup incomplete", "error", err)
		}
	}
}

// ToggleRecording is the frontend equivalent of the global shortcut.
func (a *App) ToggleRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Dispatcher.Toggle()
	return nil
}

// CancelRecording dismisses the recorder and cancels the current run.
func (a *App) CancelRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Dispatcher.Cancel()
	return nil
}

// RetryLast re-runs the most recent failed transcription.
func (a *App) RetryLast() (domain.TranscriptionRecord, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptionRecord{}, err
	}
	record, err := a.services.Controller.RetryLast(a.ctx)
	if err != nil && !errors.Is(err, usecase.ErrNothingToRetry) {
		a.SessionError(domain.ErrorCodeTranscription, err.Error())
	}
	return record, err
}

// LocalKeyEvent forwards a modifier change seen by the focused window.
func (a *App) LocalKeyEvent(keyCode uint16, flags uint8) bool {
	if a.requireReady() != nil {
		return false
	}
	return a.services.Local.Deliver(keyCode, domain.ModifierFlags(flags))
}

// ToggleEnhancement is the recorder-visible enhancement shortcut.
func (a *App) ToggleEnhancement() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Dispatcher.ToggleEnhancement()
	return nil
}

// SelectPrompt activates the n-th prompt, 1-based.
func (a *App) SelectPrompt(n int) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Dispatcher.SelectPrompt(n)
	return nil
}

// SetPushToTalkKey binds push-to-talk to key and reinstalls the hooks.
func (a *App) SetPushToTalkKey(key string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	parsed, err := domain.ParsePushToTalkKey(key)
	if err != nil {
		return err
	}
	binding := a.services.Settings.Binding()
	binding.Key = parsed
	return a.applyBinding(binding)
}

// SetPushToTalkEnabled turns push-to-talk on or off.
func (a *App) SetPushToTalkEnabled(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	binding := a.services.Settings.Binding()
	binding.Enabled = enabled
	return a.applyBinding(binding)
}

func (a *App) applyBinding(binding domain.PushToTalkBinding) error {
	if err := a.services.Settings.SetBinding(binding); err != nil {
		return err
	}
	return a.services.Dispatcher.Reconfigure(a.ctx, a.services.Settings.Binding())
}

// ListKeys returns every bindable key with its display label.
func (a *App) ListKeys() []map[string]string {
	keys := domain.AllPushToTalkKeys()
	out := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, map[string]string{"id": string(key), "label": key.Label()})
	}
	return out
}

// ListHistory returns up to limit records, newest first.
func (a *App) ListHistory(limit int) ([]domain.TranscriptionRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Store.Recent(a.ctx, limit)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.services.Controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	binding := a.services.Settings.Binding()
	info := map[string]string{
		"pushToTalkKey":  binding.Key.Label(),
		"toggleShortcut": cfg.Shortcut.Toggle,
		"audioBackend":   cfg.Audio.Backend,
		"audioInput":     cfg.Audio.InputDevice,
		"rulesFile":      cfg.Rules.Path,
		"store":          cfg.Store.Driver,
	}
	if model, ok := a.services.Settings.CurrentModel(); ok {
		info["model"] = model.Name
		info["provider"] = string(model.Provider)
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil || a.services.Dispatcher == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.emit(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// RecorderVisibilityChanged shows or hides the recording indicator.
func (a *App) RecorderVisibilityChanged(visible bool) {
	a.emit(eventRecorder, map[string]bool{"visible": visible})
}

// FinalTranscript emits final transcript output.
func (a *App) FinalTranscript(raw string, transformed string) {
	a.emit(eventFinal, map[string]string{
		"raw":         raw,
		"transformed": transformed,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// Notify mirrors desktop notifications into the window.
func (a *App) Notify(n ports.Notification) {
	a.emit(eventNotification, map[string]any{
		"title":     n.Title,
		"message":   n.Message,
		"kind":      string(n.Kind),
		"retryable": n.Retryable,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonHandsFree:
		return "Hands-free recording"
	case domain.SessionReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.SessionReasonEnhancing:
		return "Enhancing transcript..."
	case domain.SessionReasonTranscriptCopied:
		return "Transcript copied to clipboard"
	case domain.SessionReasonTranscriptPasted:
		return "Transcript pasted"
	case domain.SessionReasonTranscriptReadyClipboardFailed:
		return "Transcript ready (clipboard write failed)"
	case domain.SessionReasonRecordingCancelled:
		return "Recording cancelled"
	case domain.SessionReasonNoTranscript:
		return "No transcript captured"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonRecordingFailed:
		return "Recording failed"
	case domain.SessionReasonRetrySucceeded:
		return "Retry succeeded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeNoModel:
		return "No model selected"
	case domain.ErrorCodeRecordingStart:
		return "Recording could not start"
	case domain.ErrorCodeRecordingPersist:
		return "Recording could not be saved"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeEnhancement:
		return "Enhancement failed"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodePermission:
		return "Permission missing"
	case domain.ErrorCodeStore:
		return "History could not be saved"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// wailsClipboard uses the webview clipboard, which works where the system
// clipboard helpers are unavailable.
type wailsClipboard struct {
	ctx context.Context
}

func (c *wailsClipboard) SetText(_ context.Context, text string) error {
	return runtime.ClipboardSetText(c.ctx, text)
}

func (c *wailsClipboard) ReadText(_ context.Context) (string, error) {
	return runtime.ClipboardGetText(c.ctx)
}
