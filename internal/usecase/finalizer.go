package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dictakey/internal/domain"
	"dictakey/internal/ports"
)

// transcriptFinalizer runs everything after a successful transcription: clean-up,
// the raw clipboard write, enhancement, persistence, paste and the enhanced write.
type transcriptFinalizer struct {
	rules       ports.RulesEngine
	clipboard   ports.Clipboard
	paster      ports.Paster
	permissions ports.PermissionChecker
	enhancer    ports.Enhancer
	store       ports.TranscriptionStore
	prefs       ports.Preferences
	detector    promptDetector
	events      ports.EventSink
	log         *slog.Logger
	now         func() time.Time
}

type finalizeInput struct {
	run pipelineRun
	raw string
}

func (f transcriptFinalizer) Finalize(ctx context.Context, in finalizeInput) (domain.StopResult, runOutcome, error) {
	text := strings.TrimSpace(in.raw)
	if text != "" && f.prefs.WordReplacement() && f.rules != nil {
		replaced, err := f.rules.Apply(text)
		if err != nil {
			f.events.SessionError(domain.ErrorCodeRules, err.Error())
			f.log.Warn("word replacement failed, using unmodified text", "error", err)
		} else {
			text = strings.TrimSpace(replaced)
		}
	}
	if text == "" {
		return domain.StopResult{}, runOutcome{domain.SessionStateIdle, domain.SessionReasonNoTranscript}, ErrNoTranscript
	}
	if in.run.cancelled() {
		return cancelledResult()
	}

	autoCopy := f.prefs.AutoCopy()
	result := domain.StopResult{RawTranscript: text}
	clipboardFailed := false

	if autoCopy {
		if err := f.clipboard.SetText(ctx, text+" "); err != nil {
			clipboardFailed = true
			f.events.SessionError(domain.ErrorCodeClipboard, "transcript ready but clipboard write failed")
		} else {
			result.Copied = true
		}
	}

	detection := f.detector.Analyze(text)
	if err := f.detector.apply(detection); err != nil {
		f.log.Warn("prompt trigger could not be applied", "prompt", detection.PromptID, "error", err)
	}
	defer func() {
		if err := f.detector.revert(detection); err != nil {
			f.log.Warn("prompt trigger could not be reverted", "error", err)
		}
	}()

	enhanced := ""
	if f.prefs.EnhancementEnabled() && f.enhancer != nil && f.enhancer.Configured() {
		if in.run.cancelled() {
			return cancelledResult()
		}
		if in.run.session != nil {
			in.run.session.setState(domain.SessionStateDelivering)
		}
		f.events.SessionStateChanged(domain.SessionStateDelivering, domain.SessionReasonEnhancing)

		prompt, _ := f.prefs.ActivePrompt()
		out, err := f.enhancer.Enhance(ctx, detection.ProcessedText, in.run.duration.Seconds(), prompt)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrEnhancement, err)
			f.events.SessionError(domain.ErrorCodeEnhancement, err.Error())
			f.log.Warn("enhancement failed, delivering raw text", "error", err)
		} else {
			enhanced = strings.TrimSpace(out)
		}
	}
	if in.run.cancelled() {
		return cancelledResult()
	}

	record := domain.TranscriptionRecord{
		ID:              uuid.NewString(),
		Text:            text,
		EnhancedText:    enhanced,
		DurationSeconds: in.run.duration.Seconds(),
		AudioPath:       in.run.audioPath,
		ModelName:       in.run.model.Name,
		CreatedAt:       f.now(),
		RetryOf:         in.run.retryOf,
	}
	if err := f.store.Append(ctx, record); err != nil {
		f.events.SessionError(domain.ErrorCodeStore, err.Error())
		f.log.Error("transcription record not saved", "record", record.ID, "error", err)
	}
	result.Record = record

	delivered := record.DeliveredText()
	result.FinalTranscript = delivered

	if f.permissions != nil && f.permissions.InputInjection() {
		if err := f.paster.Paste(ctx, delivered+" ", !autoCopy); err != nil {
			f.log.Warn("paste failed", "error", err)
		} else {
			result.Pasted = true
		}
	} else {
		f.log.Info("input injection unavailable, transcript not pasted", "error", ErrPermissionUnavailable)
	}

	if autoCopy && enhanced != "" && enhanced != text {
		if err := f.clipboard.SetText(ctx, enhanced+" "); err != nil {
			clipboardFailed = true
			result.Copied = false
			f.events.SessionError(domain.ErrorCodeClipboard, "enhanced transcript clipboard write failed")
		}
	}

	f.events.FinalTranscript(result.RawTranscript, result.FinalTranscript)

	reason := domain.SessionReasonReady
	switch {
	case result.Pasted:
		reason = domain.SessionReasonTranscriptPasted
	case clipboardFailed:
		reason = domain.SessionReasonTranscriptReadyClipboardFailed
	case result.Copied:
		reason = domain.SessionReasonTranscriptCopied
	}
	return result, runOutcome{domain.SessionStateIdle, reason}, nil
}

func cancelledResult() (domain.StopResult, runOutcome, error) {
	return domain.StopResult{Cancelled: true}, runOutcome{domain.SessionStateIdle, domain.SessionReasonRecordingCancelled}, ErrCancelled
}
