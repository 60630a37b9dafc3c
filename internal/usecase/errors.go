package usecase

import "errors"

var (
	ErrNoModelSelected       = errors.New("no transcription model selected")
	ErrRecordingStart        = errors.New("recording could not start")
	ErrRecordingPersist      = errors.New("recording could not be saved")
	ErrTranscription         = errors.New("transcription failed")
	ErrEnhancement           = errors.New("enhancement failed")
	ErrCancelled             = errors.New("recording cancelled")
	ErrPermissionUnavailable = errors.New("permission unavailable")
	ErrNoActiveSession       = errors.New("no active recording session")
	ErrSessionActive         = errors.New("a recording session is already in progress")
	ErrNothingToRetry        = errors.New("no failed transcription to retry")
	ErrNoTranscript          = errors.New("no transcript captured")
)
