package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"dictakey/internal/domain"
	"dictakey/internal/ports"
)

// activeSession is one recording from capture start until cleanup.
type activeSession struct {
	id        string
	tempPath  string
	startedAt time.Time
	model     domain.ModelRef

	// Set once capture has started; guarded by SessionController.mu.
	audio     ports.AudioSession
	lease     *ModelLease
	handsFree bool

	cancelRequested atomic.Bool

	stateMu sync.Mutex
	state   domain.SessionState
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *activeSession) cancelled() bool {
	return s.cancelRequested.Load()
}

// pipelineRun is the input to steps shared by a fresh stop and a retry.
type pipelineRun struct {
	session   *activeSession
	audioPath string
	// ownsAudio is false on retry, where the audio belongs to an earlier record.
	ownsAudio bool
	model     domain.ModelRef
	duration  time.Duration
	retryOf   string
	lease     *ModelLease
}

func (r pipelineRun) cancelled() bool {
	return r.session != nil && r.session.cancelled()
}

// runOutcome is how a run ended, for the final state event.
type runOutcome struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}
