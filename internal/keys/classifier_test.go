package keys

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dictakey/internal/domain"
)

type confirmation struct {
	seq    uint64
	signal domain.PressSignal
}

type confirmRecorder struct {
	mu    sync.Mutex
	fired []confirmation
}

func (r *confirmRecorder) confirm(seq uint64, signal domain.PressSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, confirmation{seq: seq, signal: signal})
}

func (r *confirmRecorder) snapshot() []confirmation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]confirmation, len(r.fired))
	copy(out, r.fired)
	return out
}

func fnEvent(pressed bool) domain.RawKeyEvent {
	var flags domain.ModifierFlags
	if pressed {
		flags = domain.ModFunction
	}
	return domain.RawKeyEvent{KeyCode: domain.KeyFn.KeyCode(), Flags: flags, At: time.Now()}
}

func TestClassifierImmediateKeyReturnsSynchronously(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(domain.KeyRightOption, nil)

	sig, ok := classifier.Classify(domain.RawKeyEvent{KeyCode: 0x3D, Flags: domain.ModOption})
	require.True(t, ok)
	require.True(t, sig.Pressed)

	sig, ok = classifier.Classify(domain.RawKeyEvent{KeyCode: 0x3D})
	require.True(t, ok)
	require.False(t, sig.Pressed)
	require.False(t, classifier.Pending())
}

func TestClassifierIgnoresOtherKeys(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(domain.KeyRightCommand, nil)

	_, ok := classifier.Classify(domain.RawKeyEvent{KeyCode: domain.KeyLeftOption.KeyCode(), Flags: domain.ModOption})
	require.False(t, ok)
}

func TestClassifierDebouncedKeyConfirmsOnlyStableState(t *testing.T) {
	t.Parallel()

	recorder := &confirmRecorder{}
	classifier := newClassifier(domain.KeyFn, 40*time.Millisecond, recorder.confirm)

	_, ok := classifier.Classify(fnEvent(true))
	require.False(t, ok)
	time.Sleep(10 * time.Millisecond)
	_, ok = classifier.Classify(fnEvent(false))
	require.False(t, ok)

	require.Eventually(t, func() bool { return len(recorder.snapshot()) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	fired := recorder.snapshot()
	require.Len(t, fired, 1)
	require.False(t, fired[0].signal.Pressed)

	sig, ok := classifier.Confirm(fired[0].seq)
	require.True(t, ok)
	require.False(t, sig.Pressed)
	require.False(t, classifier.Pending())
}

func TestClassifierDebouncedOppositeEventsYieldNoPressSignals(t *testing.T) {
	t.Parallel()

	recorder := &confirmRecorder{}
	classifier := newClassifier(domain.KeyFn, 40*time.Millisecond, recorder.confirm)
	machine := NewStateMachine(probeFunc(func() bool { return false }))

	classifier.Classify(fnEvent(true))
	time.Sleep(5 * time.Millisecond)
	classifier.Classify(fnEvent(false))

	require.Eventually(t, func() bool { return len(recorder.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	var actions []Action
	for _, c := range recorder.snapshot() {
		if sig, ok := classifier.Confirm(c.seq); ok {
			actions = append(actions, machine.Handle(sig, time.Now()))
		}
	}
	require.Equal(t, []Action{ActionNone}, actions)
	require.Equal(t, StateIdle, machine.State())
}

func TestClassifierStableDebouncedPressIsConfirmed(t *testing.T) {
	t.Parallel()

	recorder := &confirmRecorder{}
	classifier := newClassifier(domain.KeyFn, 20*time.Millisecond, recorder.confirm)

	classifier.Classify(fnEvent(true))
	require.True(t, classifier.Pending())
	require.Eventually(t, func() bool { return len(recorder.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	sig, ok := classifier.Confirm(recorder.snapshot()[0].seq)
	require.True(t, ok)
	require.True(t, sig.Pressed)
}

func TestClassifierResetMakesConfirmationStale(t *testing.T) {
	t.Parallel()

	recorder := &confirmRecorder{}
	classifier := newClassifier(domain.KeyFn, 20*time.Millisecond, recorder.confirm)

	classifier.Classify(fnEvent(true))
	staleSeq := classifier.seq
	classifier.Reset()

	_, ok := classifier.Confirm(staleSeq)
	require.False(t, ok)
	require.False(t, classifier.Pending())
}
