package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dictakey/internal/logger"
)

type memClipboard struct {
	mu      sync.Mutex
	content string
	writes  []string
	readErr error
}

func (c *memClipboard) SetText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = text
	c.writes = append(c.writes, text)
	return nil
}

func (c *memClipboard) ReadText(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content, c.readErr
}

type fakeKeys struct {
	available bool
	err       error
	presses   int
	onPress   func()
}

func (k *fakeKeys) Available() bool { return k.available }

func (k *fakeKeys) PressPaste() error {
	k.presses++
	if k.onPress != nil {
		k.onPress()
	}
	return k.err
}

func newTestPaster(clip ClipboardIO, keys KeyInjector) *Paster {
	p := NewPaster(clip, keys, logger.Discard())
	p.settleDelay = 0
	p.restoreDelay = 0
	return p
}

func TestPastePreservesClipboard(t *testing.T) {
	t.Parallel()

	clip := &memClipboard{content: "user data"}
	var atPress string
	keys := &fakeKeys{available: true}
	keys.onPress = func() { atPress, _ = clip.ReadText(context.Background()) }

	require.NoError(t, newTestPaster(clip, keys).Paste(context.Background(), "dictated ", true))
	require.Equal(t, "dictated ", atPress)
	require.Equal(t, 1, keys.presses)
	require.Equal(t, "user data", clip.content)
	require.Equal(t, []string{"dictated ", "user data"}, clip.writes)
}

func TestPasteWithoutPreserveLeavesText(t *testing.T) {
	t.Parallel()

	clip := &memClipboard{content: "old"}
	keys := &fakeKeys{available: true}

	require.NoError(t, newTestPaster(clip, keys).Paste(context.Background(), "new ", false))
	require.Equal(t, "new ", clip.content)
	require.Equal(t, []string{"new "}, clip.writes)
}

func TestPasteUnreadableClipboardSkipsRestore(t *testing.T) {
	t.Parallel()

	clip := &memClipboard{readErr: errors.New("locked")}
	keys := &fakeKeys{available: true}

	require.NoError(t, newTestPaster(clip, keys).Paste(context.Background(), "text", true))
	require.Equal(t, []string{"text"}, clip.writes)
}

func TestPasteFailsWithoutInjection(t *testing.T) {
	t.Parallel()

	clip := &memClipboard{}
	err := newTestPaster(clip, &fakeKeys{}).Paste(context.Background(), "text", true)
	require.Error(t, err)
	require.Empty(t, clip.writes)
}

func TestPasteReportsKeystrokeFailure(t *testing.T) {
	t.Parallel()

	keys := &fakeKeys{available: true, err: errors.New("uinput")}
	err := newTestPaster(&memClipboard{}, keys).Paste(context.Background(), "text", false)
	require.ErrorContains(t, err, "uinput")
}

func TestPasteHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	keys := &fakeKeys{available: true}
	p := newTestPaster(&memClipboard{}, keys)
	p.settleDelay = DefaultSettleDelay

	require.ErrorIs(t, p.Paste(ctx, "text", false), context.Canceled)
	require.Zero(t, keys.presses)
}

func TestPermissionsReflectInjector(t *testing.T) {
	t.Parallel()

	require.True(t, NewPermissions(&fakeKeys{available: true}).InputInjection())
	require.False(t, NewPermissions(&fakeKeys{}).InputInjection())
	require.False(t, NewPermissions(nil).InputInjection())
}
