package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisync/verisync/internal/channel"
	"github.com/verisync/verisync/internal/mock"
	"github.com/verisync/verisync/internal/session"
)

func newTestRegistry(t *testing.T) (*channel.Manager, *channel.Registry, *mock.Dialer) {
	t.Helper()
	mgr, dialer := newTestManager(t)
	reg := channel.NewRegistry(mgr, zerolog.Nop())
	return mgr, reg, dialer
}

func TestSubscribeRequiresConnection(t *testing.T) {
	_, reg, _ := newTestRegistry(t)

	err := reg.Subscribe("s-1", "corr-1")
	require.ErrorIs(t, err, session.ErrNotConnected)
	assert.Empty(t, reg.Tracked())
}

func TestSubscribeSendsControlFrame(t *testing.T) {
	mgr, reg, dialer := newTestRegistry(t)
	require.NoError(t, mgr.Connect(context.Background()))

	require.NoError(t, reg.Subscribe("s-1", "corr-1"))

	frames := dialer.LastConn().ControlFrames("subscribe")
	require.Len(t, frames, 1)
	assert.Equal(t, "corr-1", frames[0]["correlationId"])
	assert.Equal(t, []string{"s-1"}, reg.Tracked())
}

func TestUnsubscribeBestEffort(t *testing.T) {
	mgr, reg, dialer := newTestRegistry(t)
	require.NoError(t, mgr.Connect(context.Background()))
	require.NoError(t, reg.Subscribe("s-1", "corr-1"))

	// Channel down: unsubscribe must not error, only drop tracking.
	dialer.LastConn().Drop()
	reg.Unsubscribe("s-1")
	assert.Empty(t, reg.Tracked())

	// Unknown session is a no-op.
	reg.Unsubscribe("nope")
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	mgr, reg, dialer := newTestRegistry(t)
	require.NoError(t, mgr.Connect(context.Background()))

	require.NoError(t, reg.Subscribe("s-1", "corr-1"))
	require.NoError(t, reg.Subscribe("s-2", "corr-2"))

	first := dialer.LastConn()
	first.Drop()

	second := dialer.WaitConns(2, time.Second)
	require.NotNil(t, second, "manager should reconnect")

	require.Eventually(t, func() bool {
		return len(second.ControlFrames("subscribe")) == 2
	}, time.Second, time.Millisecond, "both sessions should be re-subscribed without caller intervention")

	seen := map[string]bool{}
	for _, f := range second.ControlFrames("subscribe") {
		corr, _ := f["correlationId"].(string)
		seen[corr] = true
	}
	assert.True(t, seen["corr-1"] && seen["corr-2"])
}

func TestDisconnectClearsTracking(t *testing.T) {
	mgr, reg, _ := newTestRegistry(t)
	require.NoError(t, mgr.Connect(context.Background()))
	require.NoError(t, reg.Subscribe("s-1", "corr-1"))

	mgr.Disconnect()
	assert.Empty(t, reg.Tracked())
}
