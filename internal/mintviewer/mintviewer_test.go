package mintviewer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/internal/registry"
	"github.com/core-coin/mintviewer/internal/stream"
	"github.com/core-coin/mintviewer/pkg/logger"
)

type stubRepo struct {
	ids     []models.RecipientID
	loadErr error
	closed  atomic.Bool
}

func (r *stubRepo) InsertSubscriptionIfAbsent(context.Context, models.RecipientID, time.Time) error {
	return nil
}

func (r *stubRepo) LoadSubscriberIDs(context.Context) ([]models.RecipientID, error) {
	return r.ids, r.loadErr
}

func (r *stubRepo) Close() error {
	r.closed.Store(true)
	return nil
}

type stubStream struct {
	startErr error
	state    atomic.Int32
	stopped  atomic.Bool
}

func (s *stubStream) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.state.Store(int32(stream.StateConnected))
	return nil
}

func (s *stubStream) Stop() {
	s.stopped.Store(true)
	s.state.Store(int32(stream.StateStopped))
}

func (s *stubStream) State() stream.State { return stream.State(s.state.Load()) }

type stubBot struct {
	started atomic.Bool
	exited  atomic.Bool
}

func (b *stubBot) Start(ctx context.Context) {
	b.started.Store(true)
	<-ctx.Done()
	b.exited.Store(true)
}

func newTestApp(repo *stubRepo, s *stubStream, b *stubBot) (*MintViewer, *registry.Registry) {
	reg := registry.New(repo, gifts.Default(), logger.NewNop())
	return NewMintViewer(reg, repo, s, b, logger.NewNop()), reg
}

func TestRunLifecycle(t *testing.T) {
	repo := &stubRepo{ids: []models.RecipientID{1, 2}}
	s, b := &stubStream{}, &stubBot{}
	app, reg := newTestApp(repo, s, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.StreamState() == "connected" }, time.Second, time.Millisecond)
	assert.True(t, reg.IsPaid(1))
	assert.Equal(t, models.RegistryStats{Paid: 2}, app.Stats())
	assert.Eventually(t, b.started.Load, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, s.stopped.Load())
	assert.True(t, b.exited.Load())
	assert.True(t, repo.closed.Load())
	assert.Equal(t, "stopped", app.StreamState())
}

func TestRunLoadFailure(t *testing.T) {
	repo := &stubRepo{loadErr: errors.New("disk gone")}
	s, b := &stubStream{}, &stubBot{}
	app, _ := newTestApp(repo, s, b)

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.False(t, b.started.Load())
	assert.True(t, repo.closed.Load())
}

func TestRunStreamStartFailure(t *testing.T) {
	repo := &stubRepo{}
	s, b := &stubStream{startErr: errors.New("already started")}, &stubBot{}
	app, _ := newTestApp(repo, s, b)

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.True(t, b.exited.Load(), "bot is stopped before Run returns")
	assert.True(t, repo.closed.Load())
}
