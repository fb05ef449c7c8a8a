package mintviewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/internal/registry"
	"github.com/core-coin/mintviewer/internal/stream"
	"github.com/core-coin/mintviewer/pkg/logger"
)

// StreamService is the upstream event stream lifecycle.
type StreamService interface {
	Start(ctx context.Context) error
	Stop()
	State() stream.State
}

// BotService runs the command interface until ctx is cancelled.
type BotService interface {
	Start(ctx context.Context)
}

// MintViewer is the main struct of the application.
// It owns the lifecycle of the bot, the upstream stream and the store.
type MintViewer struct {
	logger *logger.Logger

	registry *registry.Registry
	repo     models.Repository
	stream   StreamService
	bot      BotService
}

var _ models.MintViewerI = (*MintViewer)(nil)

// NewMintViewer creates a new MintViewer instance
func NewMintViewer(
	registry *registry.Registry,
	repo models.Repository,
	stream StreamService,
	bot BotService,
	logger *logger.Logger,
) *MintViewer {
	return &MintViewer{
		logger:   logger,
		registry: registry,
		repo:     repo,
		stream:   stream,
		bot:      bot,
	}
}

// Run hydrates the registry, starts the bot and the stream and blocks until
// ctx is cancelled. On return the stream has been drained and the store closed.
func (m *MintViewer) Run(ctx context.Context) error {
	defer func() {
		if err := m.repo.Close(); err != nil {
			m.logger.Errorw("Failed to close database", "error", err)
		}
	}()

	if err := m.registry.Load(ctx); err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	botCtx, stopBot := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.bot.Start(botCtx)
	}()
	defer func() {
		stopBot()
		wg.Wait()
	}()

	if err := m.stream.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	m.logger.Info("MintViewer started")

	<-ctx.Done()
	m.logger.Info("Shutting down MintViewer...")
	m.stream.Stop()
	return nil
}

// Stats returns subscription counts.
func (m *MintViewer) Stats() models.RegistryStats {
	return m.registry.Stats()
}

// StreamState returns the upstream connection state.
func (m *MintViewer) StreamState() string {
	return m.stream.State().String()
}
