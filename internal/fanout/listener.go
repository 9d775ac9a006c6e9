// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
)

// DefaultTopic is the broadcast topic for data change events.
const DefaultTopic = "widget.data_changed"

// ErrListenerRunning is returned by Start on a running listener.
var ErrListenerRunning = errors.New("listener already running")

// NewBus creates the in-process pub/sub the notifier publishes on and the
// listener subscribes to.
func NewBus(cfg config.FanoutConfig) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: cfg.OutputBuffer},
		logging.NewWatermillLoggerWith(logging.WithComponent("bus")),
	)
}

// OffsetResetter moves every widget back to the current week.
type OffsetResetter interface {
	ResetOffsets() error
}

// Listener consumes broadcast events and redraws every surface. It is the
// passive path for surfaces that missed the direct refresh.
type Listener struct {
	cfg        config.FanoutConfig
	subscriber message.Subscriber
	surfaces   Refresher
	states     OffsetResetter
	logger     zerolog.Logger

	mu      sync.Mutex
	router  *message.Router
	done    chan struct{}
	handled int64
}

// NewListener creates a Listener. states may be nil.
func NewListener(cfg config.FanoutConfig, subscriber message.Subscriber, surfaces Refresher, states OffsetResetter) *Listener {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	return &Listener{
		cfg:        cfg,
		subscriber: subscriber,
		surfaces:   surfaces,
		states:     states,
		logger:     logging.WithComponent("fanout-listener"),
	}
}

// Start runs a fresh router in the background and returns once it is
// consuming.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.router != nil {
		return ErrListenerRunning
	}

	router, err := message.NewRouter(
		message.RouterConfig{CloseTimeout: l.cfg.CloseTimeout},
		logging.NewWatermillLoggerWith(l.logger),
	)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler("widget-refresh", l.cfg.Topic, l.subscriber, l.Handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(ctx); err != nil {
			l.logger.Error().Err(err).Msg("Listener router stopped")
		}
	}()

	select {
	case <-router.Running():
	case <-done:
		return errors.New("listener router exited before running")
	case <-ctx.Done():
		_ = router.Close()
		return ctx.Err()
	}

	l.router = router
	l.done = done
	l.logger.Info().Str("topic", l.cfg.Topic).Msg("Listening for data changes")
	return nil
}

// Stop closes the router, waiting for in-flight messages.
func (l *Listener) Stop() error {
	l.mu.Lock()
	router, done := l.router, l.done
	l.router, l.done = nil, nil
	l.mu.Unlock()

	if router == nil {
		return nil
	}
	err := router.Close()
	<-done
	if err != nil {
		return fmt.Errorf("close router: %w", err)
	}
	return nil
}

// IsRunning reports whether the listener is consuming.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.router != nil
}

// Handled returns how many events were applied.
func (l *Listener) Handled() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handled
}

// Handle applies one broadcast message. Malformed messages are acked and
// dropped so they are not redelivered forever.
func (l *Listener) Handle(msg *message.Message) error {
	env, err := DecodeEnvelope(msg.Payload)
	if err != nil {
		l.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed event")
		return nil
	}
	ev, err := env.Event()
	if err != nil {
		l.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping unknown event")
		return nil
	}

	ctx := msg.Context()
	if env.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, env.CorrelationID)
	}

	if _, ok := ev.(WeekChanged); ok && l.states != nil {
		if err := l.states.ResetOffsets(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to reset widget offsets")
		}
	}
	if l.surfaces != nil {
		l.surfaces.RefreshAll(ctx)
	}

	l.mu.Lock()
	l.handled++
	l.mu.Unlock()

	logging.Ctx(ctx).Debug().Str("event", string(env.Type)).Msg("Applied broadcast event")
	return nil
}
