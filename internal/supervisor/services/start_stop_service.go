// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/weekline/internal/logging"
)

// StartStopper is a component with a background loop.
//
// Satisfied by:
//   - *scheduler.LocalHost
//   - *cachestore.Compactor
//   - *fanout.Listener
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// StartStopService adapts a Start/Stop component to suture's Serve.
type StartStopService struct {
	component StartStopper
	name      string
}

// NewStartStopService wraps component under name.
func NewStartStopService(name string, component StartStopper) *StartStopService {
	return &StartStopService{component: component, name: name}
}

// Serve starts the component, blocks until ctx is cancelled, then stops
// it. A failed start is returned so suture restarts the service with
// backoff.
func (s *StartStopService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.component.Stop(); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Service stop failed")
	}
	return ctx.Err()
}

func (s *StartStopService) String() string {
	return s.name
}
