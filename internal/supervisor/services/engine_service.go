// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package services

import (
	"context"
	"fmt"
)

// PolicyEngine interface matches the policy engine lifecycle.
type PolicyEngine interface {
	Start(ctx context.Context) error
	Stop()
}

// EngineService wraps the policy engine as a supervised service. The engine's
// background work is its improvement-credit worker; the supervised lifecycle
// guarantees the worker stops before the supervisor reports shutdown.
type EngineService struct {
	engine PolicyEngine
	name   string
}

// NewEngineService creates a new policy engine service wrapper.
func NewEngineService(engine PolicyEngine) *EngineService {
	return &EngineService{
		engine: engine,
		name:   "policy-engine",
	}
}

// Serve implements suture.Service.
func (s *EngineService) Serve(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("policy engine start failed: %w", err)
	}

	<-ctx.Done()

	s.engine.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (s *EngineService) String() string {
	return s.name
}
