// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockEngine is a test double for the PolicyEngine interface.
type mockEngine struct {
	startErr   error
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (m *mockEngine) Start(_ context.Context) error {
	m.startCount.Add(1)
	return m.startErr
}

func (m *mockEngine) Stop() {
	m.stopCount.Add(1)
}

func TestEngineService_Interface(t *testing.T) {
	var _ suture.Service = (*EngineService)(nil)
}

func TestEngineService_Serve(t *testing.T) {
	t.Run("starts and stops with context", func(t *testing.T) {
		engine := &mockEngine{}
		svc := NewEngineService(engine)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		// Let Serve reach the blocking wait, then cancel.
		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after context cancellation")
		}

		if got := engine.startCount.Load(); got != 1 {
			t.Errorf("expected 1 Start call, got %d", got)
		}
		if got := engine.stopCount.Load(); got != 1 {
			t.Errorf("expected 1 Stop call, got %d", got)
		}
	})

	t.Run("returns start error without stopping", func(t *testing.T) {
		startErr := errors.New("worker refused")
		engine := &mockEngine{startErr: startErr}
		svc := NewEngineService(engine)

		err := svc.Serve(context.Background())
		if !errors.Is(err, startErr) {
			t.Errorf("expected start error, got %v", err)
		}
		if got := engine.stopCount.Load(); got != 0 {
			t.Errorf("expected 0 Stop calls after failed start, got %d", got)
		}
	})
}

func TestEngineService_String(t *testing.T) {
	svc := NewEngineService(&mockEngine{})
	if svc.String() != "policy-engine" {
		t.Errorf("expected 'policy-engine', got %q", svc.String())
	}
}
