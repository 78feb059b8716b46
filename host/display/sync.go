package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flapchain/host/controller"
	"flapchain/protocol"
)

// Bus runs chain transactions. controller.Controller implements it.
type Bus interface {
	ReadAll(ctx context.Context, id protocol.PropertyID) ([][]byte, error)
	WriteAll(ctx context.Context, id protocol.PropertyID, value []byte) error
	WriteSequential(ctx context.Context, id protocol.PropertyID, values [][]byte) error
}

// Synchronizer brings the chain in line with a Display
type Synchronizer struct {
	display  *Display
	bus      Bus
	retries  int
	interval time.Duration
	log      zerolog.Logger
}

// SyncOption configures a Synchronizer
type SyncOption func(*Synchronizer)

// WithRetries sets how often a failed transaction is repeated
func WithRetries(n int) SyncOption {
	return func(s *Synchronizer) {
		s.retries = n
	}
}

// WithInterval sets the pause between passes of Run
func WithInterval(d time.Duration) SyncOption {
	return func(s *Synchronizer) {
		s.interval = d
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) SyncOption {
	return func(s *Synchronizer) {
		s.log = l.With().Str("component", "sync").Logger()
	}
}

// NewSynchronizer creates a synchronizer for d over bus
func NewSynchronizer(d *Display, bus Bus, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		display:  d,
		bus:      bus,
		retries:  3,
		interval: protocol.TriggerDelay,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover counts the modules on the chain and sizes the display
func (s *Synchronizer) Discover(ctx context.Context) (int, error) {
	values, err := s.readAll(ctx, protocol.PropertyNone)
	if err != nil {
		return 0, err
	}
	s.display.applyRead(protocol.PropertyNone, values)
	s.log.Info().Int("modules", len(values)).Msg("chain discovered")
	return len(values), nil
}

// SyncOnce runs one pass over every property: pending reads first, then a
// broadcast if requested, otherwise a sequential write of the modules that
// are out of sync. A failing property does not stop the pass; all errors
// are returned together.
func (s *Synchronizer) SyncOnce(ctx context.Context) error {
	for _, id := range s.display.PromoteWriteSeqToWriteAll() {
		s.log.Debug().Str("property", s.display.registry.Name(id)).Msg("promoted to write_all")
	}

	var errs []error
	for id := protocol.PropertyID(0); int(id) < protocol.MaxProperties; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncProperty(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.display.registry.Name(id), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Synchronizer) syncProperty(ctx context.Context, id protocol.PropertyID) error {
	if s.display.takeRead(id) {
		values, err := s.readAll(ctx, id)
		if err != nil {
			if controller.Retryable(err) {
				s.display.restoreRead(id)
			}
			return err
		}
		s.display.applyRead(id, values)
	}

	if value, ok := s.display.takeWrite(id); ok {
		err := s.retry(ctx, func() error {
			return s.bus.WriteAll(ctx, id, value)
		})
		if err != nil {
			if controller.Retryable(err) {
				s.display.restoreWrite(id)
			}
			return err
		}
		s.display.applyBroadcast(id, value)
		return nil
	}

	if values, ok := s.display.sequential(id); ok {
		err := s.retry(ctx, func() error {
			return s.bus.WriteSequential(ctx, id, values)
		})
		if err != nil {
			return err
		}
		s.display.confirmSequential(id, values)
	}
	return nil
}

func (s *Synchronizer) readAll(ctx context.Context, id protocol.PropertyID) ([][]byte, error) {
	var values [][]byte
	err := s.retry(ctx, func() error {
		var err error
		values, err = s.bus.ReadAll(ctx, id)
		return err
	})
	return values, err
}

// retry runs op until it succeeds, fails with a final error, or the retry
// budget is spent
func (s *Synchronizer) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err = op(); err == nil || !controller.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Debug().Err(err).Int("attempt", attempt+1).Msg("transaction failed, retrying")
	}
	return err
}

// Run synchronizes every interval until ctx is done
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.SyncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("sync pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
