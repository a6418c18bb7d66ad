package idempotency

import (
	"context"
	"errors"

	"github.com/fleetyard/eldcore/internal/logger"
)

// FailOpen wraps a Store so backend failures degrade to "no protection"
// instead of blocking ingestion: losing an event over an auxiliary-store
// outage is a compliance violation, accepting a duplicate is not. Reads
// report absent, writes are dropped, and every swallowed failure is
// logged. Context cancellation still propagates, since a dead request
// should not keep executing.
func FailOpen(next Store) Store {
	return &failOpenStore{next: next}
}

type failOpenStore struct {
	next Store
}

func (s *failOpenStore) Check(ctx context.Context, key string) (State, error) {
	state, err := s.next.Check(ctx, key)
	if err != nil {
		if cancelled(err) {
			return State{}, err
		}
		s.warn(ctx, "check", err)
		return State{Status: StatusAbsent}, nil
	}
	return state, nil
}

func (s *failOpenStore) SetInFlight(ctx context.Context, key string) (State, error) {
	state, err := s.next.SetInFlight(ctx, key)
	if err != nil {
		if cancelled(err) {
			return State{}, err
		}
		s.warn(ctx, "set_in_flight", err)
		return State{Status: StatusAbsent}, nil
	}
	return state, nil
}

func (s *failOpenStore) SetCompleted(ctx context.Context, key string, statusCode int, body []byte) error {
	if err := s.next.SetCompleted(ctx, key, statusCode, body); err != nil {
		if cancelled(err) {
			return err
		}
		s.warn(ctx, "set_completed", err)
	}
	return nil
}

func (s *failOpenStore) Clear(ctx context.Context, key string) error {
	if err := s.next.Clear(ctx, key); err != nil {
		if cancelled(err) {
			return err
		}
		s.warn(ctx, "clear", err)
	}
	return nil
}

// Ping reports the backend's real health so the readiness surface can
// show the degradation the wrapper is hiding from the pipeline.
func (s *failOpenStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *failOpenStore) Close() error {
	return s.next.Close()
}

func (s *failOpenStore) warn(ctx context.Context, op string, err error) {
	logger.WarnCtx(ctx, "idempotency store unreachable, proceeding without replay protection",
		logger.Component("idempotency"),
		"op", op,
		logger.Err(err),
	)
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
