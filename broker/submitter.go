package broker

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Submitter wraps a Client with bounded exponential-backoff retries for
// transient failures. Permanent failures surface immediately as
// fatal-for-that-position.
type Submitter struct {
	client Client
	max    uint64
	log    zerolog.Logger
}

// NewSubmitter wraps client with at most maxRetries retry attempts per call.
func NewSubmitter(client Client, maxRetries uint64, log zerolog.Logger) *Submitter {
	return &Submitter{
		client: client,
		max:    maxRetries,
		log:    log.With().Str("component", "submitter").Logger(),
	}
}

// Unwrap exposes the underlying client, for callers that need a concrete
// capability of it (the paper broker's price marking, for one).
func (s *Submitter) Unwrap() Client { return s.client }

func (s *Submitter) retry(ctx context.Context, what string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg(what + " failed, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.max), ctx)
	if err := backoff.Retry(wrapped, b); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (s *Submitter) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var ord Order
	err := s.retry(ctx, "submit order "+req.Symbol, func() error {
		o, err := s.client.SubmitOrder(ctx, req)
		if err != nil {
			return err
		}
		ord = o
		return nil
	})
	return ord, err
}

func (s *Submitter) SubmitStop(ctx context.Context, req OrderRequest) (Order, error) {
	var ord Order
	err := s.retry(ctx, "submit stop "+req.Symbol, func() error {
		o, err := s.client.SubmitStop(ctx, req)
		if err != nil {
			return err
		}
		ord = o
		return nil
	})
	return ord, err
}

func (s *Submitter) ModifyStop(ctx context.Context, orderID string, stopPrice float64) error {
	return s.retry(ctx, "modify stop "+orderID, func() error {
		return s.client.ModifyStop(ctx, orderID, stopPrice)
	})
}

func (s *Submitter) CancelOrder(ctx context.Context, orderID string) error {
	return s.retry(ctx, "cancel order "+orderID, func() error {
		return s.client.CancelOrder(ctx, orderID)
	})
}

func (s *Submitter) Holdings(ctx context.Context) ([]Holding, error) {
	var out []Holding
	err := s.retry(ctx, "fetch holdings", func() error {
		h, err := s.client.Holdings(ctx)
		if err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}
