// Package broker defines the order-routing interface the engine consumes
// and a simulated implementation for replay and tests. The engine issues
// orders synchronously; fills arrive later as events keyed by broker order
// id.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// OrderKind distinguishes immediate and resting orders.
type OrderKind int

const (
	Market OrderKind = iota + 1
	Stop
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "MARKET"
	case Stop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// OrderRequest is a new order. Side is the position side the order acts
// for; Closing marks orders that reduce an existing position. ClientID is
// a caller-chosen correlation id echoed back on the order and its fills,
// so a fill can be matched even when it arrives before the submit call
// returns the broker's own id.
type OrderRequest struct {
	Symbol    string
	Side      market.Side
	Shares    int
	Kind      OrderKind
	StopPrice float64 // Stop orders only
	Closing   bool
	ClientID  string
}

// Order is the broker's acknowledgment of a submitted request.
type Order struct {
	ID        string
	ClientID  string
	Symbol    string
	Side      market.Side
	Shares    int
	Kind      OrderKind
	StopPrice float64
	Closing   bool
	Submitted time.Time
}

// Fill reports an execution, keyed by broker order id and, when the
// request carried one, the client correlation id. A stop the broker
// executes on its own produces a fill the engine never asked for; the
// position manager must drive the same removal path for it.
type Fill struct {
	OrderID  string
	ClientID string
	Symbol   string
	Side     market.Side
	Shares   int
	Price    float64
	Time     time.Time
	Closing  bool
}

// Holding is one line of the broker's current book, consumed once at
// startup for reconciliation. Shares are signed: negative means short.
type Holding struct {
	Symbol   string
	Shares   int
	AvgPrice float64
}

// Client is the order-routing surface the engine consumes.
type Client interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	SubmitStop(ctx context.Context, req OrderRequest) (Order, error)
	ModifyStop(ctx context.Context, orderID string, stopPrice float64) error
	CancelOrder(ctx context.Context, orderID string) error
	Holdings(ctx context.Context) ([]Holding, error)
}

// FillListener receives execution events. Implementations must not call
// back into the Client from OnFill.
type FillListener interface {
	OnFill(Fill)
}

// ErrOrderNotFound is returned for an unknown order id.
var ErrOrderNotFound = errors.New("broker: order not found")

// TransientError wraps a failure worth retrying (timeouts, throttling).
// Anything else is permanent: the caller must not silently continue
// assuming the order succeeded.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient broker failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
