package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/breakout/market"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
)

// wireMessage is the JSON envelope the data service sends. Bars and flow
// samples share a stream; the engine relies on the service's interleaving.
type wireMessage struct {
	Type         string  `json:"type"` // "bar" or "flow"
	Symbol       string  `json:"symbol"`
	Time         string  `json:"time"` // RFC3339
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	ImbalancePct float64 `json:"imbalance_pct"`
}

type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Stream is a live feed over a websocket data service.
type Stream struct {
	conn *websocket.Conn
	stop chan struct{}
}

// OpenStream dials the data service and subscribes the watchlist symbols.
func OpenStream(ctx context.Context, url string, symbols []string) (*Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial data stream %s: %w", url, err)
	}
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Symbols: symbols}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &Stream{conn: conn, stop: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go s.pingLoop()
	return s, nil
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-s.stop:
			return
		}
	}
}

// Next blocks until the next message arrives. A normal close from the
// service ends the stream without error.
func (s *Stream) Next() (Tick, bool, error) {
	var msg wireMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Tick{}, false, nil
		}
		return Tick{}, false, fmt.Errorf("read data stream: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, msg.Time)
	if err != nil {
		return Tick{}, false, fmt.Errorf("data stream: bad time %q: %w", msg.Time, err)
	}

	switch msg.Type {
	case "bar":
		return Tick{
			Kind:   BarEvent,
			Symbol: msg.Symbol,
			Bar: market.Bar{
				OpenTime: ts,
				Open:     msg.Open,
				High:     msg.High,
				Low:      msg.Low,
				Close:    msg.Close,
				Volume:   msg.Volume,
			},
		}, true, nil
	case "flow":
		return Tick{
			Kind:   FlowEvent,
			Symbol: msg.Symbol,
			Flow:   market.OrderFlowSample{Symbol: msg.Symbol, Time: ts, ImbalancePct: msg.ImbalancePct},
		}, true, nil
	default:
		return Tick{}, false, fmt.Errorf("data stream: unknown message type %q", msg.Type)
	}
}

func (s *Stream) Close() error {
	close(s.stop)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
