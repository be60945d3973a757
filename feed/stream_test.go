package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// fakeService upgrades one connection, checks the subscribe request, sends
// the canned messages, then closes normally.
func fakeService(t *testing.T, messages []wireMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub subscribeRequest
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe", sub.Action)
		assert.NotEmpty(t, sub.Symbols)

		for _, msg := range messages {
			require.NoError(t, conn.WriteJSON(msg))
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamDeliversBarsAndFlow(t *testing.T) {
	t.Parallel()
	srv := fakeService(t, []wireMessage{
		{Type: "bar", Symbol: "AAPL", Time: "2026-03-02T09:35:00Z", Open: 188.1, High: 188.4, Low: 188.0, Close: 188.3, Volume: 12000},
		{Type: "flow", Symbol: "AAPL", Time: "2026-03-02T09:35:02Z", ImbalancePct: -55.0},
	})
	defer srv.Close()

	s, err := OpenStream(context.Background(), wsURL(srv), []string{"AAPL"})
	require.NoError(t, err)
	defer s.Close()

	tk, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BarEvent, tk.Kind)
	assert.Equal(t, 188.3, tk.Bar.Close)

	tk, ok, err = s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FlowEvent, tk.Kind)
	assert.Equal(t, -55.0, tk.Flow.ImbalancePct)

	// Normal close ends the stream without error.
	_, ok, err = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamRejectsUnknownMessage(t *testing.T) {
	t.Parallel()
	srv := fakeService(t, []wireMessage{{Type: "heartbeat", Time: "2026-03-02T09:35:00Z"}})
	defer srv.Close()

	s, err := OpenStream(context.Background(), wsURL(srv), []string{"AAPL"})
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Next()
	assert.Error(t, err)
}

func TestStreamDialFailure(t *testing.T) {
	t.Parallel()
	_, err := OpenStream(context.Background(), "ws://127.0.0.1:1/stream", []string{"AAPL"})
	assert.Error(t, err)
}
