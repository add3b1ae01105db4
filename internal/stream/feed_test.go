package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber hands the handler of each subscription to the test.
type fakeSubscriber struct {
	handlers chan storage.TradeHandler
	channels chan string
	ended    chan struct{}
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(chan storage.TradeHandler, 1),
		channels: make(chan string, 1),
		ended:    make(chan struct{}, 1),
	}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, channel string, handler storage.TradeHandler) error {
	f.channels <- channel
	if f.err != nil {
		return f.err
	}
	f.handlers <- handler
	<-ctx.Done()
	f.ended <- struct{}{}
	return ctx.Err()
}

func newTestFeed(t *testing.T, sub Subscriber) (*Feed, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	feed, err := NewFeed(FeedConfig{Subscriber: sub, Logger: logger, PingInterval: time.Hour})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = feed.Serve(w, r, "trades:pool:abc")
	}))
	t.Cleanup(srv.Close)
	return feed, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewFeedRequiresSubscriber(t *testing.T) {
	_, err := NewFeed(FeedConfig{})
	assert.Error(t, err)
}

func TestFeedRelaysTrades(t *testing.T) {
	sub := newFakeSubscriber()
	feed, url := newTestFeed(t, sub)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var handler storage.TradeHandler
	select {
	case handler = <-sub.handlers:
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not subscribe")
	}
	assert.Equal(t, "trades:pool:abc", <-sub.channels)
	assert.Equal(t, int64(1), feed.Clients())

	handler(&models.TradeEvent{ID: "trd_1", TokenIn: "USDC", TokenOut: "USDT", AmountOut: "9900.985245583370205193"})
	handler(&models.TradeEvent{ID: "trd_2"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var got models.TradeEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "trd_1", got.ID)
	assert.Equal(t, "9900.985245583370205193", got.AmountOut)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "trd_2", got.ID)

	// Closing the client tears down its subscription
	require.NoError(t, conn.Close())
	select {
	case <-sub.ended:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription not cancelled after disconnect")
	}
	assert.Eventually(t, func() bool { return feed.Clients() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestFeedClosesOnSubscriptionError(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = errors.New("redis down")
	_, url := newTestFeed(t, sub)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
}

func TestFeedRejectsPlainHTTP(t *testing.T) {
	_, url := newTestFeed(t, newFakeSubscriber())

	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
