package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// WatchFeed connects to a docwatch host bridge websocket feed and invokes onMessage
// for every snapshot until ctx is cancelled, the server closes, or onMessage returns an error.
// serverURL is the bridge's http(s) base URL; the /ws path is appended.
func WatchFeed(ctx context.Context, serverURL string, onMessage func(models.FeedMessage) error) error {
	wsEndpoint := strings.TrimRight(serverURL, "/") + "/ws"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse feed url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var msg models.FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case models.FeedSnapshot:
			if err := onMessage(msg); err != nil {
				return err
			}
		default:
			// Keep-alives and unknown types are ignored.
			continue
		}
	}
}
