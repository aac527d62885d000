package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	ws "nhooyr.io/websocket"
)

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry(slog.Default())
	const numConns = 3

	upstreamCodes := make(chan ws.StatusCode, numConns)
	upstream := startUpstream(t, func(_ *http.Request, c *ws.Conn) {
		ctx := context.Background()
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				upstreamCodes <- ws.CloseStatus(err)
				return
			}
			_ = c.Write(ctx, typ, data)
		}
	})
	front, results := startFront(t, NewBridge(reg), upstream, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientCodes := make(chan ws.StatusCode, numConns)
	for i := 0; i < numConns; i++ {
		c, _, err := ws.Dial(ctx, front, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer c.CloseNow()
		if err := c.Write(ctx, ws.MessageText, []byte("hi")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if _, _, err := c.Read(ctx); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		go func() {
			_, _, err := c.Read(ctx)
			clientCodes <- ws.CloseStatus(err)
		}()
	}

	if got := reg.Count(); got != numConns {
		t.Fatalf("expected %d sessions, got %d", numConns, got)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	reg.CloseAll(closeCtx)

	for i := 0; i < numConns; i++ {
		res := waitResult(t, results)
		if res.sess.State() != Closed {
			t.Errorf("session %d state = %v, want closed", res.sess.ID, res.sess.State())
		}
		if code := <-clientCodes; code != ws.StatusGoingAway {
			t.Errorf("client close = %v, want going away", code)
		}
		if code := <-upstreamCodes; code != ws.StatusGoingAway {
			t.Errorf("upstream close = %v, want going away", code)
		}
	}
	if got := reg.Count(); got != 0 {
		t.Errorf("Count() after CloseAll = %d, want 0", got)
	}
}

func TestRegistry_CloseAllEmpty(t *testing.T) {
	reg := NewRegistry(slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	reg.CloseAll(ctx)
}

func TestNewRegistry_NilLogger(t *testing.T) {
	reg := NewRegistry(nil)
	if reg.log == nil {
		t.Fatal("expected non-nil logger when nil passed to NewRegistry")
	}
}
