package pool

import (
	"context"
	"net"
)

// ConnTracker adapts an http.Transport's DialContext so that every
// successfully established backend connection reports an on_open event
// to the owning pool's strategy, and on_close fires exactly once no
// matter how the connection ends — normal close, I/O error, timeout, or
// cancellation (spec.md §3 "Open-connection notifier", §4.6).
type ConnTracker struct {
	Strategy Strategy
	Dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (t *ConnTracker) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dial := t.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	conn, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	t.Strategy.OnOpen(addr)
	return &trackedConn{Conn: conn, addr: addr, strategy: t.Strategy}, nil
}

// trackedConn wraps net.Conn so Close (however it is reached: the
// client finishing the response body, an idle-timeout eviction from
// the transport's pool, or the request's context being canceled) fires
// on_close exactly once.
type trackedConn struct {
	net.Conn
	addr     string
	strategy Strategy
	closed   bool
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	if !c.closed {
		c.closed = true
		c.strategy.OnClose(c.addr)
	}
	return err
}
