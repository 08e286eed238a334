// internal/bridge/conn.go
package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// connection owns the single TCP socket to the bridge process. It is
// rebuilt, not repaired: establish always tears down any existing socket
// and dials a fresh one.
type connection struct {
	mu        sync.RWMutex
	conn      net.Conn
	connected bool
	host      string
	port      int

	connectTimeout time.Duration
	ioTimeout      time.Duration
	keepAlive      net.KeepAliveConfig

	logger *zap.Logger
}

func newConnection(cfg *Config, logger *zap.Logger) *connection {
	return &connection{
		connectTimeout: cfg.ConnectTimeout,
		ioTimeout:      cfg.IOTimeout,
		keepAlive: net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepAliveIdle,
			Interval: cfg.KeepAliveInterval,
			Count:    cfg.KeepAliveCount,
		},
		logger: logger.With(zap.String("component", "connection")),
	}
}

// setTarget records the endpoint for establish and the watchdog
func (c *connection) setTarget(host string, port int) {
	c.mu.Lock()
	c.host = host
	c.port = port
	c.mu.Unlock()
}

// target returns the recorded endpoint, ok=false before the first connect
func (c *connection) target() (string, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host, c.port, c.host != ""
}

// establish closes any existing socket and opens a fresh one with
// keepalive configured. Failure leaves the state disconnected and is
// reported as a plain error; the caller decides what to do.
func (c *connection) establish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host == "" {
		return fmt.Errorf("no bridge endpoint configured")
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Debug("Closed existing socket")
	}
	c.connected = false

	dialer := &net.Dialer{
		Timeout:         c.connectTimeout,
		KeepAliveConfig: c.keepAlive,
	}

	address := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		c.logger.Error("Failed to connect to bridge", zap.String("address", address), zap.Error(err))
		return fmt.Errorf("failed to connect to bridge at %s: %w", address, err)
	}

	c.conn = conn
	c.connected = true

	c.logger.Info("Connected to bridge",
		zap.String("address", address),
		zap.Duration("io_timeout", c.ioTimeout),
	)
	return nil
}

// healthy reports whether a socket exists and is believed connected
func (c *connection) healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.connected
}

// markDown flags the connection as lost without closing it twice; the
// next establish rebuilds the socket
func (c *connection) markDown() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.mu.Unlock()
}

// write sends a full frame under the I/O timeout
func (c *connection) write(frame []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return fmt.Errorf("not connected")
	}

	conn.SetWriteDeadline(time.Now().Add(c.ioTimeout))
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("socket write failed: %w", err)
	}
	return nil
}

// read fills buf with whatever is available within the poll window. A
// deadline expiry returns n==0 with timeout=true so the reader can loop
// without treating it as a failure.
func (c *connection) read(buf []byte, poll time.Duration) (n int, timeout bool, err error) {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return 0, false, fmt.Errorf("not connected")
	}

	conn.SetReadDeadline(time.Now().Add(poll))
	n, err = conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

// close shuts the socket down for good
func (c *connection) close() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}
