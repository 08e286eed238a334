// internal/bridge/client.go
package bridge

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Client multiplexes serial-bus commands for many logical channels over a
// single TCP connection to the bridge process. Requests are queued,
// serialized onto the wire by a single dispatcher, and correlated back to
// callers by token when the bridge answers. One instance per process is
// the intended usage, owned by whoever constructs it.
type Client struct {
	cfg    *Config
	logger *zap.Logger

	conn     *connection
	registry *registry
	emitter  *Emitter

	queue  chan *Request
	stopCh chan struct{}
	stop   sync.Once
	wg     sync.WaitGroup

	sendLocks *lockMap
	recvLocks *lockMap

	// lastSend is touched only by the dispatch goroutine
	lastSend time.Time

	sent      atomic.Uint64
	succeeded atomic.Uint64
	timedOut  atomic.Uint64
	failed    atomic.Uint64
}

// NewClient creates a client and starts its background workers. The
// client stays idle until Connect is called; workers simply wait for a
// connection to appear.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "bridge-client")),
		conn:      newConnection(cfg, logger),
		registry:  newRegistry(),
		emitter:   NewEmitter(logger),
		queue:     make(chan *Request, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		sendLocks: newLockMap(),
		recvLocks: newLockMap(),
	}

	for name, worker := range map[string]func(){
		"dispatch": c.dispatchLoop,
		"read":     c.readLoop,
		"sweep":    c.sweepLoop,
		"watchdog": c.watchdogLoop,
		"health":   c.healthLoop,
	} {
		c.wg.Add(1)
		go func(name string, worker func()) {
			defer c.wg.Done()
			worker()
		}(name, worker)
	}

	c.logger.Info("Bridge client initialized", zap.Int("queue_size", cfg.QueueSize))
	return c
}

// Connect records the bridge endpoint and establishes the connection.
// The endpoint is remembered either way so the watchdog keeps trying
// after an initial failure.
func (c *Client) Connect(host string, port int) error {
	c.conn.setTarget(host, port)
	if err := c.conn.establish(); err != nil {
		return err
	}
	c.publishConnEvent(EventConnected)
	return nil
}

// Events exposes the client's event emitter
func (c *Client) Events() *Emitter {
	return c.emitter
}

// Submit queues a command for transmission and returns its token.
// The outcome arrives as a response event on the emitter; synchronous
// callers should use the typed helpers instead.
func (c *Client) Submit(deviceClass, channel string, payload []byte, opts SubmitOptions) string {
	token, _ := c.submit(deviceClass, channel, payload, opts)
	return token
}

// submit builds, registers and enqueues a request, returning the token
// and the one-shot completion channel
func (c *Client) submit(deviceClass, channel string, payload []byte, opts SubmitOptions) (string, <-chan *Response) {
	if opts.BaudRate == 0 {
		opts.BaudRate = c.cfg.DefaultBaudRate
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.DefaultTimeout
	}

	token := NewToken(deviceClass, channel, payload)
	req := &Request{
		Token:          token,
		DeviceClass:    deviceClass,
		Channel:        channel,
		Payload:        payload,
		BaudRate:       opts.BaudRate,
		ResponseLength: opts.ResponseLength,
		Timeout:        timeout,
	}
	req.Frame = encodeFrame(req, opts.Timeout != 0)

	done := c.registry.add(req)

	select {
	case c.queue <- req:
		c.logger.Debug("Command queued",
			zap.String("token", token),
			zap.String("device_class", deviceClass),
		)
	default:
		c.logger.Error("Command queue full, dropping command", zap.String("token", token))
		c.resolveError(token, StatusQueueFull, time.Now())
	}

	return token, done
}

// encodeFrame serializes a request into its wire line: colon-delimited
// fields, CRC-trailed hex payload, newline terminated. The timeout field
// is appended only when the caller set one explicitly.
func encodeFrame(req *Request, withTimeout bool) []byte {
	parts := []string{
		req.Token,
		req.DeviceClass,
		req.Channel,
		strconv.Itoa(req.BaudRate),
		hex.EncodeToString(AppendChecksum(req.Payload)),
		strconv.Itoa(req.ResponseLength),
	}
	if withTimeout {
		parts = append(parts, strconv.FormatFloat(req.Timeout.Seconds(), 'g', -1, 64))
	}
	return []byte(strings.Join(parts, ":") + "\n")
}

// dispatchLoop is the single writer: it drains the queue, enforces the
// global minimum spacing between transmissions, and stamps send times.
// One slow channel cannot block another channel's waiters, but total
// throughput is serialized here on purpose.
func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case req := <-c.queue:
			// Drop, not dispatch, anything pulled after shutdown began
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.dispatch(req)
		}
	}
}

func (c *Client) dispatch(req *Request) {
	if !c.conn.healthy() {
		c.logger.Error("Socket unhealthy before sending command", zap.String("token", req.Token))
		c.reconnect()
		if !c.conn.healthy() {
			c.resolveError(req.Token, StatusSendFailed, time.Now())
			return
		}
	}

	if wait := c.cfg.CommandInterval - time.Since(c.lastSend); wait > 0 {
		select {
		case <-c.stopCh:
			return
		case <-time.After(wait):
		}
	}

	lock := c.sendLocks.get(ChannelLeaf(req.Channel))
	lock.Lock()
	err := c.conn.write(req.Frame)
	sentAt := time.Now()
	lock.Unlock()

	if err != nil {
		c.logger.Error("Failed to send command", zap.String("token", req.Token), zap.Error(err))
		c.conn.markDown()
		c.publishConnEvent(EventDisconnected)
		c.resolveError(req.Token, StatusSendFailed, sentAt)
		return
	}

	c.lastSend = sentAt
	c.registry.markSent(req.Token, sentAt)
	c.sent.Add(1)
	c.logger.Debug("Command sent",
		zap.String("token", req.Token),
		zap.String("channel", req.Channel),
	)
}

// sweepLoop resolves requests whose deadline has passed. Only sent
// requests are swept; queued-but-unsent ones are bounded by the caller's
// wait deadline.
func (c *Client) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			for _, entry := range c.registry.expired(now, c.cfg.SweepGrace) {
				c.logger.Warn("Command timed out",
					zap.String("token", entry.token),
					zap.Duration("age", now.Sub(entry.sentAt)),
				)
				c.resolveError(entry.token, StatusTimeout, now)
			}
		}
	}
}

// watchdogLoop patiently re-establishes a lost connection, one attempt
// per interval, for as long as the client runs
func (c *Client) watchdogLoop() {
	ticker := time.NewTicker(c.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.conn.healthy() {
				continue
			}
			if _, _, ok := c.conn.target(); !ok {
				continue
			}
			c.logger.Info("Watchdog attempting to reconnect")
			if err := c.conn.establish(); err == nil {
				c.publishConnEvent(EventConnected)
			}
		}
	}
}

// reconnect is the on-demand path used by the dispatcher and reader on
// I/O failure: a few quick attempts with growing backoff, then give up
// and leave further healing to the watchdog.
func (c *Client) reconnect() bool {
	if _, _, ok := c.conn.target(); !ok {
		return false
	}
	c.conn.markDown()

	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		c.logger.Info("Attempting to reconnect",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.ReconnectAttempts),
		)
		if err := c.conn.establish(); err == nil {
			c.publishConnEvent(EventConnected)
			return true
		}
		if attempt == c.cfg.ReconnectAttempts {
			break
		}

		backoff := min(time.Duration(attempt)*c.cfg.ReconnectBackoff, c.cfg.ReconnectBackoffMax)
		select {
		case <-c.stopCh:
			return false
		case <-time.After(backoff):
		}
	}
	return false
}

// healthLoop periodically reports queue depth and in-flight count
func (c *Client) healthLoop() {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			depth := len(c.queue)
			pending := c.registry.len()

			if depth > c.cfg.QueueSize*8/10 {
				c.logger.Warn("Command queue nearly full",
					zap.Int("depth", depth),
					zap.Int("capacity", c.cfg.QueueSize),
				)
			}
			if pending > 100 {
				c.logger.Warn("High number of pending commands", zap.Int("pending", pending))
			}

			c.logger.Debug("Client health",
				zap.Int("queue_depth", depth),
				zap.Int("pending", pending),
				zap.Bool("connected", c.conn.healthy()),
			)
		}
	}
}

// resolveError produces the terminal failure Response for token, if no
// other path got there first
func (c *Client) resolveError(token string, status Status, at time.Time) {
	entry := c.registry.take(token)
	if entry == nil {
		return
	}
	c.complete(entry, &Response{
		Token:       token,
		DeviceClass: entry.deviceClass,
		Status:      status,
		Timestamp:   at,
	})
}

// complete delivers a Response to its waiter and the event stream,
// updating counters. Callers must own the entry via registry.take.
func (c *Client) complete(entry *pendingRequest, resp *Response) {
	switch resp.Status {
	case StatusSuccess:
		c.succeeded.Add(1)
	case StatusTimeout:
		c.timedOut.Add(1)
	default:
		c.failed.Add(1)
	}

	entry.done <- resp
	c.emitter.Publish(Event{
		Type:      EventResponse,
		Response:  resp,
		Timestamp: time.Now(),
	})

	c.logger.Info("Request resolved",
		zap.String("token", resp.Token),
		zap.String("status", string(resp.Status)),
		zap.Duration("total_time", time.Since(entry.queuedAt)),
	)
}

func (c *Client) publishConnEvent(eventType string) {
	host, port, ok := c.conn.target()
	address := ""
	if ok {
		address = fmt.Sprintf("%s:%d", host, port)
	}
	c.emitter.Publish(Event{Type: eventType, Address: address, Timestamp: time.Now()})
}

// Stats returns a snapshot of client health for observability
func (c *Client) Stats() Stats {
	return Stats{
		Connected:     c.conn.healthy(),
		QueueDepth:    len(c.queue),
		QueueCapacity: c.cfg.QueueSize,
		Pending:       c.registry.len(),
		Sent:          c.sent.Load(),
		Succeeded:     c.succeeded.Load(),
		TimedOut:      c.timedOut.Load(),
		Failed:        c.failed.Load(),
	}
}

// Connected reports whether the client currently holds a live socket
func (c *Client) Connected() bool {
	return c.conn.healthy()
}

// Stop shuts down the background workers, closes the socket and discards
// queued-but-unsent requests without resolving them
func (c *Client) Stop() {
	c.stop.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.conn.close()
		c.emitter.Stop()

		drained := 0
		for {
			select {
			case <-c.queue:
				drained++
			default:
				c.logger.Info("Bridge client stopped", zap.Int("discarded_requests", drained))
				return
			}
		}
	})
}

// lockMap hands out one mutex per channel, creating them lazily. The
// creation step itself is guarded so two callers racing on a new channel
// get the same lock.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*sync.Mutex)}
}

func (lm *lockMap) get(name string) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, ok := lm.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		lm.locks[name] = lock
	}
	return lock
}
