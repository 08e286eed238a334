// internal/bridge/reader.go
package bridge

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// readLoop is the single consumer of the socket. It polls for readable
// data, reassembles newline-delimited response records per channel, and
// hands complete lines to handleLine. A zero-length read means the
// bridge hung up; the loop triggers reconnection and keeps going.
func (c *Client) readLoop() {
	buf := make([]byte, c.cfg.ReadBufferSize)
	buffers := make(map[string]string)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if !c.conn.healthy() {
			select {
			case <-c.stopCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		n, timedOut, err := c.conn.read(buf, c.cfg.ReadPollInterval)
		if timedOut {
			continue
		}
		if err != nil || n == 0 {
			if err != nil {
				c.logger.Error("Error reading response", zap.Error(err))
			} else {
				c.logger.Error("Connection lost: zero-length read")
			}
			c.conn.markDown()
			c.publishConnEvent(EventDisconnected)
			c.reconnect()
			continue
		}

		data := string(buf[:n])
		channel := TokenChannel(data)

		lock := c.recvLocks.get(channel)
		lock.Lock()
		buffers[channel] += data
		for {
			idx := strings.Index(buffers[channel], "\n")
			if idx < 0 {
				break
			}
			line := buffers[channel][:idx]
			buffers[channel] = buffers[channel][idx+1:]
			if line = strings.TrimSpace(line); line != "" {
				c.handleLine(line)
			}
		}
		lock.Unlock()
	}
}

// handleLine parses one response record and resolves the matching
// pending request. Lines for unknown tokens are dropped with a warning;
// a late duplicate after timeout is noise, not an error.
func (c *Client) handleLine(line string) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return
	}
	token := parts[0]

	entry := c.registry.take(token)
	if entry == nil {
		c.logger.Warn("Received response for unknown command", zap.String("token", token))
		return
	}

	resolvedAt := responseTimestamp(parts)

	if strings.Contains(parts[1], "ERROR") {
		errCode := StatusUnknownError
		if len(parts) >= 4 {
			errCode = Status(parts[2])
		}
		c.complete(entry, &Response{
			Token:       token,
			DeviceClass: entry.deviceClass,
			Status:      errCode,
			Timestamp:   resolvedAt,
		})
		return
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		c.complete(entry, &Response{
			Token:       token,
			DeviceClass: entry.deviceClass,
			Status:      StatusInvalidResponse,
			Timestamp:   resolvedAt,
		})
		return
	}
	if len(data) == 0 {
		data = nil
	}

	c.complete(entry, &Response{
		Token:       token,
		DeviceClass: entry.deviceClass,
		Data:        data,
		Status:      StatusSuccess,
		Timestamp:   resolvedAt,
	})
}

// responseTimestamp extracts the optional trailing server timestamp
// (unix seconds), falling back to the local clock. Values outside a
// plausible unix range are ignored rather than folded into a garbage
// time.
func responseTimestamp(parts []string) time.Time {
	if len(parts) >= 3 {
		if secs, err := strconv.ParseFloat(parts[len(parts)-1], 64); err == nil && secs > 0 && secs < 1<<33 {
			sec, frac := math.Modf(secs)
			return time.Unix(int64(sec), int64(frac*float64(time.Second)))
		}
	}
	return time.Now()
}
