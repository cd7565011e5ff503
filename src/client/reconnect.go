package client

import (
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/events"
)

// scheduleReconnectLocked arms the reconnect timer unless reconnects are
// disabled, one is already pending or the attempt budget is spent.
func (c *Client) scheduleReconnectLocked() {
	if !c.cfg.AutoReconnect || c.explicit || c.closed {
		return
	}
	if c.timer != nil || c.state == Connected || c.state == Connecting {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.reconnecting = false
		c.logger.Warn().Int("max_attempts", c.cfg.MaxReconnectAttempts).Msg("reconnect attempts exhausted")
		e := newError(ReconnectExhausted, ErrReconnectExhausted, nil)
		c.reportLocked(e)
		hooks := c.hooks
		attempts := c.attempts
		var fns []func()
		if hooks.OnReconnectExhausted != nil {
			fns = append(fns, func() { hooks.OnReconnectExhausted(attempts) })
		}
		fns = append(fns, c.emitFn(events.ReconnectExhausted, map[string]any{"attempts": attempts}))
		c.dispatch.enqueue(fns...)
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.cfg.ReconnectDelay()
	c.logger.Info().
		Int("attempt", attempt).
		Int("max_attempts", c.cfg.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	hooks := c.hooks
	var fns []func()
	if hooks.OnReconnect != nil {
		fns = append(fns, func() { hooks.OnReconnect(attempt) })
	}
	fns = append(fns, c.emitFn(events.Reconnecting, map[string]any{
		"attempt":      attempt,
		"max_attempts": c.cfg.MaxReconnectAttempts,
	}))
	c.dispatch.enqueue(fns...)
	c.armTimerLocked(delay, c.onReconnectTimer)
}

func (c *Client) onReconnectTimer() {
	if c.explicit || c.closed || c.state == Connected || c.state == Connecting {
		return
	}
	c.reconnecting = true
	c.startAttemptLocked()
}

// armTimerLocked replaces the single state-machine timer. fn runs with the
// client lock held and only if the timer was not stopped or replaced.
func (c *Client) armTimerLocked(d time.Duration, fn func()) {
	c.stopTimerLocked()
	c.timerGen++
	tg := c.timerGen
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if tg != c.timerGen {
			return
		}
		c.timer = nil
		fn()
	})
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}
