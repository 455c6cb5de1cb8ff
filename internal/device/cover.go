package device

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Cover is a WHO=2 shutter actuator.
//
// Advanced actuators report their position. For the others the position is
// estimated from the configured travel times and the time between events.
//
// State keys: "opening", "closing", and when known "position" and "closed".
type Cover struct {
	entity

	openingTime time.Duration
	closingTime time.Duration

	// Guarded by entity.mu.
	position  *int
	opening   bool
	closing   bool
	lastEvent time.Time
	moveTimer *time.Timer
}

func newCover(cfg Config, sender Sender, out *output) *Cover {
	return &Cover{
		entity:      newEntity(cfg, sender, out),
		openingTime: seconds(cfg.OpeningTime),
		closingTime: seconds(cfg.ClosingTime),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SupportsPosition reports whether set_position is available.
func (c *Cover) SupportsPosition() bool {
	return c.cfg.AdvancedShutter || (c.openingTime > 0 && c.closingTime > 0)
}

// HandleEvent applies automation frames.
func (c *Cover) HandleEvent(msg openwebnet.Message) {
	ev, ok := msg.(*openwebnet.AutomationEvent)
	if !ok {
		return
	}
	c.update(msg, func(s map[string]any) bool {
		now := c.out.now()

		switch {
		case ev.Position != nil:
			pos := *ev.Position
			c.position = &pos
		case !c.lastEvent.IsZero() && c.openingTime > 0 && c.closingTime > 0:
			c.estimate(now.Sub(c.lastEvent))
		}

		c.lastEvent = now
		c.opening = ev.Opening
		c.closing = ev.Closing

		s["opening"] = c.opening
		s["closing"] = c.closing
		if c.position != nil {
			s["position"] = *c.position
		}
		if closed := ev.IsClosed(); closed != nil {
			s["closed"] = *closed
		} else if c.position != nil {
			s["closed"] = *c.position == 0
		}
		return true
	})
}

// estimate advances the position by the travel done in elapsed.
// Caller holds c.mu.
func (c *Cover) estimate(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	switch {
	case c.opening:
		if elapsed > c.openingTime {
			c.position = intPtr(100) //nolint:mnd // fully open
		} else if c.position != nil {
			moved := 100 * elapsed.Seconds() / c.openingTime.Seconds()
			c.position = intPtr(int(math.Round(math.Min(100, float64(*c.position)+moved))))
		}
	case c.closing:
		if elapsed > c.closingTime {
			c.position = intPtr(0)
		} else if c.position != nil {
			moved := 100 * elapsed.Seconds() / c.closingTime.Seconds()
			c.position = intPtr(int(math.Round(math.Max(0, float64(*c.position)-moved))))
		}
	}
}

func intPtr(v int) *int { return &v }

// AsyncUpdate polls the cover state.
func (c *Cover) AsyncUpdate() {
	c.sender.SendStatusRequest(openwebnet.AutomationStatus(c.cfg.FullWhere()))
}

// Command handles open, close, stop and set_position.
func (c *Cover) Command(cmd Command) error {
	where := c.cfg.FullWhere()

	switch cmd.Action {
	case ActionOpen:
		c.cancelMove()
		c.sender.Send(openwebnet.AutomationRaise(where))
	case ActionClose:
		c.cancelMove()
		c.sender.Send(openwebnet.AutomationLower(where))
	case ActionStop:
		c.cancelMove()
		c.sender.Send(openwebnet.AutomationStop(where))
	case ActionSetPosition:
		if cmd.Position == nil || *cmd.Position < 0 || *cmd.Position > 100 {
			return fmt.Errorf("%w: set_position needs a position 0-100", ErrInvalidCommand)
		}
		if !c.SupportsPosition() {
			return c.unsupported(cmd.Action)
		}
		if c.cfg.AdvancedShutter {
			c.sender.Send(openwebnet.AutomationSetPosition(where, *cmd.Position))
			return nil
		}
		c.timedMove(where, *cmd.Position)
	default:
		return c.unsupported(cmd.Action)
	}
	return nil
}

// timedMove raises or lowers the cover for the share of its travel time
// needed to reach target, then stops it. Nothing is sent beyond a stop
// when the current position is unknown.
func (c *Cover) timedMove(where string, target int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.moveTimer != nil {
		c.moveTimer.Stop()
		c.moveTimer = nil
	}
	if c.opening || c.closing {
		c.sender.Send(openwebnet.AutomationStop(where))
	}
	if c.position == nil {
		return
	}

	move := target - *c.position
	var travel time.Duration
	switch {
	case move > 0:
		travel = time.Duration(float64(c.openingTime) * float64(move) / 100) //nolint:mnd // percent
		c.sender.Send(openwebnet.AutomationRaise(where))
	case move < 0:
		travel = time.Duration(float64(c.closingTime) * float64(-move) / 100) //nolint:mnd // percent
		c.sender.Send(openwebnet.AutomationLower(where))
	default:
		return
	}

	c.out.log().Debug("timed cover move", "key", string(c.cfg.Key), "target", target, "travel", travel)
	c.moveTimer = time.AfterFunc(travel, func() {
		c.sender.Send(openwebnet.AutomationStop(where))
	})
}

func (c *Cover) cancelMove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.moveTimer != nil {
		c.moveTimer.Stop()
		c.moveTimer = nil
	}
}
