package dispatch

import (
	"context"
	"errors"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

// Listen polls the clearance source until ctx is done.
func (c *Coordinator) Listen(ctx context.Context) {
	if c.cfg.Clearances == nil {
		c.logger.Warn("No clearance channel configured, listener not started")
		return
	}
	c.logger.Info("Clearance listener started", "interval", c.cfg.ListenerInterval)
	wait.UntilWithContext(ctx, c.drainClearances, c.cfg.ListenerInterval)
	c.logger.Info("Clearance listener stopped")
}

// drainClearances consumes every clearance currently pending.
func (c *Coordinator) drainClearances(ctx context.Context) {
	for ctx.Err() == nil {
		cl, err := c.cfg.Clearances.Receive(ctx)
		if err != nil {
			op := "read"
			if errors.Is(err, wire.ErrShortRecord) {
				op = "short_read"
			}
			metrics.ChannelErrors.WithLabelValues("clearances", op).Inc()
			c.logger.Error(err, "Failed to read clearance")
			return
		}
		if cl == nil {
			return
		}

		n, err := c.tracker.Clear(*cl)
		switch {
		case errors.Is(err, violation.ErrAlreadyCleared):
			metrics.ViolationsCleared.WithLabelValues("duplicate").Inc()
			c.logger.Info("Duplicate clearance ignored", "violation", cl.ViolationID, "flight", cl.FlightNumber)
		case err != nil:
			metrics.ViolationsCleared.WithLabelValues("unknown").Inc()
			c.logger.Error(err, "Clearance does not match an active violation")
		default:
			metrics.ViolationsCleared.WithLabelValues("cleared").Inc()
			c.logger.Info("Violation cleared", "violation", n.ID, "flight", n.FlightNumber, "aircraft", n.AircraftID)
		}
	}
}
