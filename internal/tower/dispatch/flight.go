package dispatch

import (
	"context"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	"github.com/autopeer-io/airtraffic/internal/tower/phase"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
)

const (
	resultCompleted = "completed"
	resultFaulted   = "faulted"
	resultAborted   = "aborted"
)

// fly runs one flight cycle and hands every resource back afterwards.
func (c *Coordinator) fly(ctx context.Context, f *flight) {
	e := f.entry
	logger := c.logger.WithValues("flight", e.FlightNumber, "aircraft", f.aircraft.ID)

	metrics.ActiveFlights.Inc()
	defer metrics.ActiveFlights.Dec()

	kind := "departure"
	if e.Arrival {
		kind = "arrival"
	}
	start := c.clock.Now()
	logger.Info("Flight cycle started", "kind", kind, "runway", f.runway, "type", e.Type, "international", e.International)

	m := phase.New(f.aircraft, e.Arrival, c.cfg.Phase)
	var (
		out phase.Outcome
		err error
	)
	if e.Arrival {
		out, err = m.Arrive(ctx)
	} else {
		out, err = m.Depart(ctx)
	}

	c.runways.Release(f.runway, e.FlightNumber)
	f.airline.CompleteFlight()
	snap := f.aircraft.Snapshot()

	result := resultCompleted
	switch {
	case err != nil:
		result = resultAborted
		logger.Error(err, "Flight cycle interrupted", "phase", m.Phase())
	case out.Faulted:
		result = resultFaulted
		logger.Warn("Ground fault, aircraft towed from taxiway", "phase", m.Phase())
	default:
		logger.Info("Flight cycle complete", "phase", m.Phase())
	}
	metrics.FlightsFinished.WithLabelValues(e.Airline, result).Inc()
	metrics.FlightDuration.WithLabelValues(kind).Observe(c.clock.Since(start).Seconds())

	c.mu.Lock()
	c.stats.flights++
	switch result {
	case resultCompleted:
		c.stats.completed++
	case resultFaulted:
		c.stats.faulted++
		c.stats.faults[e.Airline]++
	case resultAborted:
		c.stats.aborted++
	}
	if out.Violation != nil {
		c.stats.violations[e.Airline]++
	}
	c.mu.Unlock()

	if out.Violation != nil {
		n := c.tracker.Issue(violation.Subject{
			FlightNumber: e.FlightNumber,
			AircraftID:   f.aircraft.ID,
			Airline:      e.Airline,
			Type:         snap.Type,
		}, *out.Violation)
		metrics.ViolationsIssued.WithLabelValues(e.Airline).Inc()
		c.send(ctx, n)
	} else {
		logger.Info("Flight finished without violation")
	}

	f.aircraft.ResetForNextFlight()
	c.fleet.Release(f.aircraft)
}

// send writes n once. A failed write is logged and the notice is dropped.
func (c *Coordinator) send(ctx context.Context, n *violation.Notice) {
	if c.cfg.Sink == nil {
		c.logger.Warn("No violation channel configured, notice not sent", "violation", n.ID)
		return
	}
	if err := c.cfg.Sink.Send(ctx, n.ToWire()); err != nil {
		metrics.ChannelErrors.WithLabelValues("violations", "write").Inc()
		c.logger.Error(err, "Failed to send violation notice, dropped", "violation", n.ID, "flight", n.FlightNumber)
		return
	}
	c.logger.Info("Violation notice sent", "violation", n.ID, "flight", n.FlightNumber, "fine", n.Fine)
}
