package dispatch

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/runway"
)

// Stats is a snapshot of what the coordinator has done so far.
type Stats struct {
	Flights   int
	Completed int
	Faulted   int
	Aborted   int
	Requeued  int

	Cancelled []string
	Discarded []string

	ViolationsIssued int
	ViolationsActive int

	ViolationsPerAirline map[string]int
	FaultsPerAirline     map[string]int

	Airlines []fleet.AirlineStatus
	Runways  []runway.Status
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Flights:              c.stats.flights,
		Completed:            c.stats.completed,
		Faulted:              c.stats.faulted,
		Aborted:              c.stats.aborted,
		Requeued:             c.stats.requeued,
		Discarded:            slices.Clone(c.stats.discarded),
		ViolationsPerAirline: maps.Clone(c.stats.violations),
		FaultsPerAirline:     maps.Clone(c.stats.faults),
	}
	c.mu.Unlock()

	s.Cancelled = c.scheduler.Cancelled()
	s.ViolationsIssued, s.ViolationsActive = c.tracker.Counts()
	s.Airlines = c.fleet.Status()
	s.Runways = c.runways.Status()
	return s
}

// Report writes the end of run summary.
func (s Stats) Report(w io.Writer) error {
	summary := uitable.New()
	summary.AddRow("FLIGHTS SIMULATED:", s.Flights)
	summary.AddRow("COMPLETED:", s.Completed)
	summary.AddRow("GROUND FAULTS:", s.Faulted)
	summary.AddRow("INTERRUPTED:", s.Aborted)
	summary.AddRow("REQUEUED:", s.Requeued)
	summary.AddRow("CANCELLED:", listOrNone(s.Cancelled))
	summary.AddRow("DISCARDED:", listOrNone(s.Discarded))
	summary.AddRow("VIOLATIONS ISSUED:", s.ViolationsIssued)
	summary.AddRow("VIOLATIONS ACTIVE:", s.ViolationsActive)

	airlines := uitable.New()
	airlines.AddRow("AIRLINE", "AIRCRAFT", "ACTIVE FLIGHTS", "IN AIR", "VIOLATIONS", "FAULTS")
	for _, a := range s.Airlines {
		airlines.AddRow(
			a.Name,
			fmt.Sprintf("%d/%d", a.Aircraft, a.MaxAircraft),
			fmt.Sprintf("%d/%d", a.ActiveFlights, a.MaxFlights),
			a.InAir,
			s.ViolationsPerAirline[a.Name],
			s.FaultsPerAirline[a.Name],
		)
	}

	runways := uitable.New()
	runways.AddRow("RUNWAY", "OCCUPANT")
	for _, r := range s.Runways {
		occupant := "-"
		if r.Occupied {
			occupant = r.Occupant.FlightID
		}
		runways.AddRow(r.Kind, occupant)
	}

	_, err := fmt.Fprintf(w, "%s\n\n%s\n\n%s\n", summary, airlines, runways)
	return err
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
