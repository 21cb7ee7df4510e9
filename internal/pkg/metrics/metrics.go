package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every tower collector and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// FlightsDispatched counts flights handed a runway and launched.
	FlightsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_flights_dispatched_total",
			Help: "Total number of flights launched, by airline and runway.",
		},
		[]string{"airline", "runway"},
	)

	// FlightsFinished counts flight tasks by result: completed, faulted or aborted.
	FlightsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_flights_finished_total",
			Help: "Total number of flight cycles finished, by airline and result.",
		},
		[]string{"airline", "result"},
	)

	// FlightsRequeued counts failed dispatches, by the queue the flight went back to.
	FlightsRequeued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_flights_requeued_total",
			Help: "Total number of failed dispatches requeued, by queue and reason.",
		},
		[]string{"queue", "reason"},
	)

	FlightsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atc_flights_cancelled_total",
			Help: "Total number of flights cancelled after exhausting their reschedule budget.",
		},
	)

	FlightsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atc_flights_discarded_total",
			Help: "Total number of flights dropped because no flight task could be started.",
		},
	)

	// ActiveFlights is the number of flight tasks currently running.
	ActiveFlights = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "atc_active_flights",
			Help: "Number of flight cycles currently simulated.",
		},
	)

	// FlightDuration observes the wall time of a flight cycle.
	FlightDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atc_flight_duration_seconds",
			Help:    "Duration of simulated flight cycles.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // kind: arrival/departure
	)

	RunwayPreemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_runway_preemptions_total",
			Help: "Total number of runway occupants evicted by an emergency.",
		},
		[]string{"runway"},
	)

	// EmergencyRunwayRetries counts the extra runway attempts of emergency
	// flights that found every runway taken.
	EmergencyRunwayRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atc_emergency_runway_retries_total",
			Help: "Total number of runway acquisition retries made by emergency flights.",
		},
	)

	// ViolationsIssued counts violation notices, by airline.
	ViolationsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_violations_issued_total",
			Help: "Total number of violation notices issued, by airline.",
		},
		[]string{"airline"},
	)

	// ViolationsCleared counts clearances by result: cleared, duplicate or unknown.
	ViolationsCleared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_violations_cleared_total",
			Help: "Total number of clearances received, by result.",
		},
		[]string{"result"},
	)

	// ChannelErrors counts failed or partial channel operations.
	ChannelErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atc_channel_errors_total",
			Help: "Total number of failed channel reads and writes, by channel and operation.",
		},
		[]string{"channel", "op"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FlightsDispatched,
		FlightsFinished,
		FlightsRequeued,
		FlightsCancelled,
		FlightsDiscarded,
		ActiveFlights,
		FlightDuration,
		RunwayPreemptions,
		EmergencyRunwayRetries,
		ViolationsIssued,
		ViolationsCleared,
		ChannelErrors,
	)
}
