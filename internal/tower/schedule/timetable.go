package schedule

import (
	"fmt"
	"time"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/rand"
)

// RouteSpec is one recurring route flown by an airline.
type RouteSpec struct {
	Direction string        `json:"direction" mapstructure:"direction"`
	Arrival   bool          `json:"arrival" mapstructure:"arrival"`
	Type      string        `json:"type" mapstructure:"type"`
	Prefix    string        `json:"prefix" mapstructure:"prefix"`
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
}

// AirlineTimetable lists the routes of one airline.
type AirlineTimetable struct {
	Airline string      `json:"airline" mapstructure:"airline"`
	Routes  []RouteSpec `json:"routes" mapstructure:"routes"`
}

// FlightSpec is a single flight added to the timetable as is.
type FlightSpec struct {
	FlightNumber string        `json:"flightNumber" mapstructure:"flightNumber"`
	Airline      string        `json:"airline" mapstructure:"airline"`
	Type         string        `json:"type" mapstructure:"type"`
	Direction    string        `json:"direction" mapstructure:"direction"`
	Arrival      bool          `json:"arrival" mapstructure:"arrival"`
	Offset       time.Duration `json:"offset" mapstructure:"offset"`
}

// Timetable seeds the scheduler at startup.
type Timetable struct {
	Airlines []AirlineTimetable `json:"airlines" mapstructure:"airlines"`
	Extra    []FlightSpec       `json:"extra" mapstructure:"extra"`

	// FirstOffset is the delay of each airline's first flight after start.
	FirstOffset time.Duration `json:"firstOffset" mapstructure:"firstOffset"`
	// Window bounds the offset of the flights generated from routes.
	Window time.Duration `json:"window" mapstructure:"window"`
}

const (
	defaultFirstOffset = 10 * time.Second
	defaultWindow      = 270 * time.Second
	routeSpacing       = 30 * time.Second
	routeJitterSeconds = 60
	flightNumberBase   = 100
)

func route(dir string, arrival bool, typ, prefix string, interval int) RouteSpec {
	return RouteSpec{Direction: dir, Arrival: arrival, Type: typ, Prefix: prefix, Interval: time.Duration(interval) * time.Second}
}

// DefaultTimetable is the stock schedule of the six airlines in DefaultRoster.
func DefaultTimetable() Timetable {
	return Timetable{
		Airlines: []AirlineTimetable{
			{Airline: "PIA", Routes: []RouteSpec{
				route("North", true, "Commercial", "PK", 180),
				route("East", false, "Commercial", "PK", 150),
			}},
			{Airline: "AirBlue", Routes: []RouteSpec{
				route("South", true, "Commercial", "AB", 120),
				route("West", false, "Commercial", "AB", 240),
			}},
			{Airline: "FedEx", Routes: []RouteSpec{
				route("North", true, "Cargo", "FX", 180),
				route("East", false, "Cargo", "FX", 150),
			}},
			{Airline: "Pakistan Airforce", Routes: []RouteSpec{
				route("North", true, "Emergency", "PAF", 180),
				route("South", true, "Emergency", "PAF", 120),
				route("East", false, "Emergency", "PAF", 150),
				route("West", false, "Emergency", "PAF", 240),
			}},
			{Airline: "Blue Dart", Routes: []RouteSpec{
				route("South", true, "Cargo", "BD", 120),
				route("West", false, "Cargo", "BD", 240),
			}},
			{Airline: "AghaKhan Air", Routes: []RouteSpec{
				route("North", true, "Emergency", "AK", 180),
				route("South", true, "Emergency", "AK", 120),
				route("East", false, "Emergency", "AK", 150),
				route("West", false, "Emergency", "AK", 240),
			}},
		},
		Extra: []FlightSpec{
			{FlightNumber: "PAF401-D", Airline: "Pakistan Airforce", Type: "Emergency", Direction: "East", Offset: 150 * time.Second},
		},
		FirstOffset: defaultFirstOffset,
		Window:      defaultWindow,
	}
}

func parseRoute(dir, typ string) (v1alpha1.Direction, v1alpha1.FlightType, error) {
	d, ok := v1alpha1.ParseDirection(dir)
	if !ok {
		return 0, 0, fmt.Errorf("unknown direction %q", dir)
	}
	t, ok := v1alpha1.ParseFlightType(typ)
	if !ok {
		return 0, 0, fmt.Errorf("unknown flight type %q", typ)
	}
	return d, t, nil
}

// Build expands the timetable into entries relative to start. For each
// airline the departures are laid out first, then the arrivals, one flight
// per route, while the running offset stays inside the window. Flight
// numbers are <prefix><100+n>-A or -D with n counted per prefix.
func (t Timetable) Build(src rand.Source, start time.Time) ([]*Entry, error) {
	first, window := t.FirstOffset, t.Window
	if first <= 0 {
		first = defaultFirstOffset
	}
	if window <= 0 {
		window = defaultWindow
	}

	var entries []*Entry
	seq := make(map[string]int)

	for _, al := range t.Airlines {
		var departures, arrivals []RouteSpec
		for _, r := range al.Routes {
			if r.Arrival {
				arrivals = append(arrivals, r)
			} else {
				departures = append(departures, r)
			}
		}

		offset := first
		for _, r := range append(departures, arrivals...) {
			if offset > window {
				break
			}
			dir, typ, err := parseRoute(r.Direction, r.Type)
			if err != nil {
				return nil, fmt.Errorf("airline %s: %w", al.Airline, err)
			}

			seq[r.Prefix]++
			suffix := "-D"
			if r.Arrival {
				suffix = "-A"
			}
			number := fmt.Sprintf("%s%d%s", r.Prefix, flightNumberBase+seq[r.Prefix], suffix)

			entries = append(entries, NewEntry(src, number, al.Airline, typ, dir, start.Add(offset), r.Arrival))
			offset += r.Interval + routeSpacing + time.Duration(src.Intn(routeJitterSeconds))*time.Second
		}
	}

	for _, f := range t.Extra {
		dir, typ, err := parseRoute(f.Direction, f.Type)
		if err != nil {
			return nil, fmt.Errorf("flight %s: %w", f.FlightNumber, err)
		}
		entries = append(entries, NewEntry(src, f.FlightNumber, f.Airline, typ, dir, start.Add(f.Offset), f.Arrival))
	}

	return entries, nil
}
