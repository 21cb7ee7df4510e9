package fleet

import (
	"fmt"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
)

// AircraftSpec declares one aircraft of an airline.
type AircraftSpec struct {
	ID   string `json:"id" mapstructure:"id"`
	Type string `json:"type" mapstructure:"type"`
}

// AirlineSpec declares an airline with its capacity and its aircraft.
type AirlineSpec struct {
	Name        string         `json:"name" mapstructure:"name"`
	MaxAircraft int            `json:"max-aircraft" mapstructure:"max-aircraft"`
	MaxFlights  int            `json:"max-flights" mapstructure:"max-flights"`
	Aircraft    []AircraftSpec `json:"aircraft" mapstructure:"aircraft"`
}

// DefaultRoster is the stock fleet: six airlines, sixteen aircraft.
func DefaultRoster() []AirlineSpec {
	return []AirlineSpec{
		{Name: "PIA", MaxAircraft: 6, MaxFlights: 4, Aircraft: []AircraftSpec{
			{ID: "PK-101", Type: "Commercial"},
			{ID: "PK-102", Type: "Commercial"},
			{ID: "PK-103", Type: "Commercial"},
			{ID: "PK-104", Type: "Emergency"},
		}},
		{Name: "AirBlue", MaxAircraft: 4, MaxFlights: 4, Aircraft: []AircraftSpec{
			{ID: "AB-201", Type: "Commercial"},
			{ID: "AB-202", Type: "Commercial"},
			{ID: "AB-203", Type: "Commercial"},
			{ID: "AB-204", Type: "Emergency"},
		}},
		{Name: "FedEx", MaxAircraft: 3, MaxFlights: 2, Aircraft: []AircraftSpec{
			{ID: "FX-301", Type: "Cargo"},
			{ID: "FX-302", Type: "Emergency"},
		}},
		{Name: "Pakistan Airforce", MaxAircraft: 2, MaxFlights: 1, Aircraft: []AircraftSpec{
			{ID: "PAF-401", Type: "Cargo"},
			{ID: "PAF-402", Type: "Emergency"},
		}},
		{Name: "Blue Dart", MaxAircraft: 2, MaxFlights: 2, Aircraft: []AircraftSpec{
			{ID: "BD-601", Type: "Cargo"},
			{ID: "BD-602", Type: "Emergency"},
		}},
		{Name: "AghaKhan Air", MaxAircraft: 2, MaxFlights: 1, Aircraft: []AircraftSpec{
			{ID: "AK-701", Type: "Emergency"},
			{ID: "AK-702", Type: "Commercial"},
		}},
	}
}

// Load registers every airline and aircraft of specs. It stops at the first
// configuration error.
func (r *Registry) Load(specs []AirlineSpec) error {
	for _, as := range specs {
		if _, err := r.AddAirline(as.Name, as.MaxAircraft, as.MaxFlights); err != nil {
			return err
		}
		for _, cs := range as.Aircraft {
			t, ok := v1alpha1.ParseFlightType(cs.Type)
			if !ok {
				return fmt.Errorf("fleet: aircraft %s of %s has unknown type %q", cs.ID, as.Name, cs.Type)
			}
			if _, err := r.Register(cs.ID, t, as.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
