package providers

import (
	"context"
	"errors"
	"time"
)

// ErrProviderMisconfigured is the only error a provider returns from Search.
// Vendor failures are logged and reported as an empty result instead.
var ErrProviderMisconfigured = errors.New("provider misconfigured")

type Airport struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Flight is one normalized offer. Providers build it once from the vendor
// payload and nobody mutates it afterwards.
type Flight struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Airline      string `json:"airline"`
	AirlineLogo  string `json:"airline_logo,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`

	Origin      Airport `json:"origin"`
	Destination Airport `json:"destination"`

	DepartAt       time.Time  `json:"departure_datetime"`
	ArriveAt       time.Time  `json:"arrival_datetime"`
	ReturnDepartAt *time.Time `json:"return_departure_datetime,omitempty"`
	ReturnArriveAt *time.Time `json:"return_arrival_datetime,omitempty"`

	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	CabinClass      CabinClass `json:"cabin_class"`
	BaggageIncluded bool       `json:"baggage_included"`
	BaggageWeight   string     `json:"baggage_weight,omitempty"`
	AvailableSeats  int        `json:"available_seats"`

	Stops       int    `json:"stops"`
	DurationMin int    `json:"duration_minutes"`
	BookingURL  string `json:"booking_url"`
}

// FlightProvider is implemented once per external data source.
//
// Search must be safe for concurrent use. Ordinary failures (network, vendor
// status, malformed payload, missing credentials) are logged and yield an
// empty slice with a nil error.
type FlightProvider interface {
	Name() string
	Search(ctx context.Context, params SearchParams) ([]Flight, error)
	IsAvailable() bool
	// Priority is an ordering hint; lower is preferred.
	Priority() int
}

// defaultSeats is reported when a vendor omits availability.
const defaultSeats = 9
