package service

import (
	"context"
	"sort"

	"github.com/you/go-flights-aggregator/internal/providers"
)

// Cheapest returns the first n flights of a price-sorted list; n <= 0 keeps
// them all.
func Cheapest(flights []providers.Flight, n int) []providers.Flight {
	if n <= 0 || n > len(flights) {
		n = len(flights)
	}
	return append([]providers.Flight(nil), flights[:n]...)
}

// Fastest orders by duration; equal durations keep their price order.
func Fastest(flights []providers.Flight) []providers.Flight {
	out := append([]providers.Flight(nil), flights...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DurationMin < out[j].DurationMin })
	return out
}

func Direct(flights []providers.Flight) []providers.Flight {
	out := make([]providers.Flight, 0, len(flights))
	for _, f := range flights {
		if f.Stops == 0 {
			out = append(out, f)
		}
	}
	return out
}

func (s *Service) CheapestFlights(ctx context.Context, params providers.SearchParams, n int) ([]providers.Flight, error) {
	flights, err := s.SearchFlights(ctx, params)
	if err != nil {
		return nil, err
	}
	return Cheapest(flights, n), nil
}

func (s *Service) FastestFlights(ctx context.Context, params providers.SearchParams, limit int) ([]providers.Flight, error) {
	flights, err := s.SearchFlights(ctx, params)
	if err != nil {
		return nil, err
	}
	return Cheapest(Fastest(flights), limit), nil
}

func (s *Service) DirectFlights(ctx context.Context, params providers.SearchParams) ([]providers.Flight, error) {
	flights, err := s.SearchFlights(ctx, params)
	if err != nil {
		return nil, err
	}
	return Direct(flights), nil
}
