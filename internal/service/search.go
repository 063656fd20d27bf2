package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/go-flights-aggregator/internal/providers"
)

const DefaultProviderTimeout = 60 * time.Second

var (
	ErrProviderTimeout = errors.New("provider timed out")
	ErrProviderPanic   = errors.New("provider panicked")
)

// ProviderReport describes how one provider did during a search.
type ProviderReport struct {
	Name      string        `json:"name"`
	Priority  int           `json:"priority"`
	Flights   int           `json:"flights"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Err       string        `json:"error,omitempty"`
}

type Result struct {
	Flights   []providers.Flight `json:"flights"`
	Providers []ProviderReport   `json:"providers"`
	Queried   int                `json:"providers_queried"`
	Succeeded int                `json:"providers_succeeded"`
	Failed    int                `json:"providers_failed"`
}

// ProviderInfo is the static view of a configured provider.
type ProviderInfo struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Available bool   `json:"available"`
}

// Service fans a search out to every available provider and merges what
// comes back into one deduplicated, price-sorted list.
type Service struct {
	providers []providers.FlightProvider
	timeout   time.Duration
	log       *zap.Logger
}

func NewService(prov []providers.FlightProvider, timeout time.Duration, log *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		providers: prov,
		timeout:   timeout,
		log:       log.Named("aggregator"),
	}
}

func (s *Service) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, ProviderInfo{Name: p.Name(), Priority: p.Priority(), Available: p.IsAvailable()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// available returns the providers that can be queried, lowest priority first.
func (s *Service) available() []providers.FlightProvider {
	out := make([]providers.FlightProvider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.IsAvailable() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// Search validates params and queries all available providers concurrently.
// Provider failures never fail the search; only invalid params do.
func (s *Service) Search(ctx context.Context, params providers.SearchParams) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	selected := s.available()
	res := Result{Flights: []providers.Flight{}, Providers: []ProviderReport{}}
	if len(selected) == 0 {
		s.log.Warn("no providers available",
			zap.String("origin", params.Origin), zap.String("destination", params.Destination))
		return res, nil
	}

	// one slot per provider, so the merge below runs in priority order
	// whatever the completion order was
	slots := make([][]providers.Flight, len(selected))
	reports := make([]ProviderReport, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range selected {
		g.Go(func() error {
			start := time.Now()
			flights, err := s.dispatch(gctx, p, params)
			elapsed := time.Since(start)
			rep := ProviderReport{Name: p.Name(), Priority: p.Priority(), Elapsed: elapsed, ElapsedMS: elapsed.Milliseconds()}
			if err != nil {
				rep.Err = err.Error()
				s.log.Error("provider failed",
					zap.String("provider", rep.Name), zap.Duration("elapsed", rep.Elapsed), zap.Error(err))
				reports[i] = rep
				return nil
			}
			rep.Flights = len(flights)
			reports[i] = rep
			slots[i] = flights
			return nil
		})
	}
	_ = g.Wait()

	res.Flights = mergeAndSort(selected, slots)
	res.Providers = reports
	res.Queried = len(selected)
	for _, r := range reports {
		if r.Err != "" {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}
	s.log.Info("search completed",
		zap.String("origin", params.Origin),
		zap.String("destination", params.Destination),
		zap.Int("providers", res.Queried),
		zap.Int("failed", res.Failed),
		zap.Int("flights", len(res.Flights)))
	return res, nil
}

// SearchFlights is Search without the per-provider reporting.
func (s *Service) SearchFlights(ctx context.Context, params providers.SearchParams) ([]providers.Flight, error) {
	res, err := s.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.Flights, nil
}

// dispatch runs one provider search bounded by the per-provider timeout.
// A result arriving after the deadline is dropped.
func (s *Service) dispatch(ctx context.Context, p providers.FlightProvider, params providers.SearchParams) ([]providers.Flight, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		flights []providers.Flight
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrProviderPanic, r)}
			}
		}()
		flights, err := p.Search(ctx, params)
		done <- outcome{flights: flights, err: err}
	}()

	select {
	case o := <-done:
		return o.flights, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrProviderTimeout, s.timeout)
		}
		return nil, ctx.Err()
	}
}

type dedupKey struct {
	airline      string
	origin       string
	destination  string
	departMinute int64
	flightNumber string
}

func keyOf(f providers.Flight) dedupKey {
	return dedupKey{
		airline:      f.Airline,
		origin:       f.Origin.Code,
		destination:  f.Destination.Code,
		departMinute: f.DepartAt.UTC().Truncate(time.Minute).Unix(),
		flightNumber: f.FlightNumber,
	}
}

// mergeAndSort concatenates the slots in provider order, keeps the first
// flight per dedup key and stable-sorts by price.
func mergeAndSort(selected []providers.FlightProvider, slots [][]providers.Flight) []providers.Flight {
	total := 0
	for _, fs := range slots {
		total += len(fs)
	}
	seen := make(map[dedupKey]struct{}, total)
	out := make([]providers.Flight, 0, total)
	for i, fs := range slots {
		for _, f := range fs {
			if f.Provider == "" {
				f.Provider = selected[i].Name()
			}
			k := keyOf(f)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
