// Package store keeps past searches and the flights they returned.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/you/go-flights-aggregator/internal/providers"
)

var ErrNotFound = errors.New("search not found")

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Search is one recorded search request.
type Search struct {
	ID          string                 `json:"id"`
	Params      providers.SearchParams `json:"params"`
	CreatedAt   time.Time              `json:"created_at"`
	Status      string                 `json:"status"`
	ResultCount int                    `json:"result_count"`
}

type Stats struct {
	TotalSearches           int     `json:"total_searches"`
	TotalResults            int     `json:"total_results"`
	AverageResultsPerSearch float64 `json:"average_results_per_search"`
}

// Repository persists searches and their results. Ids are generated by the
// repository and are unique for its lifetime.
type Repository interface {
	SaveSearch(ctx context.Context, params providers.SearchParams) (Search, error)
	SaveResults(ctx context.Context, id string, flights []providers.Flight) error
	GetSearch(ctx context.Context, id string) (Search, error)
	GetResults(ctx context.Context, id string) ([]providers.Flight, error)
	// List returns every search, newest first.
	List(ctx context.Context) ([]Search, error)
	Stats(ctx context.Context) (Stats, error)
	Delete(ctx context.Context, id string) error
}

func statsOf(searches []Search) Stats {
	st := Stats{TotalSearches: len(searches)}
	for _, s := range searches {
		st.TotalResults += s.ResultCount
	}
	if st.TotalSearches > 0 {
		st.AverageResultsPerSearch = float64(st.TotalResults) / float64(st.TotalSearches)
	}
	return st
}
