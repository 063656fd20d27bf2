package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flights-aggregator/internal/providers"
)

func sampleParams(t *testing.T, origin string) providers.SearchParams {
	t.Helper()
	y, m, d := time.Now().UTC().AddDate(0, 1, 0).Date()
	p, err := providers.NewSearchParams(providers.SearchParams{
		Origin:        origin,
		Destination:   "REC",
		DepartureDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Adults:        2,
		CabinClass:    providers.Business,
	})
	require.NoError(t, err)
	return p
}

func sampleFlights(n int) []providers.Flight {
	out := make([]providers.Flight, 0, n)
	for i := range n {
		out = append(out, providers.Flight{
			ID:          uuid.NewString(),
			Provider:    "Kiwi.com",
			Airline:     "G3",
			Origin:      providers.Airport{Code: "GRU"},
			Destination: providers.Airport{Code: "REC"},
			Price:       float64(100 * (i + 1)),
			Currency:    "BRL",
			DurationMin: 180,
		})
	}
	return out
}

// exerciseRepository checks the behaviour every driver must share.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	_, err := repo.GetSearch(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetResults(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.SaveResults(ctx, "missing", sampleFlights(1)), ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "missing"), ErrNotFound)

	first, err := repo.SaveSearch(ctx, sampleParams(t, "GRU"))
	require.NoError(t, err)
	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	got, err := repo.GetSearch(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "GRU", got.Params.Origin)
	require.Equal(t, providers.Business, got.Params.CabinClass)
	require.True(t, first.Params.DepartureDate.Equal(got.Params.DepartureDate))
	require.True(t, first.CreatedAt.Equal(got.CreatedAt))

	flights, err := repo.GetResults(ctx, first.ID)
	require.NoError(t, err)
	require.Empty(t, flights)

	require.NoError(t, repo.SaveResults(ctx, first.ID, sampleFlights(3)))
	flights, err = repo.GetResults(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, flights, 3)
	require.Equal(t, 300.0, flights[2].Price)

	got, err = repo.GetSearch(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 3, got.ResultCount)

	time.Sleep(5 * time.Millisecond)
	second, err := repo.SaveSearch(ctx, sampleParams(t, "CGH"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NoError(t, repo.SaveResults(ctx, second.ID, nil))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, first.ID, all[1].ID)

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{TotalSearches: 2, TotalResults: 3, AverageResultsPerSearch: 1.5}, st)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.GetSearch(ctx, first.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetResults(ctx, first.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, first.ID), ErrNotFound)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStatsOf(t *testing.T) {
	require.Equal(t, Stats{}, statsOf(nil))
	require.Equal(t, Stats{TotalSearches: 3, TotalResults: 10, AverageResultsPerSearch: 10.0 / 3},
		statsOf([]Search{{ResultCount: 4}, {ResultCount: 6}, {}}))
}
