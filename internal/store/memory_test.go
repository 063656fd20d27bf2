package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemory(t *testing.T) {
	exerciseRepository(t, NewMemory(zaptest.NewLogger(t)))
}

func TestMemory_ListOrdersByCreation(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))
	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for range 3 {
		s, err := m.SaveSearch(ctx, sampleParams(t, "GRU"))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestMemory_ResultsAreCopied(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))
	ctx := context.Background()
	s, err := m.SaveSearch(ctx, sampleParams(t, "GRU"))
	require.NoError(t, err)

	in := sampleFlights(2)
	require.NoError(t, m.SaveResults(ctx, s.ID, in))
	in[0].Price = -1

	out, err := m.GetResults(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, out[0].Price)
	out[1].Price = -1

	again, err := m.GetResults(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 200.0, again[1].Price)
}

func TestMemory_ConcurrentSavesGetUniqueIDs(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))
	params := sampleParams(t, "GRU")

	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.SaveSearch(context.Background(), params)
			if err == nil {
				ids[i] = s.ID
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
	st, err := m.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 50, st.TotalSearches)
}
