package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flights-aggregator/internal/providers"
)

func viewFixture() []providers.Flight {
	a := flight("A", "AA100", 200)
	a.DurationMin, a.Stops = 300, 1
	b := flight("A", "AA200", 250)
	b.DurationMin = 150
	c := flight("B", "BB300", 300)
	c.DurationMin = 150
	d := flight("B", "BB400", 400)
	d.DurationMin, d.Stops = 90, 2
	return []providers.Flight{a, b, c, d}
}

func TestCheapest(t *testing.T) {
	in := viewFixture()
	require.Equal(t, []float64{200, 250}, prices(Cheapest(in, 2)))
	require.Len(t, Cheapest(in, 0), 4)
	require.Len(t, Cheapest(in, 10), 4)
	require.Empty(t, Cheapest(nil, 3))

	out := Cheapest(in, 1)
	out[0].Price = 1
	require.Equal(t, 200.0, in[0].Price)
}

func TestFastest(t *testing.T) {
	in := viewFixture()
	out := Fastest(in)
	require.Equal(t, []float64{400, 250, 300, 200}, prices(out))
	require.Equal(t, []float64{200, 250, 300, 400}, prices(in), "input is left untouched")
}

func TestDirect(t *testing.T) {
	out := Direct(viewFixture())
	require.Equal(t, []float64{250, 300}, prices(out))
	require.Empty(t, Direct(nil))
}

func TestViewMethods(t *testing.T) {
	fx := viewFixture()
	svc := newTestService(t, time.Second,
		ProviderMock{name: "A", priority: 1, flights: fx[:2]},
		ProviderMock{name: "B", priority: 2, flights: fx[2:]},
	)
	ctx := context.Background()
	params := validParams(t)

	cheapest, err := svc.CheapestFlights(ctx, params, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{200, 250, 300}, prices(cheapest))

	fastest, err := svc.FastestFlights(ctx, params, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{400, 250}, prices(fastest))

	direct, err := svc.DirectFlights(ctx, params)
	require.NoError(t, err)
	for _, f := range direct {
		require.Zero(t, f.Stops)
	}
	require.Len(t, direct, 2)

	_, err = svc.DirectFlights(ctx, providers.SearchParams{})
	require.ErrorIs(t, err, providers.ErrInvalidSearch)
}
