package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flights-aggregator/internal/config"
)

func futureDate(months int) time.Time {
	y, m, d := time.Now().UTC().AddDate(0, months, 0).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testParams(t *testing.T, mutate func(*SearchParams)) SearchParams {
	t.Helper()
	in := SearchParams{
		Origin:        "gru",
		Destination:   "rec",
		DepartureDate: futureDate(2),
		Adults:        1,
	}
	if mutate != nil {
		mutate(&in)
	}
	p, err := NewSearchParams(in)
	require.NoError(t, err)
	return p
}

func testProviderConfig(url string) config.Provider {
	return config.Provider{
		URL:          url,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIKey:       "secret-key",
		Timeout:      5 * time.Second,
		MaxResults:   50,
		Currency:     "BRL",
	}
}
