package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const rapidPayload = `{
  "status": true,
  "message": "Success",
  "data": {
    "flightOffers": [
      {
        "token": "tok-1",
        "segments": [
          {
            "departureAirport": {"code": "GRU", "name": "Sao Paulo International", "cityName": "Sao Paulo", "countryName": "Brazil"},
            "arrivalAirport": {"code": "REC", "name": "Recife Guararapes", "cityName": "Recife", "countryName": "Brazil"},
            "departureTime": "2030-05-04T06:30:00", "arrivalTime": "2030-05-04T09:45:00", "totalTime": 11700,
            "legs": [{"flightInfo": {"flightNumber": 1580, "carrierInfo": {"marketingCarrier": "G3"}},
                      "carriersData": [{"code": "G3", "logo": "https://booking.example/g3.png"}]}]
          }
        ],
        "priceBreakdown": {"total": {"currencyCode": "BRL", "units": 612, "nanos": 250000000}}
      },
      {
        "segments": [
          {
            "departureAirport": {"code": "GRU"}, "arrivalAirport": {"code": "REC"},
            "departureTime": "2030-05-04T12:00:00", "arrivalTime": "2030-05-04T17:00:00",
            "legs": [
              {"flightInfo": {"flightNumber": 0, "carrierInfo": {"marketingCarrier": ""}}, "carriersData": [{"code": "AD"}]},
              {"flightInfo": {"flightNumber": 4011}}
            ]
          },
          {
            "departureAirport": {"code": "REC"}, "arrivalAirport": {"code": "GRU"},
            "departureTime": "2030-05-10T08:00:00", "arrivalTime": "2030-05-10T11:10:00"
          }
        ],
        "priceBreakdown": {"total": {"currencyCode": "BRL", "units": 530, "nanos": 0}}
      },
      {"token": "no-price", "segments": [{"departureTime": "2030-05-04T12:00:00", "arrivalTime": "2030-05-04T17:00:00"}], "priceBreakdown": {}},
      {"token": "bad-time", "segments": [{"departureTime": "yesterday", "arrivalTime": "2030-05-04T17:00:00"}],
       "priceBreakdown": {"total": {"currencyCode": "BRL", "units": 1}}}
    ]
  }
}`

func rapidServer(t *testing.T, body string, query *atomic.Pointer[url.Values], header *atomic.Pointer[http.Header]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query.Store(&q)
		h := r.Header.Clone()
		header.Store(&h)
		if r.URL.Path != "/api/v1/flights/searchFlights" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRapidBooking_ParsesOffers(t *testing.T) {
	var query atomic.Pointer[url.Values]
	var header atomic.Pointer[http.Header]
	srv := rapidServer(t, rapidPayload, &query, &header)
	r := NewRapidBooking(testProviderConfig(srv.URL), zaptest.NewLogger(t))

	flights, err := r.Search(context.Background(), testParams(t, nil))
	require.NoError(t, err)
	require.Len(t, flights, 2)

	h := *header.Load()
	require.Equal(t, "secret-key", h.Get("X-RapidAPI-Key"))
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	require.Equal(t, u.Host, h.Get("X-RapidAPI-Host"))

	f := flights[0]
	require.Equal(t, "tok-1", f.ID)
	require.Equal(t, "RapidBooking", f.Provider)
	require.Equal(t, "G3", f.Airline)
	require.Equal(t, "G31580", f.FlightNumber)
	require.Equal(t, "https://booking.example/g3.png", f.AirlineLogo)
	require.Equal(t, Airport{Code: "GRU", Name: "Sao Paulo International", City: "Sao Paulo", Country: "Brazil"}, f.Origin)
	require.Equal(t, time.Date(2030, 5, 4, 6, 30, 0, 0, time.UTC), f.DepartAt)
	require.InDelta(t, 612.25, f.Price, 1e-9)
	require.Equal(t, "BRL", f.Currency)
	require.Equal(t, 195, f.DurationMin)
	require.Equal(t, 0, f.Stops)
	require.Nil(t, f.ReturnDepartAt)

	f = flights[1]
	require.Equal(t, "rapid-1", f.ID)
	require.Equal(t, "AD", f.Airline)
	require.Empty(t, f.FlightNumber)
	require.Equal(t, 1, f.Stops)
	require.Equal(t, 300, f.DurationMin)
	require.InDelta(t, 530.0, f.Price, 1e-9)
	require.NotNil(t, f.ReturnDepartAt)
	require.Equal(t, time.Date(2030, 5, 10, 11, 10, 0, 0, time.UTC), *f.ReturnArriveAt)
}

func TestRapidBooking_Query(t *testing.T) {
	var query atomic.Pointer[url.Values]
	var header atomic.Pointer[http.Header]
	srv := rapidServer(t, rapidPayload, &query, &header)
	r := NewRapidBooking(testProviderConfig(srv.URL), zaptest.NewLogger(t))

	params := testParams(t, func(p *SearchParams) {
		p.Children = 2
		p.Infants = 1
		p.Currency = "usd"
	})
	_, err := r.Search(context.Background(), params)
	require.NoError(t, err)

	q := *query.Load()
	require.Equal(t, "GRU.AIRPORT", q.Get("fromId"))
	require.Equal(t, "REC.AIRPORT", q.Get("toId"))
	require.Equal(t, params.DepartureDate.Format("2006-01-02"), q.Get("departDate"))
	require.Equal(t, "10,10,0", q.Get("children"))
	require.Equal(t, "USD", q.Get("currency_code"))
	require.Equal(t, "ECONOMY", q.Get("cabinClass"))
	require.Empty(t, q.Get("returnDate"))
}

func TestRapidBooking_StatusFalseYieldsNoFlights(t *testing.T) {
	var query atomic.Pointer[url.Values]
	var header atomic.Pointer[http.Header]
	srv := rapidServer(t, `{"status": false, "message": [{"fromId": "invalid"}]}`, &query, &header)
	r := NewRapidBooking(testProviderConfig(srv.URL), zaptest.NewLogger(t))

	flights, err := r.Search(context.Background(), testParams(t, nil))
	require.NoError(t, err)
	require.Empty(t, flights)
}

func TestChildAges(t *testing.T) {
	require.Empty(t, childAges(SearchParams{}))
	require.Equal(t, "10", childAges(SearchParams{Children: 1}))
	require.Equal(t, "0,0", childAges(SearchParams{Infants: 2}))
}
