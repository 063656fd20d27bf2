package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/config"
)

// RapidBooking wraps the Booking.com flights API published on RapidAPI.
type RapidBooking struct {
	base        string
	host        string
	path        string
	rapidApiKey string
	currency    string
	maxResults  int
	client      *http.Client
	log         *zap.Logger
}

func NewRapidBooking(cfg config.Provider, log *zap.Logger) *RapidBooking {
	base := strings.TrimRight(cfg.URL, "/")
	host := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		host = u.Host
	}
	return &RapidBooking{base: base,
		host:        host,
		path:        "/api/v1/flights/searchFlights",
		rapidApiKey: cfg.APIKey,
		currency:    cfg.Currency,
		maxResults:  cfg.MaxResults,
		client:      newHTTPClient(cfg.Timeout),
		log:         log.Named("rapid-booking"),
	}
}

func (r *RapidBooking) Name() string {
	return "RapidBooking"
}

func (r *RapidBooking) Priority() int { return 4 }

func (r *RapidBooking) IsAvailable() bool { return r.rapidApiKey != "" }

func (r *RapidBooking) Search(ctx context.Context, params SearchParams) ([]Flight, error) {
	if r.client == nil || r.log == nil {
		return nil, fmt.Errorf("%w: rapid booking", ErrProviderMisconfigured)
	}
	if !r.IsAvailable() {
		r.log.Warn("api key missing, skipping search")
		return nil, nil
	}

	currency := params.Currency
	if currency == "" {
		currency = r.currency
	}
	q := url.Values{}
	// Rapid requires the “.AIRPORT” suffix
	q.Set("fromId", params.Origin+".AIRPORT")
	q.Set("toId", params.Destination+".AIRPORT")
	q.Set("departDate", params.DepartureDate.Format("2006-01-02"))
	q.Set("pageNo", "1")
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("sort", "CHEAPEST")
	q.Set("cabinClass", string(params.CabinClass))
	q.Set("currency_code", currency)
	if params.ReturnDate != nil {
		q.Set("returnDate", params.ReturnDate.Format("2006-01-02"))
	}
	if ages := childAges(params); ages != "" {
		q.Set("children", ages)
	}

	req, err := http.NewRequest(http.MethodGet, r.base+r.path+"?"+q.Encode(), nil)
	if err != nil {
		r.log.Error("build request", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}
	req.Header.Set("X-RapidAPI-Key", r.rapidApiKey)
	req.Header.Set("X-RapidAPI-Host", r.host)

	r.log.Info("searching", zap.String("origin", params.Origin), zap.String("destination", params.Destination))
	body, err := send(ctx, r.client, req)
	if err != nil {
		r.log.Error("search request failed", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}

	var payload struct {
		Data struct {
			FlightOffers []json.RawMessage `json:"flightOffers"`
		} `json:"data"`
		Status  bool `json:"status"`
		Message any  `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		r.log.Error("decode response", zap.String("stage", "parse"), zap.Error(err))
		return nil, nil
	}
	if !payload.Status {
		r.log.Error("vendor rejected search", zap.String("stage", "request"), zap.Any("message", payload.Message))
		return nil, nil
	}

	limit := params.limit(r.maxResults)
	out := make([]Flight, 0, min(len(payload.Data.FlightOffers), limit))
	for i, raw := range payload.Data.FlightOffers {
		if len(out) == limit {
			break
		}
		f, err := r.toFlight(raw, i, params)
		if err != nil {
			r.log.Error("skipping offer", zap.String("stage", "parse"), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	r.log.Info("flights found", zap.Int("count", len(out)))
	return out, nil
}

// childAges encodes children and infants the way the API expects ages:
// children as 10 years old, infants as 0.
func childAges(params SearchParams) string {
	ages := make([]string, 0, params.Children+params.Infants)
	for range params.Children {
		ages = append(ages, "10")
	}
	for range params.Infants {
		ages = append(ages, "0")
	}
	return strings.Join(ages, ",")
}

type rapidAirport struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CityName    string `json:"cityName"`
	CountryName string `json:"countryName"`
}

type rapidSegment struct {
	DepartureAirport rapidAirport `json:"departureAirport"`
	ArrivalAirport   rapidAirport `json:"arrivalAirport"`
	DepartureTime    string       `json:"departureTime"`
	ArrivalTime      string       `json:"arrivalTime"`
	TotalTime        int          `json:"totalTime"`
	Legs             []struct {
		FlightInfo struct {
			FlightNumber int `json:"flightNumber"`
			CarrierInfo  struct {
				MarketingCarrier string `json:"marketingCarrier"`
			} `json:"carrierInfo"`
		} `json:"flightInfo"`
		CarriersData []struct {
			Code string `json:"code"`
			Logo string `json:"logo"`
		} `json:"carriersData"`
	} `json:"legs"`
}

type rapidOffer struct {
	Token          string         `json:"token"`
	Segments       []rapidSegment `json:"segments"`
	PriceBreakdown struct {
		Total *struct {
			CurrencyCode string `json:"currencyCode"`
			Units        int64  `json:"units"`
			Nanos        int64  `json:"nanos"`
		} `json:"total"`
	} `json:"priceBreakdown"`
}

func (r *RapidBooking) toFlight(raw json.RawMessage, idx int, params SearchParams) (Flight, error) {
	var fo rapidOffer
	if err := json.Unmarshal(raw, &fo); err != nil {
		return Flight{}, err
	}
	if len(fo.Segments) == 0 {
		return Flight{}, errors.New("offer without segments")
	}
	if fo.PriceBreakdown.Total == nil {
		return Flight{}, errors.New("offer without price")
	}
	seg := fo.Segments[0]

	dep, err := parseVendorTime(seg.DepartureTime)
	if err != nil {
		return Flight{}, fmt.Errorf("departure: %w", err)
	}
	arr, err := parseVendorTime(seg.ArrivalTime)
	if err != nil {
		return Flight{}, fmt.Errorf("arrival: %w", err)
	}

	durMin := seg.TotalTime / 60
	if durMin <= 0 && arr.After(dep) {
		durMin = int(arr.Sub(dep).Minutes())
	}

	total := fo.PriceBreakdown.Total
	f := Flight{
		ID:             fo.Token,
		Provider:       r.Name(),
		Origin:         rapidToAirport(seg.DepartureAirport),
		Destination:    rapidToAirport(seg.ArrivalAirport),
		DepartAt:       dep,
		ArriveAt:       arr,
		Price:          float64(total.Units) + float64(total.Nanos)/1e9,
		Currency:       total.CurrencyCode,
		CabinClass:     params.CabinClass,
		AvailableSeats: defaultSeats,
		DurationMin:    durMin,
	}
	if f.ID == "" {
		f.ID = fmt.Sprintf("rapid-%d", idx)
	}
	if len(seg.Legs) > 0 {
		leg := seg.Legs[0]
		f.Stops = len(seg.Legs) - 1
		f.Airline = leg.FlightInfo.CarrierInfo.MarketingCarrier
		if len(leg.CarriersData) > 0 {
			f.Airline = firstNonEmpty(f.Airline, leg.CarriersData[0].Code)
			f.AirlineLogo = leg.CarriersData[0].Logo
		}
		if leg.FlightInfo.FlightNumber > 0 {
			f.FlightNumber = qualifiedFlightNumber(f.Airline, strconv.Itoa(leg.FlightInfo.FlightNumber))
		}
	}
	if len(fo.Segments) > 1 {
		back := fo.Segments[1]
		if t, err := parseVendorTime(back.DepartureTime); err == nil {
			f.ReturnDepartAt = ptrTime(t)
		}
		if t, err := parseVendorTime(back.ArrivalTime); err == nil {
			f.ReturnArriveAt = ptrTime(t)
		}
	}
	return f, nil
}

func rapidToAirport(a rapidAirport) Airport {
	return Airport{Code: a.Code, Name: a.Name, City: a.CityName, Country: a.CountryName}
}
