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
	"time"

	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/config"
)

// Kiwi queries the Tequila search API with a static API key.
type Kiwi struct {
	host       string
	path       string
	apiKey     string
	maxResults int
	currency   string
	client     *http.Client
	log        *zap.Logger
}

func NewKiwi(cfg config.Provider, log *zap.Logger) *Kiwi {
	return &Kiwi{host: strings.TrimRight(cfg.URL, "/"),
		path:       "/v2/search",
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		currency:   cfg.Currency,
		client:     newHTTPClient(cfg.Timeout),
		log:        log.Named("kiwi"),
	}
}

func (k *Kiwi) Name() string { return "Kiwi.com" }

func (k *Kiwi) Priority() int { return 1 }

func (k *Kiwi) IsAvailable() bool { return k.apiKey != "" }

var kiwiCabins = map[CabinClass]string{
	Economy:        "M",
	PremiumEconomy: "W",
	Business:       "C",
	First:          "F",
}

func (k *Kiwi) Search(ctx context.Context, params SearchParams) ([]Flight, error) {
	if k.client == nil || k.log == nil {
		return nil, fmt.Errorf("%w: kiwi", ErrProviderMisconfigured)
	}
	if !k.IsAvailable() {
		k.log.Warn("api key missing, skipping search")
		return nil, nil
	}

	req, err := http.NewRequest(http.MethodGet, k.host+k.path, nil)
	if err != nil {
		k.log.Error("build request", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}
	req.URL.RawQuery = k.query(params)
	req.Header.Set("apikey", k.apiKey)

	k.log.Info("searching", zap.String("origin", params.Origin), zap.String("destination", params.Destination))
	body, err := send(ctx, k.client, req)
	if err != nil {
		k.log.Error("search request failed", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}

	out := k.parse(body, params)
	k.log.Info("flights found", zap.Int("count", len(out)))
	return out, nil
}

func (k *Kiwi) query(params SearchParams) string {
	const layout = "02/01/2006"
	currency := params.Currency
	if currency == "" {
		currency = k.currency
	}
	q := url.Values{}
	q.Set("fly_from", params.Origin)
	q.Set("fly_to", params.Destination)
	q.Set("date_from", params.DepartureDate.Format(layout))
	q.Set("date_to", params.DepartureDate.Format(layout))
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("curr", currency)
	q.Set("limit", strconv.Itoa(params.limit(k.maxResults)))
	q.Set("sort", "price")
	q.Set("selected_cabins", kiwiCabins[params.CabinClass])
	q.Set("flight_type", "oneway")
	if params.ReturnDate != nil {
		q.Set("flight_type", "round")
		q.Set("return_from", params.ReturnDate.Format(layout))
		q.Set("return_to", params.ReturnDate.Format(layout))
	}
	if params.Children > 0 {
		q.Set("children", strconv.Itoa(params.Children))
	}
	if params.Infants > 0 {
		q.Set("infants", strconv.Itoa(params.Infants))
	}
	return q.Encode()
}

type kiwiResponse struct {
	Currency string            `json:"currency"`
	Data     []json.RawMessage `json:"data"`
}

type kiwiItem struct {
	ID       string      `json:"id"`
	Price    *float64    `json:"price"`
	Route    []kiwiRoute `json:"route"`
	DeepLink string      `json:"deep_link"`
	Duration *struct {
		Total int64 `json:"total"`
	} `json:"duration"`
	Availability *struct {
		Seats *int `json:"seats"`
	} `json:"availability"`
	BagLimit *struct {
		HandWeight int `json:"hand_weight"`
	} `json:"baglimit"`
}

type kiwiRoute struct {
	FlyFrom     string      `json:"flyFrom"`
	FlyTo       string      `json:"flyTo"`
	CityFrom    string      `json:"cityFrom"`
	CityTo      string      `json:"cityTo"`
	CountryFrom kiwiCountry `json:"countryFrom"`
	CountryTo   kiwiCountry `json:"countryTo"`
	DTime       int64       `json:"dTime"`
	ATime       int64       `json:"aTime"`
	Airline     string      `json:"airline"`
	FlightNo    flexString  `json:"flight_no"`
	VehicleType string      `json:"vehicle_type"`
	Return      int         `json:"return"`
}

// kiwiCountry tolerates the country block being absent or not an object.
type kiwiCountry struct {
	Name string
}

func (c *kiwiCountry) UnmarshalJSON(b []byte) error {
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		c.Name = ""
		return nil
	}
	c.Name = v.Name
	return nil
}

func (k *Kiwi) parse(body []byte, params SearchParams) []Flight {
	var payload kiwiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		k.log.Error("decode response", zap.String("stage", "parse"), zap.Error(err))
		return nil
	}
	currency := payload.Currency
	if currency == "" {
		currency = params.Currency
	}

	out := make([]Flight, 0, len(payload.Data))
	for i, raw := range payload.Data {
		f, err := k.toFlight(raw, params, currency)
		if err != nil {
			k.log.Error("skipping offer", zap.String("stage", "parse"), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	return out
}

func (k *Kiwi) toFlight(raw json.RawMessage, params SearchParams, currency string) (Flight, error) {
	var it kiwiItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return Flight{}, err
	}
	if len(it.Route) == 0 {
		return Flight{}, errors.New("offer without route")
	}
	if it.Price == nil {
		return Flight{}, errors.New("offer without price")
	}
	outbound, inbound := splitKiwiRoute(it.Route, params.ReturnDate != nil)
	r, last := outbound[0], outbound[len(outbound)-1]
	if r.FlyFrom == "" || last.FlyTo == "" {
		return Flight{}, errors.New("route without airports")
	}

	f := Flight{
		ID:       it.ID,
		Provider: k.Name(),
		Airline:  r.Airline,
		Origin: Airport{
			Code:    r.FlyFrom,
			Name:    firstNonEmpty(r.CityFrom, r.FlyFrom),
			City:    r.CityFrom,
			Country: r.CountryFrom.Name,
		},
		Destination: Airport{
			Code:    last.FlyTo,
			Name:    firstNonEmpty(last.CityTo, last.FlyTo),
			City:    last.CityTo,
			Country: last.CountryTo.Name,
		},
		DepartAt:       time.Unix(r.DTime, 0).UTC(),
		ArriveAt:       time.Unix(last.ATime, 0).UTC(),
		Price:          *it.Price,
		Currency:       currency,
		CabinClass:     params.CabinClass,
		Stops:          len(outbound) - 1,
		AvailableSeats: defaultSeats,
		BookingURL:     it.DeepLink,
		FlightNumber:   qualifiedFlightNumber(r.Airline, string(r.FlightNo)),
		AircraftType:   r.VehicleType,
	}
	if f.Airline == "" {
		f.Airline = "N/A"
	} else {
		f.AirlineLogo = "https://images.kiwi.com/airlines/64/" + r.Airline + ".png"
	}
	if it.Duration != nil {
		f.DurationMin = secondsToMinutes(it.Duration.Total)
	}
	if it.Availability != nil && it.Availability.Seats != nil {
		f.AvailableSeats = *it.Availability.Seats
	}
	if it.BagLimit != nil {
		f.BaggageIncluded = it.BagLimit.HandWeight > 0
		f.BaggageWeight = fmt.Sprintf("%dkg", it.BagLimit.HandWeight)
	}
	if len(inbound) > 0 {
		f.ReturnDepartAt = ptrTime(time.Unix(inbound[0].DTime, 0).UTC())
		f.ReturnArriveAt = ptrTime(time.Unix(inbound[len(inbound)-1].ATime, 0).UTC())
	}
	return f, nil
}

// splitKiwiRoute separates outbound and return legs using the per-leg return
// flag. Without flags on a round trip the last leg is taken as the return.
func splitKiwiRoute(route []kiwiRoute, roundTrip bool) (outbound, inbound []kiwiRoute) {
	for _, leg := range route {
		if leg.Return == 1 {
			inbound = append(inbound, leg)
		} else {
			outbound = append(outbound, leg)
		}
	}
	if len(outbound) == 0 {
		return route, nil
	}
	if roundTrip && len(inbound) == 0 && len(route) > 1 {
		return route[:len(route)-1], route[len(route)-1:]
	}
	return outbound, inbound
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s != "" {
			return s
		}
	}
	return ""
}
