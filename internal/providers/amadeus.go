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
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/you/go-flights-aggregator/internal/config"
)

const (
	// tokenSafetyMargin is taken off every issued token lifetime.
	tokenSafetyMargin     = 60 * time.Second
	defaultTokenExpiresIn = 1800
)

// Amadeus talks to the Self-Service flight offers API. Access tokens come
// from an OAuth2 client credentials exchange and are cached until shortly
// before they expire.
type Amadeus struct {
	host       string
	authPath   string
	searchPath string
	client     *http.Client
	id         string
	secret     string
	maxResults int
	currency   string
	log        *zap.Logger
	now        func() time.Time

	exchanges singleflight.Group
	mu        sync.Mutex
	tok       string
	expires   time.Time
}

func NewAmadeus(cfg config.Provider, log *zap.Logger) *Amadeus {
	return &Amadeus{host: strings.TrimRight(cfg.URL, "/"),
		authPath:   "/v1/security/oauth2/token",
		searchPath: "/v2/shopping/flight-offers",
		id:         cfg.ClientID,
		secret:     cfg.ClientSecret,
		maxResults: cfg.MaxResults,
		currency:   cfg.Currency,
		client:     newHTTPClient(cfg.Timeout),
		log:        log.Named("amadeus"),
		now:        time.Now,
	}
}

func (a *Amadeus) Name() string { return "Amadeus" }

func (a *Amadeus) Priority() int { return 2 }

func (a *Amadeus) IsAvailable() bool { return a.id != "" && a.secret != "" }

// cachedToken returns the current token if it has not expired yet.
func (a *Amadeus) cachedToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tok != "" && a.now().Before(a.expires) {
		return a.tok, true
	}
	return "", false
}

// token returns the cached access token or exchanges credentials for a new
// one. Concurrent callers share a single exchange, and each of them stops
// waiting as soon as its own ctx is done.
func (a *Amadeus) token(ctx context.Context) (string, error) {
	if tok, ok := a.cachedToken(); ok {
		return tok, nil
	}
	// the shared exchange outlives any single caller; the client timeout bounds it
	ch := a.exchanges.DoChan("token", func() (any, error) {
		if tok, ok := a.cachedToken(); ok {
			return tok, nil
		}
		return a.exchange(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("amadeus token: %w", ctx.Err())
	}
}

func (a *Amadeus) exchange(ctx context.Context) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", a.id)
	data.Set("client_secret", a.secret)
	req, err := http.NewRequest(http.MethodPost, a.host+a.authPath, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := send(ctx, a.client, req)
	if err != nil {
		return "", fmt.Errorf("amadeus token: %w", err)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   *int   `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("amadeus token decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("amadeus token: empty access_token")
	}
	expiresIn := defaultTokenExpiresIn
	if tr.ExpiresIn != nil {
		expiresIn = *tr.ExpiresIn
	}

	a.mu.Lock()
	a.tok = tr.AccessToken
	a.expires = a.now().Add(time.Duration(expiresIn)*time.Second - tokenSafetyMargin)
	expires := a.expires
	a.mu.Unlock()
	a.log.Info("access token acquired", zap.Time("expires", expires))
	return tr.AccessToken, nil
}

// invalidate drops tok if it is still the cached one.
func (a *Amadeus) invalidate(tok string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tok == tok {
		a.tok = ""
		a.expires = time.Time{}
	}
}

func (a *Amadeus) Search(ctx context.Context, params SearchParams) ([]Flight, error) {
	if a.client == nil || a.log == nil {
		return nil, fmt.Errorf("%w: amadeus", ErrProviderMisconfigured)
	}
	if !a.IsAvailable() {
		a.log.Warn("credentials missing, skipping search")
		return nil, nil
	}
	tok, err := a.token(ctx)
	if err != nil {
		a.log.Error("search aborted", zap.String("stage", "token"), zap.Error(err))
		return nil, nil
	}

	u := a.host + a.searchPath + "?" + a.query(params).Encode()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		a.log.Error("build request", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	a.log.Info("searching", zap.String("origin", params.Origin), zap.String("destination", params.Destination))
	body, err := send(ctx, a.client, req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			a.invalidate(tok)
		}
		a.log.Error("search request failed", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}

	out := a.parse(body, params)
	a.log.Info("flights found", zap.Int("count", len(out)))
	return out, nil
}

func (a *Amadeus) query(params SearchParams) url.Values {
	currency := params.Currency
	if currency == "" {
		currency = a.currency
	}
	q := url.Values{}
	q.Set("originLocationCode", params.Origin)
	q.Set("destinationLocationCode", params.Destination)
	q.Set("departureDate", params.DepartureDate.Format("2006-01-02"))
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("currencyCode", currency)
	q.Set("max", strconv.Itoa(params.limit(a.maxResults)))
	q.Set("travelClass", string(params.CabinClass))
	if params.ReturnDate != nil {
		q.Set("returnDate", params.ReturnDate.Format("2006-01-02"))
	}
	if params.Children > 0 {
		q.Set("children", strconv.Itoa(params.Children))
	}
	if params.Infants > 0 {
		q.Set("infants", strconv.Itoa(params.Infants))
	}
	return q
}

type amadeusResponse struct {
	Data         []json.RawMessage `json:"data"`
	Dictionaries struct {
		Locations map[string]struct {
			CityCode    string `json:"cityCode"`
			CountryCode string `json:"countryCode"`
		} `json:"locations"`
	} `json:"dictionaries"`
}

type amadeusOffer struct {
	ID                    string `json:"id"`
	NumberOfBookableSeats *int   `json:"numberOfBookableSeats"`
	Itineraries           []struct {
		Duration string           `json:"duration"` // ISO8601 e.g. PT2H10M
		Segments []amadeusSegment `json:"segments"`
	} `json:"itineraries"`
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	TravelerPricings []struct {
		FareDetailsBySegment []struct {
			Cabin               string `json:"cabin"`
			IncludedCheckedBags *struct {
				Quantity   int    `json:"quantity"`
				Weight     int    `json:"weight"`
				WeightUnit string `json:"weightUnit"`
			} `json:"includedCheckedBags"`
		} `json:"fareDetailsBySegment"`
	} `json:"travelerPricings"`
}

type amadeusSegment struct {
	Departure   amadeusEndpoint `json:"departure"`
	Arrival     amadeusEndpoint `json:"arrival"`
	CarrierCode string          `json:"carrierCode"`
	Number      string          `json:"number"`
	Aircraft    struct {
		Code string `json:"code"`
	} `json:"aircraft"`
}

type amadeusEndpoint struct {
	IataCode string `json:"iataCode"`
	At       string `json:"at"`
}

// parse converts every offer on its own; a broken offer is logged and skipped.
func (a *Amadeus) parse(body []byte, params SearchParams) []Flight {
	var payload amadeusResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		a.log.Error("decode response", zap.String("stage", "parse"), zap.Error(err))
		return nil
	}

	airport := func(e amadeusEndpoint) Airport {
		loc := payload.Dictionaries.Locations[e.IataCode]
		return Airport{Code: e.IataCode, City: loc.CityCode, Country: loc.CountryCode}
	}

	out := make([]Flight, 0, len(payload.Data))
	for i, raw := range payload.Data {
		f, err := a.toFlight(raw, params, airport)
		if err != nil {
			a.log.Error("skipping offer", zap.String("stage", "parse"), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	return out
}

func (a *Amadeus) toFlight(raw json.RawMessage, params SearchParams, airport func(amadeusEndpoint) Airport) (Flight, error) {
	var o amadeusOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return Flight{}, err
	}
	if len(o.Itineraries) == 0 || len(o.Itineraries[0].Segments) == 0 {
		return Flight{}, errors.New("offer without segments")
	}
	itin := o.Itineraries[0]
	first := itin.Segments[0]
	last := itin.Segments[len(itin.Segments)-1]

	depart, err := parseVendorTime(first.Departure.At)
	if err != nil {
		return Flight{}, fmt.Errorf("departure: %w", err)
	}
	arrive, err := parseVendorTime(last.Arrival.At)
	if err != nil {
		return Flight{}, fmt.Errorf("arrival: %w", err)
	}
	price, err := strconv.ParseFloat(o.Price.Total, 64)
	if err != nil {
		return Flight{}, fmt.Errorf("price: %w", err)
	}

	f := Flight{
		ID:             o.ID,
		Provider:       a.Name(),
		Airline:        first.CarrierCode,
		FlightNumber:   qualifiedFlightNumber(first.CarrierCode, first.Number),
		AircraftType:   first.Aircraft.Code,
		Origin:         airport(first.Departure),
		Destination:    airport(last.Arrival),
		DepartAt:       depart,
		ArriveAt:       arrive,
		Price:          price,
		Currency:       o.Price.Currency,
		CabinClass:     params.CabinClass,
		Stops:          len(itin.Segments) - 1,
		DurationMin:    parseISODurationMinutes(itin.Duration),
		AvailableSeats: defaultSeats,
	}
	if o.NumberOfBookableSeats != nil {
		f.AvailableSeats = *o.NumberOfBookableSeats
	}

	if len(o.Itineraries) > 1 && len(o.Itineraries[1].Segments) > 0 {
		back := o.Itineraries[1].Segments
		if t, err := parseVendorTime(back[0].Departure.At); err == nil {
			f.ReturnDepartAt = ptrTime(t)
		}
		if t, err := parseVendorTime(back[len(back)-1].Arrival.At); err == nil {
			f.ReturnArriveAt = ptrTime(t)
		}
	}

	if len(o.TravelerPricings) > 0 && len(o.TravelerPricings[0].FareDetailsBySegment) > 0 {
		fd := o.TravelerPricings[0].FareDetailsBySegment[0]
		if c, err := ParseCabinClass(fd.Cabin); err == nil && fd.Cabin != "" {
			f.CabinClass = c
		}
		if bags := fd.IncludedCheckedBags; bags != nil {
			f.BaggageIncluded = bags.Quantity > 0 || bags.Weight > 0
			if bags.Weight > 0 {
				f.BaggageWeight = fmt.Sprintf("%d%s", bags.Weight, strings.ToLower(bags.WeightUnit))
			}
		}
	}
	return f, nil
}
