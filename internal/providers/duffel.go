package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/config"
)

type Duffel struct {
	host   string
	token  string
	client *http.Client
	log    *zap.Logger
	// maxResults is applied locally; offer requests have no limit parameter.
	maxResults int
}

func NewDuffel(cfg config.Provider, log *zap.Logger) *Duffel {
	return &Duffel{host: strings.TrimRight(cfg.URL, "/"),
		token:      cfg.APIKey,
		maxResults: cfg.MaxResults,
		client:     newHTTPClient(cfg.Timeout),
		log:        log.Named("duffel"),
	}
}

func (d *Duffel) Name() string {
	return "Duffel"
}

func (d *Duffel) Priority() int { return 3 }

func (d *Duffel) IsAvailable() bool { return d.token != "" }

type duffelSlice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type duffelPassenger struct {
	Type string `json:"type"`
}

type duffelOfferRequest struct {
	Slices     []duffelSlice     `json:"slices"`
	Passengers []duffelPassenger `json:"passengers"`
	CabinClass string            `json:"cabin_class"`
}

type duffelOfferRequestEnvelope struct {
	Data duffelOfferRequest `json:"data"`
}

type duffelPlace struct {
	IATACode        string `json:"iata_code"`
	Name            string `json:"name"`
	CityName        string `json:"city_name"`
	IATACountryCode string `json:"iata_country_code"`
}

type duffelSegment struct {
	Origin                       duffelPlace `json:"origin"`
	Destination                  duffelPlace `json:"destination"`
	DepartingAt                  string      `json:"departing_at"`
	ArrivingAt                   string      `json:"arriving_at"`
	MarketingCarrierFlightNumber string      `json:"marketing_carrier_flight_number"`
	MarketingCarrier             struct {
		IATACode string `json:"iata_code"`
	} `json:"marketing_carrier"`
	Aircraft *struct {
		Name string `json:"name"`
	} `json:"aircraft"`
	Passengers []struct {
		CabinClass string `json:"cabin_class"`
		Baggages   []struct {
			Type     string `json:"type"`
			Quantity int    `json:"quantity"`
		} `json:"baggages"`
	} `json:"passengers"`
}

type duffelOffer struct {
	ID            string `json:"id"`
	TotalAmount   string `json:"total_amount"`
	TotalCurrency string `json:"total_currency"`
	Owner         struct {
		IATACode string `json:"iata_code"`
		Name     string `json:"name"`
		LogoURL  string `json:"logo_symbol_url"`
	} `json:"owner"`
	Slices []struct {
		Duration string          `json:"duration"` // ISO8601 e.g. PT2H10M
		Segments []duffelSegment `json:"segments"`
	} `json:"slices"`
}

type duffelOfferResp struct {
	Data struct {
		Offers []json.RawMessage `json:"offers"`
	} `json:"data"`
}

func passengerTypes(params SearchParams) []duffelPassenger {
	out := make([]duffelPassenger, 0, params.Adults+params.Children+params.Infants)
	for range params.Adults {
		out = append(out, duffelPassenger{Type: "adult"})
	}
	for range params.Children {
		out = append(out, duffelPassenger{Type: "child"})
	}
	for range params.Infants {
		out = append(out, duffelPassenger{Type: "infant_without_seat"})
	}
	return out
}

func (d *Duffel) Search(ctx context.Context, params SearchParams) ([]Flight, error) {
	if d.client == nil || d.log == nil {
		return nil, fmt.Errorf("%w: duffel", ErrProviderMisconfigured)
	}
	if !d.IsAvailable() {
		d.log.Warn("token missing, skipping search")
		return nil, nil
	}

	slices := []duffelSlice{{
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate.Format("2006-01-02"),
	}}
	if params.ReturnDate != nil {
		slices = append(slices, duffelSlice{
			Origin:        params.Destination,
			Destination:   params.Origin,
			DepartureDate: params.ReturnDate.Format("2006-01-02"),
		})
	}
	b, err := json.Marshal(duffelOfferRequestEnvelope{Data: duffelOfferRequest{
		Slices:     slices,
		Passengers: passengerTypes(params),
		CabinClass: strings.ToLower(string(params.CabinClass)),
	}})
	if err != nil {
		d.log.Error("encode request", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}

	req, err := http.NewRequest(http.MethodPost, d.host+"/air/offer_requests?return_offers=true", bytes.NewReader(b))
	if err != nil {
		d.log.Error("build request", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Duffel-Version", "v2")

	d.log.Info("searching", zap.String("origin", params.Origin), zap.String("destination", params.Destination))
	body, err := send(ctx, d.client, req)
	if err != nil {
		d.log.Error("search request failed", zap.String("stage", "request"), zap.Error(err))
		return nil, nil
	}

	var pr duffelOfferResp
	if err := json.Unmarshal(body, &pr); err != nil {
		d.log.Error("decode response", zap.String("stage", "parse"), zap.Error(err))
		return nil, nil
	}

	limit := params.limit(d.maxResults)
	out := make([]Flight, 0, min(len(pr.Data.Offers), limit))
	for i, raw := range pr.Data.Offers {
		if len(out) == limit {
			break
		}
		f, err := d.toFlight(raw, params)
		if err != nil {
			d.log.Error("skipping offer", zap.String("stage", "parse"), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	d.log.Info("flights found", zap.Int("count", len(out)))
	return out, nil
}

func (d *Duffel) toFlight(raw json.RawMessage, params SearchParams) (Flight, error) {
	var o duffelOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return Flight{}, err
	}
	if len(o.Slices) == 0 || len(o.Slices[0].Segments) == 0 {
		return Flight{}, errors.New("offer without segments")
	}
	segs := o.Slices[0].Segments
	seg0, segn := segs[0], segs[len(segs)-1]

	depart, err := parseVendorTime(seg0.DepartingAt)
	if err != nil {
		return Flight{}, fmt.Errorf("departure: %w", err)
	}
	arrive, err := parseVendorTime(segn.ArrivingAt)
	if err != nil {
		return Flight{}, fmt.Errorf("arrival: %w", err)
	}
	price, err := strconv.ParseFloat(o.TotalAmount, 64)
	if err != nil {
		return Flight{}, fmt.Errorf("price: %w", err)
	}

	airline := firstNonEmpty(o.Owner.IATACode, seg0.MarketingCarrier.IATACode)
	f := Flight{
		ID:             o.ID,
		Provider:       d.Name(),
		Airline:        airline,
		AirlineLogo:    o.Owner.LogoURL,
		Origin:         duffelAirport(seg0.Origin),
		Destination:    duffelAirport(segn.Destination),
		DepartAt:       depart,
		ArriveAt:       arrive,
		Price:          price,
		Currency:       o.TotalCurrency,
		CabinClass:     params.CabinClass,
		AvailableSeats: defaultSeats,
		Stops:          len(segs) - 1,
		DurationMin:    parseISODurationMinutes(o.Slices[0].Duration),
	}
	f.FlightNumber = qualifiedFlightNumber(firstNonEmpty(seg0.MarketingCarrier.IATACode, airline), seg0.MarketingCarrierFlightNumber)
	if seg0.Aircraft != nil {
		f.AircraftType = seg0.Aircraft.Name
	}
	if f.DurationMin == 0 && arrive.After(depart) {
		f.DurationMin = int(arrive.Sub(depart).Minutes())
	}
	if len(seg0.Passengers) > 0 {
		p := seg0.Passengers[0]
		if c, err := ParseCabinClass(p.CabinClass); err == nil && p.CabinClass != "" {
			f.CabinClass = c
		}
		for _, bag := range p.Baggages {
			if bag.Type == "checked" && bag.Quantity > 0 {
				f.BaggageIncluded = true
			}
		}
	}

	if len(o.Slices) > 1 && len(o.Slices[1].Segments) > 0 {
		back := o.Slices[1].Segments
		if t, err := parseVendorTime(back[0].DepartingAt); err == nil {
			f.ReturnDepartAt = ptrTime(t)
		}
		if t, err := parseVendorTime(back[len(back)-1].ArrivingAt); err == nil {
			f.ReturnArriveAt = ptrTime(t)
		}
	}
	return f, nil
}

func duffelAirport(p duffelPlace) Airport {
	return Airport{Code: p.IATACode, Name: p.Name, City: p.CityName, Country: p.IATACountryCode}
}
