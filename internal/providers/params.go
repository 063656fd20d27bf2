package providers

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type CabinClass string

const (
	Economy        CabinClass = "ECONOMY"
	PremiumEconomy CabinClass = "PREMIUM_ECONOMY"
	Business       CabinClass = "BUSINESS"
	First          CabinClass = "FIRST"
)

// ParseCabinClass accepts any casing and "-" or " " as separators.
// An empty string means economy.
func ParseCabinClass(s string) (CabinClass, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Economy, nil
	}
	c := CabinClass(strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "cabin_class", Reason: fmt.Sprintf("unknown cabin class %q", s)}
	}
	return c, nil
}

func (c CabinClass) Valid() bool {
	switch c {
	case Economy, PremiumEconomy, Business, First:
		return true
	}
	return false
}

const (
	DefaultCurrency   = "BRL"
	DefaultMaxResults = 50
)

var ErrInvalidSearch = errors.New("invalid search parameters")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSearch }

// SearchParams is the canonical search request. Build it with NewSearchParams
// and pass it by value; it is never modified once built.
type SearchParams struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureDate time.Time  `json:"departure_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	Adults        int        `json:"adults"`
	Children      int        `json:"children"`
	Infants       int        `json:"infants"`
	CabinClass    CabinClass `json:"cabin_class"`
	Currency      string     `json:"currency"`
	MaxResults    int        `json:"max_results"`
}

// now is swapped in tests.
var now = time.Now

// NewSearchParams normalizes in and validates the result.
func NewSearchParams(in SearchParams) (SearchParams, error) {
	p := in
	p.Origin = strings.ToUpper(strings.TrimSpace(in.Origin))
	p.Destination = strings.ToUpper(strings.TrimSpace(in.Destination))
	p.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.CabinClass == "" {
		p.CabinClass = Economy
	}
	if p.MaxResults <= 0 {
		p.MaxResults = DefaultMaxResults
	}
	if in.ReturnDate != nil {
		rd := *in.ReturnDate
		p.ReturnDate = &rd
	}
	if err := p.Validate(); err != nil {
		return SearchParams{}, err
	}
	return p, nil
}

// Validate reports the first invariant p breaks.
func (p SearchParams) Validate() error {
	if !isCode(p.Origin) {
		return &ValidationError{Field: "origin", Reason: "must be a 3-letter IATA code"}
	}
	if !isCode(p.Destination) {
		return &ValidationError{Field: "destination", Reason: "must be a 3-letter IATA code"}
	}
	if p.Adults < 1 {
		return &ValidationError{Field: "adults", Reason: "at least 1 adult is required"}
	}
	if p.Children < 0 {
		return &ValidationError{Field: "children", Reason: "must not be negative"}
	}
	if p.Infants < 0 {
		return &ValidationError{Field: "infants", Reason: "must not be negative"}
	}
	if p.DepartureDate.IsZero() {
		return &ValidationError{Field: "departure_date", Reason: "is required"}
	}
	if startOfDay(p.DepartureDate).Before(startOfDay(now().In(p.DepartureDate.Location()))) {
		return &ValidationError{Field: "departure_date", Reason: "must not be in the past"}
	}
	if p.ReturnDate != nil && !p.ReturnDate.After(p.DepartureDate) {
		return &ValidationError{Field: "return_date", Reason: "must be after the departure date"}
	}
	if !p.CabinClass.Valid() {
		return &ValidationError{Field: "cabin_class", Reason: fmt.Sprintf("unknown cabin class %q", p.CabinClass)}
	}
	if !isCode(p.Currency) {
		return &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	if p.MaxResults <= 0 {
		return &ValidationError{Field: "max_results", Reason: "must be positive"}
	}
	return nil
}

// limit caps the requested result count by a provider specific maximum.
// An unset MaxResults counts as DefaultMaxResults.
func (p SearchParams) limit(max int) int {
	n := p.MaxResults
	if n <= 0 {
		n = DefaultMaxResults
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func isCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
