package httpx

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

	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/providers"
	"github.com/you/go-flights-aggregator/internal/service"
	"github.com/you/go-flights-aggregator/internal/store"
)

const defaultViewLimit = 10

// Searcher is what the handlers need from the aggregation service.
type Searcher interface {
	Search(ctx context.Context, params providers.SearchParams) (service.Result, error)
	Providers() []service.ProviderInfo
}

type flightView struct {
	providers.Flight
	DurationFormatted string `json:"duration_formatted"`
}

type metadata struct {
	View               string                   `json:"view"`
	TotalResults       int                      `json:"total_results"`
	ProvidersQueried   int                      `json:"providers_queried"`
	ProvidersSucceeded int                      `json:"providers_succeeded"`
	ProvidersFailed    int                      `json:"providers_failed"`
	Providers          []service.ProviderReport `json:"providers"`
	SearchedAt         time.Time                `json:"searched_at"`
}

type searchResponse struct {
	SearchID string                 `json:"search_id,omitempty"`
	Criteria providers.SearchParams `json:"criteria"`
	Metadata metadata               `json:"metadata"`
	Flights  []flightView           `json:"flights"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// view narrows an aggregate result. limit is the parsed ?limit= value.
type view struct {
	name  string
	apply func(flights []providers.Flight, limit int) []providers.Flight
}

var (
	viewAll      = view{"all", func(f []providers.Flight, _ int) []providers.Flight { return f }}
	viewCheapest = view{"cheapest", service.Cheapest}
	viewFastest  = view{"fastest", func(f []providers.Flight, n int) []providers.Flight {
		return service.Cheapest(service.Fastest(f), n)
	}}
	viewDirect = view{"direct", func(f []providers.Flight, _ int) []providers.Flight { return service.Direct(f) }}
)

func FormatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dmin", minutes/60, minutes%60)
}

func newMetadata(v view, res service.Result, total int) metadata {
	return metadata{
		View:               v.name,
		TotalResults:       total,
		ProvidersQueried:   res.Queried,
		ProvidersSucceeded: res.Succeeded,
		ProvidersFailed:    res.Failed,
		Providers:          res.Providers,
		SearchedAt:         time.Now().UTC(),
	}
}

func toViews(flights []providers.Flight) []flightView {
	out := make([]flightView, 0, len(flights))
	for _, f := range flights {
		out = append(out, flightView{Flight: f, DurationFormatted: FormatDuration(f.DurationMin)})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *providers.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	writeJSON(w, status, resp)
}

// parseSearchParams reads the canonical search fields from the query string.
// origin and destination, when non-empty, override the query values.
func parseSearchParams(q url.Values, origin, destination string) (providers.SearchParams, error) {
	if origin == "" {
		origin = q.Get("origin")
	}
	if destination == "" {
		destination = q.Get("destination")
	}
	in := providers.SearchParams{
		Origin:      origin,
		Destination: destination,
		Currency:    q.Get("currency"),
	}

	dep, err := parseDate(q, "departure_date")
	if err != nil {
		return providers.SearchParams{}, err
	}
	if dep == nil {
		return providers.SearchParams{}, &providers.ValidationError{Field: "departure_date", Reason: "is required"}
	}
	in.DepartureDate = *dep
	if in.ReturnDate, err = parseDate(q, "return_date"); err != nil {
		return providers.SearchParams{}, err
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"adults", &in.Adults, 1},
		{"children", &in.Children, 0},
		{"infants", &in.Infants, 0},
		{"max_results", &in.MaxResults, 0},
	}
	for _, it := range ints {
		if *it.dst, err = parseInt(q, it.key, it.def); err != nil {
			return providers.SearchParams{}, err
		}
	}

	if in.CabinClass, err = providers.ParseCabinClass(q.Get("cabin_class")); err != nil {
		return providers.SearchParams{}, err
	}
	return providers.NewSearchParams(in)
}

func parseDate(q url.Values, key string) (*time.Time, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, &providers.ValidationError{Field: key, Reason: "use the YYYY-MM-DD format"}
	}
	return &t, nil
}

func parseInt(q url.Values, key string, def int) (int, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &providers.ValidationError{Field: key, Reason: "must be an integer"}
	}
	return n, nil
}

func SearchHandler(svc Searcher, repo store.Repository, log *zap.Logger) http.HandlerFunc {
	return searchHandler(svc, repo, log, viewAll)
}

func CheapestHandler(svc Searcher, repo store.Repository, log *zap.Logger) http.HandlerFunc {
	return searchHandler(svc, repo, log, viewCheapest)
}

func FastestHandler(svc Searcher, repo store.Repository, log *zap.Logger) http.HandlerFunc {
	return searchHandler(svc, repo, log, viewFastest)
}

func DirectHandler(svc Searcher, repo store.Repository, log *zap.Logger) http.HandlerFunc {
	return searchHandler(svc, repo, log, viewDirect)
}

func searchHandler(svc Searcher, repo store.Repository, log *zap.Logger, v view) http.HandlerFunc {
	log = log.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params, err := parseSearchParams(q, "", "")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit, err := parseInt(q, "limit", defaultViewLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ctx := r.Context()
		var searchID string
		if rec, err := repo.SaveSearch(ctx, params); err != nil {
			log.Error("save search", zap.Error(err))
		} else {
			searchID = rec.ID
		}

		res, err := svc.Search(ctx, params)
		if err != nil {
			if errors.Is(err, providers.ErrInvalidSearch) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if searchID != "" {
			if err := repo.SaveResults(ctx, searchID, res.Flights); err != nil {
				logger.WithSearch(log, searchID).Error("save results", zap.Error(err))
			}
		}

		flights := v.apply(res.Flights, limit)
		writeJSON(w, http.StatusOK, searchResponse{
			SearchID: searchID,
			Criteria: params,
			Metadata: newMetadata(v, res, len(flights)),
			Flights:  toViews(flights),
		})
	}
}

type historyResponse struct {
	Total    int            `json:"total"`
	Searches []store.Search `json:"searches"`
}

type searchDetailResponse struct {
	Search  store.Search `json:"search"`
	Total   int          `json:"total_results"`
	Flights []flightView `json:"flights"`
}

func ListSearchesHandler(repo store.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := repo.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{Total: len(all), Searches: all})
	}
}

func SearchStatsHandler(repo store.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := repo.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func GetSearchHandler(repo store.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s, err := repo.GetSearch(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		flights, err := repo.GetResults(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, searchDetailResponse{Search: s, Total: len(flights), Flights: toViews(flights)})
	}
}

func DeleteSearchHandler(repo store.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Providers []service.ProviderInfo `json:"providers"`
}

func HealthHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Providers: svc.Providers()})
	}
}
