package httpx

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/store"
)

// RegisterRoutes mounts the authenticated API on mux.
func RegisterRoutes(mux *http.ServeMux, svc Searcher, repo store.Repository, streamInterval time.Duration, log *zap.Logger) {
	mux.HandleFunc("GET /flights/search", SearchHandler(svc, repo, log))
	mux.HandleFunc("GET /flights/cheapest", CheapestHandler(svc, repo, log))
	mux.HandleFunc("GET /flights/fastest", FastestHandler(svc, repo, log))
	mux.HandleFunc("GET /flights/direct", DirectHandler(svc, repo, log))

	mux.HandleFunc("GET /searches", ListSearchesHandler(repo))
	mux.HandleFunc("GET /searches/stats", SearchStatsHandler(repo))
	mux.HandleFunc("GET /searches/{id}", GetSearchHandler(repo))
	mux.HandleFunc("DELETE /searches/{id}", DeleteSearchHandler(repo))

	// /sse/GRU/REC?departure_date=2030-10-01
	mux.HandleFunc("GET /sse/{origin}/{destination}", SubscribeSSEHandler(svc, streamInterval, log))
	mux.HandleFunc("GET /ws/{origin}/{destination}", SubscribeWSHandler(svc, streamInterval, log))
}
