package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/providers"
)

const defaultStreamInterval = 30 * time.Second

type streamUpdate struct {
	Criteria providers.SearchParams `json:"criteria"`
	Metadata metadata               `json:"metadata"`
	Flights  []flightView           `json:"flights"`
}

// SubscribeSSEHandler serves /sse/{origin}/{destination}?departure_date=...
// and pushes a fresh aggregate every interval until the client leaves.
func SubscribeSSEHandler(svc Searcher, interval time.Duration, log *zap.Logger) http.HandlerFunc {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	log = log.Named("sse")
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseSearchParams(r.URL.Query(), r.PathValue("origin"), r.PathValue("destination"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updateTick := time.NewTicker(interval)
		defer updateTick.Stop()

		ctx := r.Context()
		for {
			res, err := svc.Search(ctx, params)
			if err != nil {
				fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(streamUpdate{
				Criteria: params,
				Metadata: newMetadata(viewAll, res, len(res.Flights)),
				Flights:  toViews(res.Flights),
			})
			if err != nil {
				log.Error("encode update", zap.Error(err))
				return
			}
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload)
			flusher.Flush()

			select {
			case <-ctx.Done():
				log.Debug("client closed", zap.String("origin", params.Origin), zap.String("destination", params.Destination))
				return
			case <-updateTick.C:
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SubscribeWSHandler is the websocket twin of SubscribeSSEHandler.
func SubscribeWSHandler(svc Searcher, interval time.Duration, log *zap.Logger) http.HandlerFunc {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseSearchParams(r.URL.Query(), r.PathValue("origin"), r.PathValue("destination"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			res, err := svc.Search(ctx, params)
			if err != nil {
				_ = conn.WriteJSON(errorResponse{Error: err.Error()})
				return
			}
			update := streamUpdate{
				Criteria: params,
				Metadata: newMetadata(viewAll, res, len(res.Flights)),
				Flights:  toViews(res.Flights),
			}
			if err := conn.WriteJSON(update); err != nil {
				log.Warn("write failed", zap.Error(err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
