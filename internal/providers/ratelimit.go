package providers

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type rateLimitedProvider struct {
	FlightProvider
	limiter *rate.Limiter
	log     *zap.Logger
}

// WithRateLimit throttles outbound searches of p to rps requests per second
// with the given burst. A non-positive rps returns p unchanged.
func WithRateLimit(p FlightProvider, rps float64, burst int, log *zap.Logger) FlightProvider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &rateLimitedProvider{
		FlightProvider: p,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		log:            log,
	}
}

func (r *rateLimitedProvider) Search(ctx context.Context, params SearchParams) ([]Flight, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.log.Warn("rate limit wait aborted",
			zap.String("provider", r.Name()), zap.String("stage", "ratelimit"), zap.Error(err))
		return nil, nil
	}
	return r.FlightProvider.Search(ctx, params)
}
