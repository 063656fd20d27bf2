package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/you/go-flights-aggregator/internal/providers"
)

// paramsLog collects what a mock was called with.
type paramsLog struct {
	mu   sync.Mutex
	seen []providers.SearchParams
}

func (l *paramsLog) add(p providers.SearchParams) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, p)
}

func (l *paramsLog) all() []providers.SearchParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]providers.SearchParams(nil), l.seen...)
}

type ProviderMock struct {
	name            string
	priority        int
	unavailable     bool
	flights         []providers.Flight
	delay           time.Duration
	ignoreCtx       bool
	errorOutMessage *string
	panicWith       any
	callCount       *int32
	params          *paramsLog
}

func (p ProviderMock) Name() string {
	return p.name
}

func (p ProviderMock) Priority() int { return p.priority }

func (p ProviderMock) IsAvailable() bool { return !p.unavailable }

func (p ProviderMock) Search(ctx context.Context, params providers.SearchParams) ([]providers.Flight, error) {
	if p.callCount != nil {
		atomic.AddInt32(p.callCount, 1)
	}
	if p.params != nil {
		p.params.add(params)
	}
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.errorOutMessage != nil {
		return nil, errors.New(p.Name() + ": " + *p.errorOutMessage)
	}
	if p.delay > 0 {
		if p.ignoreCtx {
			time.Sleep(p.delay)
		} else {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				// cancelled providers contribute nothing
				return nil, nil
			}
		}
	}
	return p.flights, nil
}
