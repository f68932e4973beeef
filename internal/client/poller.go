package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"rechtstreeks/internal/domain"
)

const DefaultPollInterval = 2 * time.Second

type FetchFunc func(ctx context.Context) ([]domain.Section, error)

// Poller re-fetches the section list on a fixed interval while any section is generating.
// Fetches may overlap; a response is applied only if no later-issued fetch has been applied
// already. Results are delivered to OnUpdate from background goroutines in issue order.
type Poller struct {
	fetch    FetchFunc
	interval time.Duration
	OnUpdate func([]domain.Section)
	OnError  func(error)

	deliverMu sync.Mutex

	mu         sync.Mutex
	seq        uint64
	applied    uint64
	ticking    bool
	tickerGen  uint64
	stopTicker context.CancelFunc
	closed     bool
	inflight   sync.WaitGroup
}

func NewPoller(fetch FetchFunc, interval time.Duration, onUpdate func([]domain.Section)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{fetch: fetch, interval: interval, OnUpdate: onUpdate}
}

// SectionFetcher adapts Client.ListSections for one summons.
func SectionFetcher(c *Client, caseID, summonsID string) FetchFunc {
	return func(ctx context.Context) ([]domain.Section, error) {
		list, err := c.ListSections(ctx, caseID, summonsID)
		if err != nil {
			return nil, err
		}
		return list.Sections, nil
	}
}

// Sync issues one fetch now. If the result shows a generation in flight, interval polling
// starts and continues until a result shows none. ctx bounds polling started by this call.
func (p *Poller) Sync(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	p.inflight.Add(1)
	p.mu.Unlock()

	go p.run(ctx, seq)
}

// Running reports whether interval polling is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticking
}

// Close stops polling for good; later Sync calls are ignored.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.haltTickerLocked()
	p.mu.Unlock()
}

// Wait blocks until every issued fetch has finished. Call it after Close.
func (p *Poller) Wait() {
	p.inflight.Wait()
}

func (p *Poller) run(ctx context.Context, seq uint64) {
	defer p.inflight.Done()

	sections, err := p.fetch(ctx)
	if err != nil {
		report := ctx.Err() == nil
		if errors.Is(err, ErrUnauthorized) {
			p.Close()
		}
		if report && p.OnError != nil {
			p.OnError(err)
		}
		return
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.closed || ctx.Err() != nil || seq <= p.applied {
		p.mu.Unlock()
		return
	}
	p.applied = seq
	generating := domain.AnyGenerating(sections)
	switch {
	case generating && !p.ticking:
		p.startTickerLocked(ctx)
	case !generating && p.ticking:
		p.haltTickerLocked()
	}
	p.mu.Unlock()

	if p.OnUpdate != nil {
		p.OnUpdate(domain.SortSections(sections))
	}
}

func (p *Poller) startTickerLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	p.tickerGen++
	gen := p.tickerGen
	p.ticking = true
	p.stopTicker = cancel

	go func() {
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				if p.tickerGen == gen {
					p.ticking = false
					p.stopTicker = nil
				}
				p.mu.Unlock()
				return
			case <-t.C:
				p.Sync(ctx)
			}
		}
	}()
}

func (p *Poller) haltTickerLocked() {
	if p.stopTicker != nil {
		p.stopTicker()
		p.stopTicker = nil
	}
	p.ticking = false
	p.tickerGen++
}
