// Package consolidator resamples feed bars of a fine resolution (e.g. 1m)
// into the trading resolution (e.g. 1h). Each symbol keeps one forming bar
// updated in O(1); a bar is emitted once its last source bar has arrived, or
// when a bar from a later bucket closes it early.
package consolidator

import (
	"context"
	"fmt"
	"log"
	"time"

	"phasetrader/internal/model"
)

type forming struct {
	bucket int64 // bucket start, unix seconds
	bar    model.Bar
	count  int
}

// Consolidator merges source bars into resolution bars.
// Not goroutine-safe: run it from a single goroutine.
type Consolidator struct {
	source     int64 // seconds
	resolution int64 // seconds
	states     map[string]*forming
	emitted    map[string]int64 // last emitted bucket per symbol

	// Hooks
	OnBar   func(b model.Bar, sourceBars int) // called on every emitted bar (optional)
	OnStale func(b model.Bar)                 // called when a late source bar is rejected (optional)
}

// New creates a consolidator from source-resolution bars to resolution bars.
// resolution must be a positive multiple of source.
func New(source, resolution time.Duration) (*Consolidator, error) {
	if source < time.Second || resolution < source {
		return nil, fmt.Errorf("consolidator: invalid resolutions source=%s resolution=%s", source, resolution)
	}
	if resolution%source != 0 {
		return nil, fmt.Errorf("consolidator: resolution %s is not a multiple of %s", resolution, source)
	}
	return &Consolidator{
		source:     int64(source / time.Second),
		resolution: int64(resolution / time.Second),
		states:     make(map[string]*forming),
		emitted:    make(map[string]int64),
	}, nil
}

// Add merges one source bar and returns the bars it finalizes, oldest first.
func (c *Consolidator) Add(b model.Bar) []model.Bar {
	ts := b.TS.Unix()
	bucket := ts - ts%c.resolution

	var out []model.Bar
	st, exists := c.states[b.Symbol]

	last, emitted := c.emitted[b.Symbol]
	if (exists && bucket < st.bucket) || (emitted && bucket <= last) {
		if c.OnStale != nil {
			c.OnStale(b)
		} else {
			log.Printf("[consolidator] %s: dropping late bar %d (bucket %d already closed)", b.Symbol, ts, bucket)
		}
		return nil
	}

	if exists && bucket > st.bucket {
		// The previous bucket never saw its last source bar.
		out = append(out, c.finalize(b.Symbol, st))
		exists = false
	}

	if !exists {
		st = &forming{
			bucket: bucket,
			count:  1,
			bar: model.Bar{
				Symbol: b.Symbol,
				TS:     time.Unix(bucket, 0).UTC(),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			},
		}
		c.states[b.Symbol] = st
	} else {
		fb := &st.bar
		if b.High.GreaterThan(fb.High) {
			fb.High = b.High
		}
		if b.Low.LessThan(fb.Low) {
			fb.Low = b.Low
		}
		fb.Close = b.Close
		fb.Volume = fb.Volume.Add(b.Volume)
		st.count++
	}

	if ts+c.source >= bucket+c.resolution {
		out = append(out, c.finalize(b.Symbol, st))
	}
	return out
}

func (c *Consolidator) finalize(symbol string, st *forming) model.Bar {
	delete(c.states, symbol)
	c.emitted[symbol] = st.bucket
	if c.OnBar != nil {
		c.OnBar(st.bar, st.count)
	}
	return st.bar
}

// Forming returns the in-progress bar for symbol.
func (c *Consolidator) Forming(symbol string) (model.Bar, bool) {
	st, ok := c.states[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return st.bar, true
}

// Run consumes source bars from in and sends consolidated bars to out until
// ctx is cancelled or in is closed. Forming bars are discarded on exit;
// out is not closed.
func (c *Consolidator) Run(ctx context.Context, in <-chan model.Bar, out chan<- model.Bar) {
	defer func() {
		for sym := range c.states {
			log.Printf("[consolidator] %s: discarding incomplete bar on shutdown", sym)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			for _, done := range c.Add(b) {
				select {
				case out <- done:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
