// Package bus broadcasts bars from one producer to several consumers.
package bus

import (
	"context"
	"log"
	"sync"

	"phasetrader/internal/model"
)

// FanOut broadcasts bars from a single input channel to N named output
// channels. If an output channel is full the bar is dropped for that
// consumer so a slow consumer cannot block the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int

	// OnDrop is called when a bar is dropped for a subscriber.
	OnDrop func(name string, bar model.Bar)
}

type subscriber struct {
	name string
	ch   chan model.Bar
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. Subscribe before Run.
func (f *FanOut) Subscribe(name string) <-chan model.Bar {
	ch := make(chan model.Bar, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. It closes every
// output when ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Bar) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.outputs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, s := range f.outputs {
				select {
				case s.ch <- bar:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.name, bar)
					} else {
						log.Printf("[bus] subscriber %s full, dropping bar %s@%d", s.name, bar.Symbol, bar.TS.Unix())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports the saturation of every subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
