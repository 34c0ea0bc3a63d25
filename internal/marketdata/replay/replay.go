// Package replay provides a bar replayer that reads historical bars from a
// bar store and emits them at configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"phasetrader/internal/model"
)

// maxGap caps the simulated wait between two bars.
const maxGap = 5 * time.Second

// Replayer replays stored bars at a configurable speed multiplier.
type Replayer struct {
	reader model.BarReader
}

// New creates a Replayer backed by a bar reader.
func New(reader model.BarReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays the bars of symbols after fromTS (unix seconds, 0 = all) into
// outCh in time order and returns the number emitted. speed controls the
// playback rate: 1.0 = real time, 10.0 = 10x, 0 = as fast as possible.
// outCh is not closed.
func (r *Replayer) Run(ctx context.Context, symbols []string, fromTS int64, speed float64, outCh chan<- model.Bar) (int, error) {
	var all []model.Bar
	for _, sym := range symbols {
		bars, err := r.reader.ReadBars(sym, fromTS)
		if err != nil {
			return 0, err
		}
		all = append(all, bars...)
	}

	if len(all) == 0 {
		log.Println("[replay] no bars found")
		return 0, nil
	}

	// Symbols interleave; keep per-symbol order for equal timestamps.
	sort.SliceStable(all, func(i, j int) bool { return all[i].TS.Before(all[j].TS) })

	log.Printf("[replay] loaded %d bars across %d symbols, speed=%.1fx", len(all), len(symbols), speed)

	var prevTS time.Time
	emitted := 0

	for _, b := range all {
		if speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				wait := time.Duration(float64(gap) / speed)
				if wait > maxGap {
					wait = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		prevTS = b.TS

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return emitted, ctx.Err()
		case outCh <- b:
			emitted++
		}
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return emitted, nil
}
