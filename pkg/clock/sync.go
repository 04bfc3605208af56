// ABOUTME: Round-trip clock synchronization with a remote stream clock
// ABOUTME: Sets the peer to our time, then corrects it by half the measured round trip
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Peer is the remote side of a clock exchange
type Peer interface {
	SetTime(ctx context.Context, t uint64) error
	AdjustTime(ctx context.Context, delta int64) error
}

// SyncOptions tunes the exchange
type SyncOptions struct {
	Rounds    int           // maximum exchanges (default 5)
	Threshold time.Duration // accept once the one-way estimate is below this (default 10ms)
	Backoff   time.Duration // wait between rounds (default 1s, negative for none)
	Logger    *zerolog.Logger
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Rounds <= 0 {
		o.Rounds = 5
	}
	if o.Threshold <= 0 {
		o.Threshold = 10 * time.Millisecond
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	} else if o.Backoff == 0 {
		o.Backoff = time.Second
	}
	return o
}

// Result describes a completed exchange
type Result struct {
	Estimate  time.Duration // one-way delay sent as the final adjustment
	Rounds    int
	Converged bool
	Quality   Quality
}

// Synchronize runs the exchange against peer. Failing to converge is not an
// error: the best estimate is still applied and Converged is false.
func Synchronize(ctx context.Context, local *Clock, peer Peer, opts SyncOptions) (Result, error) {
	opts = opts.withDefaults()

	var res Result
	for i := 0; i < opts.Rounds; i++ {
		before := local.Now()
		if err := peer.SetTime(ctx, before); err != nil {
			return res, fmt.Errorf("failed to set peer time: %w", err)
		}
		after := local.Now()

		res.Rounds = i + 1
		res.Estimate = time.Duration(int64(after-before) / 2)
		if res.Estimate < opts.Threshold {
			res.Converged = true
			break
		}

		if opts.Logger != nil {
			opts.Logger.Debug().
				Int("round", res.Rounds).
				Dur("estimate", res.Estimate).
				Msg("clock exchange above threshold, retrying")
		}
		if i == opts.Rounds-1 {
			break
		}

		timer := time.NewTimer(opts.Backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		}
	}

	if err := peer.AdjustTime(ctx, int64(res.Estimate)); err != nil {
		return res, fmt.Errorf("failed to adjust peer time: %w", err)
	}

	res.Quality = QualityGood
	if !res.Converged {
		res.Quality = QualityDegraded
	}
	return res, nil
}
