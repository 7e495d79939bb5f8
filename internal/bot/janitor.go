package bot

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// conversationsGauge tracks how many users have a topic.
var conversationsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relay_conversations",
		Help: "Number of users mapped to a forum topic.",
	},
)

func init() {
	prometheus.MustRegister(conversationsGauge)
}

// Housekeeping is the store surface the janitor needs. *repo.Store
// implements it.
type Housekeeping interface {
	PurgeUpdateReceipts(ctx context.Context, now time.Time) (int64, error)
	CountConversations(ctx context.Context) (int64, error)
}

// Janitor periodically removes expired update receipts and refreshes the
// conversation gauge.
type Janitor struct {
	Store    Housekeeping
	Interval time.Duration
	Log      zerolog.Logger

	now func() time.Time
}

// RunOnce purges receipts that are expired now and samples the number of
// conversations.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	n, err := j.Store.PurgeUpdateReceipts(ctx, now().UTC())
	switch {
	case err != nil:
		j.Log.Warn().Err(err).Msg("purge update receipts failed")
	case n > 0:
		j.Log.Debug().Int64("purged", n).Msg("expired update receipts purged")
	}

	total, err := j.Store.CountConversations(ctx)
	if err != nil {
		j.Log.Warn().Err(err).Msg("count conversations failed")
		return
	}
	conversationsGauge.Set(float64(total))
}

// Run purges every Interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.RunOnce(ctx)
		}
	}
}
