// Package dedup decides whether an inbound protocol message was already
// processed. Two layers: a TTL cache keyed (message_id, INBOUND), then the
// durable event log on a miss. The cache is an optimization only; the log is
// authoritative.
package dedup

import (
	"context"
	"time"

	"github.com/voltra-energy/voltra/internal/cache"
	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/metrics"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type key struct {
	MessageID string
	Direction protocoldomain.Direction
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Config  config.Config
	Events  protocoldomain.EventRepository
	Metrics *metrics.Metrics `optional:"true"`
}

type Deduper struct {
	db      *gorm.DB
	seen    cache.Cache[key, struct{}]
	events  protocoldomain.EventRepository
	metrics *metrics.Metrics
	ttl     time.Duration
}

func New(p Params) *Deduper {
	return &Deduper{
		db:      p.DB,
		seen:    cache.NewTTLCache[key, struct{}](),
		events:  p.Events,
		metrics: p.Metrics,
		ttl:     p.Config.Protocol.DedupTTL,
	}
}

// Seen reports whether messageID was already processed as an INBOUND
// message. A durable hit re-populates the cache. OUTBOUND events can never
// satisfy the check; the key carries the direction.
func (d *Deduper) Seen(ctx context.Context, messageID string) (bool, error) {
	k := key{MessageID: messageID, Direction: protocoldomain.DirectionInbound}

	if _, ok := d.seen.Get(k); ok {
		d.metrics.RecordDedupHit()
		return true, nil
	}

	exists, err := d.events.ExistsInbound(ctx, d.db, messageID)
	if err != nil {
		return false, err
	}
	if exists {
		d.seen.Set(k, struct{}{}, d.ttl)
		d.metrics.RecordDedupHit()
		return true, nil
	}
	return false, nil
}

// Remember marks messageID as processed in the cache layer. The durable
// record is the INBOUND event row itself.
func (d *Deduper) Remember(messageID string) {
	d.seen.Set(key{MessageID: messageID, Direction: protocoldomain.DirectionInbound}, struct{}{}, d.ttl)
}

// Forget drops the cache entry; used by tests to force the durable path.
func (d *Deduper) Forget(messageID string) {
	d.seen.Delete(key{MessageID: messageID, Direction: protocoldomain.DirectionInbound})
}
