package sched

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/murmur-social/murmur-backend/internal/repository"
	pkglogger "github.com/murmur-social/murmur-backend/pkg/logger"
)

var messagesPurgedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dm_messages_purged_total",
		Help: "Total number of expired messages physically removed",
	},
	[]string{"kind"},
)

// BlobStore is the attachment blob deleter used during purge
type BlobStore interface {
	Delete(ctx context.Context, key string) error
}

// ExpiryReaper periodically purges messages past their expiry. Active
// listings already filter expired rows at query time; the reaper bounds
// how long expired ciphertext stays on disk to at most one interval.
// Attachment blobs of purged messages are removed from object storage
// in the same sweep.
type ExpiryReaper struct {
	interval time.Duration
	messages repository.MessageRepository
	groups   repository.GroupMessageRepository
	blobs    BlobStore
	log      zerolog.Logger
}

// NewExpiryReaper creates a new ExpiryReaper. blobs may be nil when no
// attachment storage is configured.
func NewExpiryReaper(interval time.Duration, messages repository.MessageRepository, groups repository.GroupMessageRepository, blobs BlobStore) *ExpiryReaper {
	return &ExpiryReaper{
		interval: interval,
		messages: messages,
		groups:   groups,
		blobs:    blobs,
		log:      pkglogger.WithComponent("ExpiryReaper"),
	}
}

// Run blocks until ctx is cancelled, purging on every tick.
func (r *ExpiryReaper) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("starting expiry reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping expiry reaper")
			return ctx.Err()
		case <-ticker.C:
			r.purge(ctx, time.Now())
		}
	}
}

func (r *ExpiryReaper) purge(ctx context.Context, now time.Time) {
	// Keys must be collected before the rows are gone, and the blobs
	// deleted only once the rows really are: a failed purge keeps rows
	// that still reference their blobs.
	directKeys := r.expiredBlobKeys(now, r.messages.ExpiredAttachmentKeys, "direct")
	groupKeys := r.expiredBlobKeys(now, r.groups.ExpiredAttachmentKeys, "group")

	direct, err := r.messages.DeleteExpired(now)
	if err != nil {
		r.log.Error().Err(err).Msg("purge direct messages failed")
	} else {
		if direct > 0 {
			messagesPurgedTotal.WithLabelValues("direct").Add(float64(direct))
			r.log.Info().Int64("count", direct).Msg("purged expired direct messages")
		}
		r.deleteBlobs(ctx, directKeys)
	}

	group, err := r.groups.DeleteExpired(now)
	if err != nil {
		r.log.Error().Err(err).Msg("purge group messages failed")
	} else {
		if group > 0 {
			messagesPurgedTotal.WithLabelValues("group").Add(float64(group))
			r.log.Info().Int64("count", group).Msg("purged expired group messages")
		}
		r.deleteBlobs(ctx, groupKeys)
	}
}

// expiredBlobKeys gathers the object keys of attachments about to be
// purged. Returns nil when no blob store is configured.
func (r *ExpiryReaper) expiredBlobKeys(now time.Time, collect func(time.Time) ([]string, error), kind string) []string {
	if r.blobs == nil {
		return nil
	}
	keys, err := collect(now)
	if err != nil {
		r.log.Error().Err(err).Str("kind", kind).Msg("collect expired attachment keys failed")
		return nil
	}
	return keys
}

// deleteBlobs removes purged attachments from object storage. Best
// effort: a failed delete leaves an orphan blob but never blocks the
// sweep.
func (r *ExpiryReaper) deleteBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := r.blobs.Delete(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("attachment blob delete failed")
		}
	}
}
