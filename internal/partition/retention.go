package partition

import (
	"context"
	"fmt"
	"log"
	"time"

	"community-bot/backend/internal/volatile"
)

// RetentionMarkerPrefix keys the once-per-month retention marker in the volatile store.
const RetentionMarkerPrefix = "partition:retention:"

// markerTTL outlives the month so the marker cannot expire before the month ends.
const markerTTL = 32 * 24 * time.Hour

// MonthlyRetention runs DropOldPartitions at most once per calendar month across all worker
// processes that share the volatile store. It is meant to be checked daily.
type MonthlyRetention struct {
	manager   *Manager
	store     volatile.Store
	retention int
}

func NewMonthlyRetention(manager *Manager, store volatile.Store, retentionMonths int) *MonthlyRetention {
	return &MonthlyRetention{manager: manager, store: store, retention: retentionMonths}
}

// Run drops expired partitions if this month's marker could be claimed. ran is false when another
// run already claimed it. A failed drop releases the marker so the next check retries.
func (r *MonthlyRetention) Run(ctx context.Context) (ran bool, dropped int, err error) {
	key := RetentionMarkerPrefix + r.manager.now().UTC().Format("2006-01")
	claimed, err := r.store.SetNX(ctx, key, "1", markerTTL)
	if err != nil {
		return false, 0, fmt.Errorf("partition: retention marker: %w", err)
	}
	if !claimed {
		return false, 0, nil
	}
	dropped, err = r.manager.DropOldPartitions(ctx, r.retention)
	if err != nil {
		if delErr := r.store.Del(context.WithoutCancel(ctx), key); delErr != nil {
			log.Printf("partition: release retention marker %s, retry waits for next month: %v", key, delErr)
		}
	}
	return true, dropped, err
}
