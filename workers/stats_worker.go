// workers/stats_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"referral-ledger-system/services"

	"gorm.io/gorm"
)

// StatsRefreshWorker drains a queue of user IDs whose invite_stats rows need
// recomputing, so request paths never block on the aggregate queries. The
// counters are a cache: dropped or failed refreshes are picked up by the
// periodic reconcile pass.
type StatsRefreshWorker struct {
	db       *gorm.DB
	stats    *services.StatsService
	queue    chan string
	interval time.Duration // reconcile cadence for recently-touched users
}

func NewStatsRefreshWorker(db *gorm.DB, stats *services.StatsService, queueSize int) *StatsRefreshWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &StatsRefreshWorker{
		db:       db,
		stats:    stats,
		queue:    make(chan string, queueSize),
		interval: 10 * time.Minute,
	}
}

// Queue exposes the refresh channel for producers.
func (w *StatsRefreshWorker) Queue() chan<- string {
	return w.queue
}

func (w *StatsRefreshWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting invite stats refresh worker…")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Invite stats refresh worker stopped.")
			return
		case userID := <-w.queue:
			if _, err := w.stats.RefreshInviteStats(userID); err != nil {
				log.Printf("❌ Stats refresh failed for %s: %v", userID, err)
			}
		case <-ticker.C:
			w.reconcile()
		}
	}
}

// reconcile recomputes counters for every inviter with registration activity
// since the last pass, catching anything the queue dropped.
func (w *StatsRefreshWorker) reconcile() {
	since := time.Now().Add(-w.interval)

	var inviters []string
	err := w.db.Table("invite_registrations").
		Distinct("inviter_id").
		Where("updated_at >= ?", since).
		Pluck("inviter_id", &inviters).Error
	if err != nil {
		log.Printf("❌ Stats reconcile query failed: %v", err)
		return
	}
	if len(inviters) == 0 {
		return
	}

	refreshed := 0
	for _, userID := range inviters {
		if _, err := w.stats.RefreshInviteStats(userID); err != nil {
			log.Printf("❌ Stats reconcile failed for %s: %v", userID, err)
			continue
		}
		refreshed++
	}
	log.Printf("✅ Stats reconcile refreshed %d/%d inviters", refreshed, len(inviters))
}
