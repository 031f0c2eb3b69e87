// workers/snapshot_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"referral-ledger-system/models"
	"referral-ledger-system/utils"

	"gorm.io/gorm"
)

// statsSnapshot is the JSON document uploaded per snapshot run.
type statsSnapshot struct {
	TakenAt     time.Time            `json:"taken_at"`
	InviteStats []models.InviteStats `json:"invite_stats"`
	ShareStats  []models.ShareStats  `json:"share_stats"`
}

// PollStatsSnapshots periodically dumps the denormalized invite/share counters
// to R2 as timestamped JSON objects, giving the analytics side a store-neutral
// feed without read access to the ledger database.
func PollStatsSnapshots(ctx context.Context, db *gorm.DB, interval time.Duration) {
	log.Println("Starting invite stats snapshot uploads...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stats snapshot uploads stopped.")
			return
		case <-ticker.C:
			if err := uploadSnapshot(ctx, db); err != nil {
				log.Printf("❌ Stats snapshot upload failed: %v", err)
			}
		}
	}
}

func uploadSnapshot(ctx context.Context, db *gorm.DB) error {
	snap := statsSnapshot{TakenAt: time.Now().UTC()}

	if err := db.Find(&snap.InviteStats).Error; err != nil {
		return fmt.Errorf("loading invite_stats: %w", err)
	}
	if err := db.Find(&snap.ShareStats).Error; err != nil {
		return fmt.Errorf("loading share_stats: %w", err)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	key := fmt.Sprintf("invite-stats/%s.json", snap.TakenAt.Format("2006-01-02T15-04-05Z"))
	url, err := utils.UploadBytesToR2(ctx, key, body, "application/json")
	if err != nil {
		return err
	}

	log.Printf("✅ Uploaded stats snapshot (%d inviters, %d share rows) to %s",
		len(snap.InviteStats), len(snap.ShareStats), url)
	return nil
}
