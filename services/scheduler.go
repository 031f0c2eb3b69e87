// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the periodic ledger and rule-engine upkeep:
// hourly credit expiry sweeps and five-minute reward-rule reloads. Both jobs
// are idempotent, so overlapping deployments are safe.
func StartMaintenanceScheduler(credits *CreditService, rewards *RewardService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			count, err := credits.SweepExpired()
			if err != nil {
				log.Printf("[Scheduler] credit expiry sweep failed: %v", err)
				return
			}
			if count > 0 {
				log.Printf("[Scheduler] swept %d expired credit rows", count)
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := rewards.ReloadRules(); err != nil {
				log.Printf("[Scheduler] reward rule reload failed: %v", err)
			}
		}),
	)
}
