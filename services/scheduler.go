// services/scheduler.go
package services

import (
	"log"
	"time"

	"tournament-wallet-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartLifecycleScheduler runs the clock-driven tournament transitions:
// approved tournaments open for joining, upcoming ones go live at their start
// time, live ones complete at their end time.
func (s *TournamentService) StartLifecycleScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.runLifecycleSweep(time.Now())
		}),
	)
}

// runLifecycleSweep advances every tournament the clock has caught up with.
// Each sweep is a conditional UPDATE carrying its from-state, so the lifecycle
// graph holds even while administrators act concurrently.
func (s *TournamentService) runLifecycleSweep(now time.Time) {
	if res := s.DB.Model(&models.Tournament{}).
		Where("status = ?", models.TournamentStatusApproved).
		Update("status", models.TournamentStatusUpcoming); res.Error != nil {
		log.Printf("[Lifecycle] open-for-joining sweep failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("✅ [Lifecycle] %d tournament(s) now open for joining", res.RowsAffected)
	}

	if res := s.DB.Model(&models.Tournament{}).
		Where("status = ? AND start_time <= ?", models.TournamentStatusUpcoming, now).
		Update("status", models.TournamentStatusLive); res.Error != nil {
		log.Printf("[Lifecycle] go-live sweep failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("✅ [Lifecycle] %d tournament(s) went live", res.RowsAffected)
	}

	if res := s.DB.Model(&models.Tournament{}).
		Where("status = ? AND end_time <= ?", models.TournamentStatusLive, now).
		Update("status", models.TournamentStatusCompleted); res.Error != nil {
		log.Printf("[Lifecycle] completion sweep failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("✅ [Lifecycle] %d tournament(s) completed", res.RowsAffected)
	}
}
