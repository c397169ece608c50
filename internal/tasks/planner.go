package tasks

import (
	"log"
	"time"

	"github.com/Gamemanuel/BathPass/internal/config"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/pass"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/robfig/cron/v3"
)

var overdueThreshold = 15 * time.Minute

// BroadcastOverduePasses finds open passes out longer than the
// configured threshold and pushes an alert to the owning teacher's
// clients.
func BroadcastOverduePasses() {
	now := time.Now()
	cutoff := now.Add(-overdueThreshold)

	var passes []models.Pass
	if err := storage.DB.
		Where("time_in IS NULL AND time_out < ?", cutoff).
		Find(&passes).Error; err != nil {
		log.Println("Overdue sweep query failed:", err)
		return
	}

	for _, p := range passes {
		d, err := pass.Between(p.TimeOut, nil, now)
		if err != nil {
			continue
		}
		ws.HubInstance.BroadcastChange(p.TeacherID, ws.ChangeEvent{
			EventType: "pass_overdue",
			Table:     "passes",
			RowID:     p.ID,
			Detail:    p.StudentName + " has been out " + d.String(),
		})
	}
}

// SweepInconsistentState finds promote leftovers: a student with an
// open pass who is still in the teacher's line. That pair means a
// promote committed its pass but failed to remove the queue entry.
func SweepInconsistentState() {
	var entries []models.QueueEntry
	if err := storage.DB.Find(&entries).Error; err != nil {
		log.Println("Consistency sweep query failed:", err)
		return
	}

	for _, entry := range entries {
		var open models.Pass
		err := storage.DB.
			Where("teacher_id = ? AND student_name = ? AND time_in IS NULL", entry.TeacherID, entry.StudentName).
			First(&open).Error
		if err != nil {
			continue
		}

		log.Printf("Inconsistent state: teacher %d has %q both on open pass %d and in line (entry %d)",
			entry.TeacherID, entry.StudentName, open.ID, entry.ID)
		ws.HubInstance.BroadcastChange(entry.TeacherID, ws.ChangeEvent{
			EventType: "inconsistent_state",
			Table:     "queue",
			RowID:     entry.ID,
			Detail:    entry.StudentName + " has an open pass and a stale line entry",
		})
	}
}

// CleanExpiredObjectives removes objectives whose validity window ended
// more than a day ago. The out-of-class objective has no window and is
// kept.
func CleanExpiredObjectives() {
	threshold := time.Now().Add(-24 * time.Hour)
	if err := storage.DB.
		Where("out_of_class = false AND end_date < ?", threshold).
		Delete(&models.Objective{}).Error; err != nil {
		log.Println("Failed to delete expired objectives:", err)
	} else {
		log.Println("Expired objectives cleaned up.")
	}
}

// InitScheduler starts the cron jobs.
func InitScheduler(cfg *config.Config) *cron.Cron {
	overdueThreshold = cfg.OverdueThreshold

	c := cron.New(cron.WithSeconds())

	// Overdue pass alerts every minute.
	_, err := c.AddFunc("0 * * * * *", BroadcastOverduePasses)
	if err != nil {
		log.Println("Failed to schedule BroadcastOverduePasses:", err)
	}

	// Promote-leftover sweep every 5 minutes.
	_, err = c.AddFunc("0 */5 * * * *", SweepInconsistentState)
	if err != nil {
		log.Println("Failed to schedule SweepInconsistentState:", err)
	}

	// Objective cleanup daily at 03:00.
	_, err = c.AddFunc("0 0 3 * * *", CleanExpiredObjectives)
	if err != nil {
		log.Println("Failed to schedule CleanExpiredObjectives:", err)
	}

	c.Start()
	log.Println("Cron scheduler started.")
	return c
}
