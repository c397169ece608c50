package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/pass"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("queue entry not found")

// InconsistentStateError reports a partially applied promote: the pass
// was committed but the queue entry could not be removed, so the
// student is both out on a pass and still in line. This is distinct
// from a clean failure and needs a manual or background fix.
type InconsistentStateError struct {
	Pass    models.Pass
	EntryID uint
	Err     error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("pass %d started for %q but queue entry %d was not removed: %v",
		e.Pass.ID, e.Pass.StudentName, e.EntryID, e.Err)
}

func (e *InconsistentStateError) Unwrap() error { return e.Err }

// Engine serializes all position-mutating operations on a teacher's
// line through database transactions. Positions are assigned under a
// row lock; a client-supplied position is never trusted.
type Engine struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// EnqueueResult reports whether the student went straight out on a
// pass (empty line) or joined the line at Entry.Position.
type EnqueueResult struct {
	WentNow bool
	Pass    *models.Pass
	Entry   *models.QueueEntry
}

// Enqueue adds a student to the teacher's line. An empty line means
// "go now": no entry is created and a pass is opened immediately. The
// name is validated up front so a bad request never persists anything
// on either branch.
func (e *Engine) Enqueue(teacherID uint, studentName, destination string, now time.Time) (EnqueueResult, error) {
	studentName = strings.TrimSpace(studentName)
	if studentName == "" {
		return EnqueueResult{}, pass.ErrEmptyName
	}
	destination = strings.TrimSpace(destination)

	var result EnqueueResult

	err := e.db.Transaction(func(tx *gorm.DB) error {
		maxPosition, err := lockedMaxPosition(tx, teacherID)
		if err != nil {
			return err
		}

		if maxPosition == 0 {
			p, err := pass.New(teacherID, studentName, destination, nil, now)
			if err != nil {
				return err
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			result = EnqueueResult{WentNow: true, Pass: &p}
			return nil
		}

		entry := models.QueueEntry{
			TeacherID:   teacherID,
			StudentName: studentName,
			Destination: destination,
			Position:    maxPosition + 1,
			TimeJoined:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		result = EnqueueResult{Entry: &entry}
		return nil
	})

	return result, err
}

// Promote starts a pass for the named entry and removes it from the
// line, closing the position gap. The pass insert commits first,
// matching the user-visible promise ("pass started") even when the
// line cleanup fails; that failure mode is surfaced as
// *InconsistentStateError rather than rolled into a clean error. A
// promote that loses the race to a concurrent one retracts its pass
// and reports ErrNotFound.
func (e *Engine) Promote(teacherID, entryID uint, now time.Time) (*models.Pass, error) {
	return e.promote(teacherID, entryID, now, e.remove)
}

// promote runs the read, the pass insert and the entry removal.
// removeEntry is e.remove everywhere but in tests, where the cleanup
// failure paths need to be forced.
func (e *Engine) promote(teacherID, entryID uint, now time.Time, removeEntry func(teacherID, entryID uint) error) (*models.Pass, error) {
	var entry models.QueueEntry
	if err := e.db.
		Where("teacher_id = ?", teacherID).
		First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p, err := pass.New(teacherID, entry.StudentName, entry.Destination, nil, now)
	if err != nil {
		return nil, err
	}
	if err := e.db.Create(&p).Error; err != nil {
		return nil, err
	}

	if err := removeEntry(teacherID, entryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// The entry vanished between our read and the removal: a
			// concurrent promote already claimed it and started its own
			// pass. Retract the duplicate.
			if derr := e.db.Unscoped().Delete(&p).Error; derr != nil {
				return &p, &InconsistentStateError{Pass: p, EntryID: entryID, Err: derr}
			}
			return nil, ErrNotFound
		}
		return &p, &InconsistentStateError{Pass: p, EntryID: entryID, Err: err}
	}
	return &p, nil
}

// Remove deletes an entry without starting a pass and closes the
// position gap. Removing an already-removed ID returns ErrNotFound
// without touching the other positions; callers treat that as a soft
// no-op.
func (e *Engine) Remove(teacherID, entryID uint) error {
	return e.remove(teacherID, entryID)
}

func (e *Engine) remove(teacherID, entryID uint) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var entry models.QueueEntry
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("teacher_id = ?", teacherID).
			First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Unscoped().Delete(&entry).Error; err != nil {
			return err
		}

		return tx.Model(&models.QueueEntry{}).
			Where("teacher_id = ? AND position > ?", teacherID, entry.Position).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
	})
}

// List returns the teacher's line ordered by position ascending.
func (e *Engine) List(teacherID uint) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := e.db.
		Where("teacher_id = ?", teacherID).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}

// lockedMaxPosition reads the current max position with the teacher's
// entries locked, so two concurrent enqueues cannot both observe the
// same tail.
func lockedMaxPosition(tx *gorm.DB, teacherID uint) (int, error) {
	var entries []models.QueueEntry
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("teacher_id = ?", teacherID).
		Find(&entries).Error; err != nil {
		return 0, err
	}

	max := 0
	for _, entry := range entries {
		if entry.Position > max {
			max = entry.Position
		}
	}
	return max, nil
}
