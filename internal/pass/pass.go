package pass

import (
	"errors"
	"strings"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
)

var ErrEmptyName = errors.New("student name must not be empty")

// New builds an open pass for a teacher. timeOut defaults to now when
// nil. The name is trimmed and must be non-empty after trimming.
func New(teacherID uint, studentName, destination string, timeOut *time.Time, now time.Time) (models.Pass, error) {
	studentName = strings.TrimSpace(studentName)
	if studentName == "" {
		return models.Pass{}, ErrEmptyName
	}

	out := now
	if timeOut != nil {
		out = *timeOut
	}

	return models.Pass{
		TeacherID:   teacherID,
		StudentName: studentName,
		Destination: strings.TrimSpace(destination),
		TimeOut:     out,
	}, nil
}

// Close marks the student as returned. timeIn defaults to now when nil.
// Fails with ErrInvalidInterval when the return time precedes time out;
// the pass is left untouched on failure.
func Close(p *models.Pass, timeIn *time.Time, now time.Time) error {
	in := now
	if timeIn != nil {
		in = *timeIn
	}
	if in.Before(p.TimeOut) {
		return ErrInvalidInterval
	}
	p.TimeIn = &in
	return nil
}

// Reopen clears time in, putting the pass back into the open state.
// This is a deliberate correction operation, never a side effect of a
// field edit.
func Reopen(p *models.Pass) {
	p.TimeIn = nil
}

// Validate checks the pass invariants: non-empty student name and
// time in (when set) not before time out.
func Validate(p models.Pass) error {
	if strings.TrimSpace(p.StudentName) == "" {
		return ErrEmptyName
	}
	if p.TimeIn != nil && p.TimeIn.Before(p.TimeOut) {
		return ErrInvalidInterval
	}
	return nil
}
