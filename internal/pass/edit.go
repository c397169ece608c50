package pass

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
)

// EditOp is one field correction on a pass. The set of operations is
// closed; an unknown field name cannot be expressed.
type EditOp interface {
	apply(p *models.Pass)
}

type RenameStudent struct{ Name string }

func (op RenameStudent) apply(p *models.Pass) { p.StudentName = strings.TrimSpace(op.Name) }

type SetDestination struct{ Destination string }

func (op SetDestination) apply(p *models.Pass) { p.Destination = strings.TrimSpace(op.Destination) }

type SetTimeOut struct{ Time time.Time }

func (op SetTimeOut) apply(p *models.Pass) { p.TimeOut = op.Time }

type SetTimeIn struct{ Time time.Time }

func (op SetTimeIn) apply(p *models.Pass) { t := op.Time; p.TimeIn = &t }

// ApplyEdits applies the whole batch to a copy, validates the result
// once (not field-by-field, so transient violations inside the batch
// are fine), and only then mutates the pass. A failing batch leaves the
// pass exactly as it was.
func ApplyEdits(p *models.Pass, ops []EditOp) error {
	edited := *p
	for _, op := range ops {
		op.apply(&edited)
	}
	if err := Validate(edited); err != nil {
		return err
	}
	*p = edited
	return nil
}

// ParseEditOp maps a wire-level edit to its typed operation. Timestamps
// are RFC 3339.
func ParseEditOp(op, value string) (EditOp, error) {
	switch op {
	case "rename_student":
		return RenameStudent{Name: value}, nil
	case "set_destination":
		return SetDestination{Destination: value}, nil
	case "set_time_out":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("invalid time_out value: %w", err)
		}
		return SetTimeOut{Time: t}, nil
	case "set_time_in":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("invalid time_in value: %w", err)
		}
		return SetTimeIn{Time: t}, nil
	default:
		return nil, fmt.Errorf("unknown edit operation %q", op)
	}
}
