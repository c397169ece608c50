package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gamemanuel/BathPass/internal/live"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/monitoring"
	"github.com/Gamemanuel/BathPass/internal/pass"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PassItem is a pass row with its computed duration. Duration is live
// (against now) while the pass is open and final once closed.
type PassItem struct {
	ID              uint       `json:"id"`
	StudentName     string     `json:"student_name"`
	Destination     string     `json:"destination,omitempty"`
	TimeOut         time.Time  `json:"time_out"`
	TimeIn          *time.Time `json:"time_in,omitempty"`
	Duration        string     `json:"duration"`
	DurationMinutes int        `json:"duration_minutes"`
	Final           bool       `json:"final"`
}

func toPassItem(p models.Pass, now time.Time) PassItem {
	item := PassItem{
		ID:          p.ID,
		StudentName: p.StudentName,
		Destination: p.Destination,
		TimeOut:     p.TimeOut,
		TimeIn:      p.TimeIn,
	}

	d, err := pass.Between(p.TimeOut, p.TimeIn, now)
	if err != nil {
		item.Duration = "Invalid"
		return item
	}
	item.Duration = d.String()
	item.DurationMinutes = d.TotalMinutes()
	item.Final = d.Final
	return item
}

// ListPassesHandler returns the teacher's passes
// @Summary		List passes
// @Description	Returns the teacher's passes with computed durations, optionally filtered by status and a name/destination search
// @Tags			passes
// @Produce		json
// @Param			status	query		string	false	"open or closed"
// @Param			q		query		string	false	"Search by name or destination"
// @Security		BearerAuth
// @Success		200	{array}		PassItem
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes [get]
func ListPassesHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	query := storage.DB.Where("teacher_id = ?", teacherID)
	switch c.Query("status") {
	case "open":
		query = query.Where("time_in IS NULL")
	case "closed":
		query = query.Where("time_in IS NOT NULL")
	}

	var passes []models.Pass
	if err := query.Order("time_out DESC").Find(&passes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load passes",
			Details: err.Error(),
		})
		return
	}

	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	now := time.Now()
	items := make([]PassItem, 0, len(passes))
	for _, p := range passes {
		if q != "" &&
			!strings.Contains(strings.ToLower(p.StudentName), q) &&
			!strings.Contains(strings.ToLower(p.Destination), q) {
			continue
		}
		items = append(items, toPassItem(p, now))
	}

	c.JSON(http.StatusOK, items)
}

type CreatePassRequest struct {
	StudentName string     `json:"student_name" binding:"required"`
	Destination string     `json:"destination"`
	TimeOut     *time.Time `json:"time_out"`
}

// CreatePassHandler opens a new pass
// @Summary		Create a pass
// @Description	Opens a pass for a student; time_out defaults to now
// @Tags			passes
// @Accept			json
// @Produce		json
// @Param			pass	body		CreatePassRequest	true	"Pass data"
// @Security		BearerAuth
// @Success		201	{object}	PassItem
// @Failure		400	{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes [post]
func CreatePassHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var req CreatePassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	now := time.Now()
	p, err := pass.New(teacherID, req.StudentName, req.Destination, req.TimeOut, now)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid pass",
			Details: err.Error(),
		})
		return
	}

	rollback := Live.BeginWrite(teacherID, func(s *live.State) {
		s.Passes = append([]models.Pass{p}, s.Passes...)
	})

	if err := storage.DB.Create(&p).Error; err != nil {
		rollback()
		monitoring.TrackPassOperation("create", "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to create pass",
			Details: err.Error(),
		})
		return
	}
	Live.Ack(teacherID)
	monitoring.TrackPassOperation("create", "ok")

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "insert", Table: "passes", RowID: p.ID,
	})
	c.JSON(http.StatusCreated, toPassItem(p, now))
}

type ClosePassRequest struct {
	TimeIn *time.Time `json:"time_in"`
}

// ClosePassHandler marks a student as returned
// @Summary		Close a pass
// @Description	Sets time in (defaults to now); rejects a time in before time out
// @Tags			passes
// @Accept			json
// @Produce		json
// @Param			id		path		int					true	"Pass ID"
// @Param			body	body		ClosePassRequest	false	"Optional explicit time in"
// @Security		BearerAuth
// @Success		200	{object}	PassItem
// @Failure		400	{object}	response.ErrorResponse	"Time in before time out (INVALID_INTERVAL)"
// @Failure		404	{object}	response.ErrorResponse	"Pass not found (PASS_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes/{id}/close [post]
func ClosePassHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	p, ok := loadPass(c, teacherID)
	if !ok {
		return
	}

	var req ClosePassRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Request validation failed",
				Details: err.Error(),
			})
			return
		}
	}

	now := time.Now()
	if err := pass.Close(&p, req.TimeIn, now); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_INTERVAL",
			Message: "Time in must not precede time out",
		})
		return
	}

	if !savePass(c, teacherID, p, "close") {
		return
	}

	if d, err := pass.Between(p.TimeOut, p.TimeIn, now); err == nil {
		monitoring.TrackPassDuration(d.Elapsed)
	}
	c.JSON(http.StatusOK, toPassItem(p, now))
}

// ReopenPassHandler clears time in again
// @Summary		Reopen a pass
// @Description	Deliberately clears time in, putting the pass back in the open state
// @Tags			passes
// @Produce		json
// @Param			id	path		int	true	"Pass ID"
// @Security		BearerAuth
// @Success		200	{object}	PassItem
// @Failure		404	{object}	response.ErrorResponse	"Pass not found (PASS_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes/{id}/reopen [post]
func ReopenPassHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	p, ok := loadPass(c, teacherID)
	if !ok {
		return
	}

	pass.Reopen(&p)

	if !savePass(c, teacherID, p, "reopen") {
		return
	}
	c.JSON(http.StatusOK, toPassItem(p, time.Now()))
}

type EditRequest struct {
	Edits []EditField `json:"edits" binding:"required,min=1"`
}

type EditField struct {
	Op    string `json:"op" binding:"required"`
	Value string `json:"value"` // empty is meaningful, e.g. clearing the destination
}

// EditPassHandler applies a batch of typed field corrections
// @Summary		Edit a pass
// @Description	Applies rename_student / set_destination / set_time_out / set_time_in edits as one batch; the invariant is checked once after all edits
// @Tags			passes
// @Accept			json
// @Produce		json
// @Param			id		path		int			true	"Pass ID"
// @Param			edits	body		EditRequest	true	"Edit batch"
// @Security		BearerAuth
// @Success		200	{object}	PassItem
// @Failure		400	{object}	response.ErrorResponse	"Unknown edit op or violated invariant (VALIDATION_ERROR, INVALID_INTERVAL)"
// @Failure		404	{object}	response.ErrorResponse	"Pass not found (PASS_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes/{id} [patch]
func EditPassHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	p, ok := loadPass(c, teacherID)
	if !ok {
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	ops := make([]pass.EditOp, 0, len(req.Edits))
	for _, edit := range req.Edits {
		op, err := pass.ParseEditOp(edit.Op, edit.Value)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid edit operation",
				Details: err.Error(),
			})
			return
		}
		ops = append(ops, op)
	}

	if err := pass.ApplyEdits(&p, ops); err != nil {
		code := "VALIDATION_ERROR"
		if errors.Is(err, pass.ErrInvalidInterval) {
			code = "INVALID_INTERVAL"
		}
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    code,
			Message: "Edit batch violates pass invariants",
			Details: err.Error(),
		})
		return
	}

	if !savePass(c, teacherID, p, "edit") {
		return
	}
	c.JSON(http.StatusOK, toPassItem(p, time.Now()))
}

// DeletePassHandler destroys a pass record
// @Summary		Delete a pass
// @Description	Deletes the pass; deleting an already-removed pass is a soft no-op
// @Tags			passes
// @Produce		json
// @Param			id	path		int	true	"Pass ID"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/passes/{id} [delete]
func DeletePassHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_PASS_ID",
			Message: "Invalid pass identifier",
		})
		return
	}

	var p models.Pass
	if err := storage.DB.Where("teacher_id = ?", teacherID).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Concurrent deletion is expected; report it softly.
			c.JSON(http.StatusOK, response.SuccessResponse{Message: "Pass already removed"})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load pass",
			Details: err.Error(),
		})
		return
	}

	rollback := Live.BeginWrite(teacherID, func(s *live.State) {
		removePassFromState(s, p.ID)
	})

	if err := storage.DB.Unscoped().Delete(&p).Error; err != nil {
		rollback()
		monitoring.TrackPassOperation("delete", "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to delete pass",
			Details: err.Error(),
		})
		return
	}
	Live.Ack(teacherID)
	monitoring.TrackPassOperation("delete", "ok")

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "delete", Table: "passes", RowID: p.ID,
	})
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Pass deleted"})
}

func loadPass(c *gin.Context, teacherID uint) (models.Pass, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_PASS_ID",
			Message: "Invalid pass identifier",
		})
		return models.Pass{}, false
	}

	var p models.Pass
	if err := storage.DB.Where("teacher_id = ?", teacherID).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{
				Code:    "PASS_NOT_FOUND",
				Message: "Pass not found",
			})
		} else {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "DB_ERROR",
				Message: "Failed to load pass",
				Details: err.Error(),
			})
		}
		return models.Pass{}, false
	}
	return p, true
}

// savePass persists an already-validated pass with the optimistic
// snapshot protocol. Writes the error response itself on failure.
func savePass(c *gin.Context, teacherID uint, p models.Pass, operation string) bool {
	rollback := Live.BeginWrite(teacherID, func(s *live.State) {
		replacePassInState(s, p)
	})

	if err := storage.DB.Save(&p).Error; err != nil {
		rollback()
		monitoring.TrackPassOperation(operation, "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to save pass",
			Details: err.Error(),
		})
		return false
	}
	Live.Ack(teacherID)
	monitoring.TrackPassOperation(operation, "ok")

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "update", Table: "passes", RowID: p.ID,
	})
	return true
}

func replacePassInState(s *live.State, p models.Pass) {
	for i := range s.Passes {
		if s.Passes[i].ID == p.ID {
			s.Passes[i] = p
			return
		}
	}
	s.Passes = append([]models.Pass{p}, s.Passes...)
}

func removePassFromState(s *live.State, id uint) {
	for i := range s.Passes {
		if s.Passes[i].ID == id {
			s.Passes = append(s.Passes[:i], s.Passes[i+1:]...)
			return
		}
	}
}
