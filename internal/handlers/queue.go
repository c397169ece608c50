package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gamemanuel/BathPass/internal/live"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/monitoring"
	"github.com/Gamemanuel/BathPass/internal/pass"
	"github.com/Gamemanuel/BathPass/internal/queue"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-gonic/gin"
)

// QueueItem is one waiting student in the teacher's line.
type QueueItem struct {
	ID          uint      `json:"id"`
	StudentName string    `json:"student_name"`
	Destination string    `json:"destination,omitempty"`
	Position    int       `json:"position"`
	TimeJoined  time.Time `json:"time_joined"`
	Waiting     string    `json:"waiting"` // live elapsed time in line
}

func toQueueItem(entry models.QueueEntry, now time.Time) QueueItem {
	item := QueueItem{
		ID:          entry.ID,
		StudentName: entry.StudentName,
		Destination: entry.Destination,
		Position:    entry.Position,
		TimeJoined:  entry.TimeJoined,
	}
	if d, err := pass.Between(entry.TimeJoined, nil, now); err == nil {
		item.Waiting = d.String()
	}
	return item
}

// GetQueueHandler returns the teacher's line
// @Summary		Get the line
// @Description	Returns the teacher's waiting line ordered by position
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		QueueItem
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/queue [get]
func GetQueueHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	entries, err := Line.List(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load the line",
			Details: err.Error(),
		})
		return
	}

	now := time.Now()
	items := make([]QueueItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toQueueItem(entry, now))
	}
	c.JSON(http.StatusOK, items)
}

type EnqueueRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	Destination string `json:"destination"`
}

// EnqueueResponse reports where the student ended up: straight out on a
// pass when the line was empty, or in line at Position.
type EnqueueResponse struct {
	Message  string    `json:"message"`
	WentNow  bool      `json:"went_now"`
	Pass     *PassItem `json:"pass,omitempty"`
	Position int       `json:"position,omitempty"`
}

// EnqueueHandler adds a student to the line
// @Summary		Join the line
// @Description	Adds a student to the line; an empty line starts a pass immediately ("go now")
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			entry	body		EnqueueRequest	true	"Student data"
// @Security		BearerAuth
// @Success		201	{object}	EnqueueResponse
// @Failure		400	{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/queue [post]
func EnqueueHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	now := time.Now()
	result, err := Line.Enqueue(teacherID, req.StudentName, req.Destination, now)
	if err != nil {
		if errors.Is(err, pass.ErrEmptyName) {
			monitoring.TrackQueueOperation("enqueue", "error")
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Student name must not be empty",
			})
			return
		}
		monitoring.TrackQueueOperation("enqueue", "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to join the line",
			Details: err.Error(),
		})
		return
	}
	monitoring.TrackQueueOperation("enqueue", "ok")

	if result.WentNow {
		ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
			EventType: "insert", Table: "passes", RowID: result.Pass.ID,
		})
		item := toPassItem(*result.Pass, now)
		c.JSON(http.StatusCreated, EnqueueResponse{
			Message: "Line was empty, pass started",
			WentNow: true,
			Pass:    &item,
		})
		return
	}

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "insert", Table: "queue", RowID: result.Entry.ID,
	})
	c.JSON(http.StatusCreated, EnqueueResponse{
		Message:  "Joined the line",
		Position: result.Entry.Position,
	})
}

// PromoteResponse is the started pass plus, on partial failure, a
// distinct warning that the line entry is stale.
type PromoteResponse struct {
	Message string    `json:"message"`
	Pass    PassItem  `json:"pass"`
	Warning string    `json:"warning,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// PromoteHandler starts a pass from the line
// @Summary		Start a pass from the line
// @Description	Creates a pass for the entry (time out = now), removes it and closes the position gap. When the pass committed but the entry removal failed, the response carries an INCONSISTENT_STATE warning instead of a clean error.
// @Tags			queue
// @Produce		json
// @Param			id	path		int	true	"Queue entry ID"
// @Security		BearerAuth
// @Success		200	{object}	PromoteResponse
// @Failure		404	{object}	response.ErrorResponse	"Entry not found (ENTRY_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/queue/{id}/promote [post]
func PromoteHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Invalid queue entry identifier",
		})
		return
	}

	now := time.Now()
	p, err := Line.Promote(teacherID, uint(entryID), now)

	var inconsistent *queue.InconsistentStateError
	switch {
	case err == nil:
		monitoring.TrackQueueOperation("promote", "ok")
	case errors.Is(err, queue.ErrNotFound):
		monitoring.TrackQueueOperation("promote", "not_found")
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "ENTRY_NOT_FOUND",
			Message: "Queue entry not found",
		})
		return
	case errors.Is(err, pass.ErrEmptyName):
		monitoring.TrackQueueOperation("promote", "error")
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Queue entry has an empty student name",
		})
		return
	case errors.As(err, &inconsistent):
		// The pass exists; only the cleanup failed. Surface it apart
		// from clean failures so nobody retries the whole promote.
		monitoring.TrackQueueOperation("promote", "inconsistent")
		ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
			EventType: "inconsistent_state", Table: "queue", RowID: inconsistent.EntryID,
			Detail: inconsistent.Error(),
		})
		c.JSON(http.StatusOK, PromoteResponse{
			Message: "Pass started",
			Pass:    toPassItem(inconsistent.Pass, now),
			Warning: "Pass started but the line entry could not be removed; the line needs a manual fix",
			Code:    "INCONSISTENT_STATE",
		})
		return
	default:
		monitoring.TrackQueueOperation("promote", "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to start pass from the line",
			Details: err.Error(),
		})
		return
	}

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "insert", Table: "passes", RowID: p.ID,
	})
	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "delete", Table: "queue", RowID: uint(entryID),
	})
	c.JSON(http.StatusOK, PromoteResponse{
		Message: "Pass started, line updated",
		Pass:    toPassItem(*p, now),
	})
}

// RemoveFromQueueHandler removes a student without starting a pass
// @Summary		Remove from the line
// @Description	Removes the entry and closes the position gap; removing an already-removed entry is a soft no-op
// @Tags			queue
// @Produce		json
// @Param			id	path		int	true	"Queue entry ID"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/queue/{id} [delete]
func RemoveFromQueueHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Invalid queue entry identifier",
		})
		return
	}

	err = Line.Remove(teacherID, uint(entryID))
	if errors.Is(err, queue.ErrNotFound) {
		monitoring.TrackQueueOperation("remove", "not_found")
		c.JSON(http.StatusOK, response.SuccessResponse{Message: "Entry already removed"})
		return
	}
	if err != nil {
		monitoring.TrackQueueOperation("remove", "error")
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to remove from the line",
			Details: err.Error(),
		})
		return
	}
	monitoring.TrackQueueOperation("remove", "ok")

	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "delete", Table: "queue", RowID: uint(entryID),
	})
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Removed from the line"})
}

// DashboardHandler returns the live snapshot
// @Summary		Dashboard snapshot
// @Description	Returns the teacher's live snapshot of passes and line from the in-memory store
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	DashboardResponse
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/dashboard [get]
func DashboardHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	state, err := Live.Get(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load dashboard state",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toDashboard(state, time.Now()))
}

type DashboardResponse struct {
	Passes []PassItem  `json:"passes"`
	Queue  []QueueItem `json:"queue"`
}

func toDashboard(state live.State, now time.Time) DashboardResponse {
	out := DashboardResponse{
		Passes: make([]PassItem, 0, len(state.Passes)),
		Queue:  make([]QueueItem, 0, len(state.Queue)),
	}
	for _, p := range state.Passes {
		out.Passes = append(out.Passes, toPassItem(p, now))
	}
	for _, entry := range state.Queue {
		out.Queue = append(out.Queue, toQueueItem(entry, now))
	}
	return out
}
