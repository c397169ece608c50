package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var scheduleCtx = context.Background()

// PeriodItem is one repeating class slot in the weekly schedule.
type PeriodItem struct {
	ID        uint   `json:"id"`
	ClassName string `json:"class_name"`
	Day       string `json:"day"`
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`
	IsActive  bool   `json:"is_active"`
}

func toPeriodItem(p models.ClassPeriod) PeriodItem {
	return PeriodItem{
		ID:        p.ID,
		ClassName: p.ClassName,
		Day:       p.Day,
		StartTime: minuteClock(p.StartMinute),
		EndTime:   minuteClock(p.EndMinute),
		IsActive:  p.IsActive,
	}
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// GetScheduleHandler lists the weekly schedule
// @Summary		Get the class schedule
// @Description	Returns the teacher's repeating weekly class periods
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		PeriodItem
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/schedule [get]
func GetScheduleHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var periods []models.ClassPeriod
	if err := storage.DB.
		Where("teacher_id = ?", teacherID).
		Order("day ASC, start_minute ASC").
		Find(&periods).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load schedule",
			Details: err.Error(),
		})
		return
	}

	items := make([]PeriodItem, 0, len(periods))
	for _, p := range periods {
		items = append(items, toPeriodItem(p))
	}
	c.JSON(http.StatusOK, items)
}

type CreatePeriodRequest struct {
	ClassName string `json:"class_name" binding:"required"`
	Day       string `json:"day" binding:"required"`
	StartTime string `json:"start_time" binding:"required"` // HH:MM
	EndTime   string `json:"end_time" binding:"required"`
}

// CreatePeriodHandler adds a class period
// @Summary		Add a class period
// @Description	Adds a repeating weekly slot to the schedule
// @Tags			schedule
// @Accept			json
// @Produce		json
// @Param			period	body		CreatePeriodRequest	true	"Period data"
// @Security		BearerAuth
// @Success		201	{object}	PeriodItem
// @Failure		400	{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/schedule [post]
func CreatePeriodHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	start, err := parseClock(req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "start_time must be HH:MM",
		})
		return
	}
	end, err := parseClock(req.EndTime)
	if err != nil || end <= start {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "end_time must be HH:MM and after start_time",
		})
		return
	}

	period := models.ClassPeriod{
		TeacherID:   teacherID,
		ClassName:   req.ClassName,
		Day:         req.Day,
		StartMinute: start,
		EndMinute:   end,
		IsActive:    true,
	}
	if err := storage.DB.Create(&period).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to create class period",
			Details: err.Error(),
		})
		return
	}

	InvalidateDisplayCache(teacherID)
	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "insert", Table: "schedule", RowID: period.ID,
	})
	c.JSON(http.StatusCreated, toPeriodItem(period))
}

// DeletePeriodHandler removes a class period
// @Summary		Delete a class period
// @Description	Removes the slot; deleting an unknown slot is a soft no-op
// @Tags			schedule
// @Produce		json
// @Param			id	path		int	true	"Period ID"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/schedule/{id} [delete]
func DeletePeriodHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_PERIOD_ID",
			Message: "Invalid period identifier",
		})
		return
	}

	var period models.ClassPeriod
	if err := storage.DB.Where("teacher_id = ?", teacherID).First(&period, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, response.SuccessResponse{Message: "Period already removed"})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load class period",
			Details: err.Error(),
		})
		return
	}

	if err := storage.DB.Unscoped().Delete(&period).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to delete class period",
			Details: err.Error(),
		})
		return
	}

	InvalidateDisplayCache(teacherID)
	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "delete", Table: "schedule", RowID: period.ID,
	})
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Period deleted"})
}

// ObjectiveItem is the learning objective shown on the TV display.
type ObjectiveItem struct {
	ID         uint   `json:"id"`
	Text       string `json:"text"`
	OutOfClass bool   `json:"out_of_class"`
	StartDate  string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate    string `json:"end_date,omitempty"`
}

type PutObjectiveRequest struct {
	Text       string `json:"text" binding:"required"`
	OutOfClass bool   `json:"out_of_class"`
	PeriodID   *uint  `json:"period_id"`
	StartDate  string `json:"start_date"` // YYYY-MM-DD, required unless out_of_class
	EndDate    string `json:"end_date"`
}

// PutObjectiveHandler sets the current learning objective
// @Summary		Set the learning objective
// @Description	Creates or replaces the objective for a class period (with a validity window) or the out-of-class objective
// @Tags			schedule
// @Accept			json
// @Produce		json
// @Param			objective	body		PutObjectiveRequest	true	"Objective data"
// @Security		BearerAuth
// @Success		200	{object}	ObjectiveItem
// @Failure		400	{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/objective [put]
func PutObjectiveHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var req PutObjectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	objective := models.Objective{
		TeacherID:     teacherID,
		ClassPeriodID: req.PeriodID,
		Text:          req.Text,
		OutOfClass:    req.OutOfClass,
	}

	if !req.OutOfClass {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "start_date must be YYYY-MM-DD",
			})
			return
		}
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil || end.Before(start) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "end_date must be YYYY-MM-DD and not before start_date",
			})
			return
		}
		objective.StartDate = start
		objective.EndDate = end
	}

	// One objective per slot: replace any previous row for the same
	// period (or the previous out-of-class objective).
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		scope := tx.Where("teacher_id = ? AND out_of_class = ?", teacherID, req.OutOfClass)
		if req.PeriodID != nil {
			scope = scope.Where("class_period_id = ?", *req.PeriodID)
		}
		if err := scope.Unscoped().Delete(&models.Objective{}).Error; err != nil {
			return err
		}
		return tx.Create(&objective).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to save objective",
			Details: err.Error(),
		})
		return
	}

	InvalidateDisplayCache(teacherID)
	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "update", Table: "objective", RowID: objective.ID,
	})
	c.JSON(http.StatusOK, toObjectiveItem(objective))
}

// GetObjectiveHandler returns the objective for the current moment
// @Summary		Get the current objective
// @Description	Returns the objective of the class in session, or the out-of-class objective when no class is active
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	ObjectiveItem
// @Failure		404	{object}	response.ErrorResponse	"No objective configured (OBJECTIVE_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/objective [get]
func GetObjectiveHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	objective, err := currentObjective(teacherID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{
				Code:    "OBJECTIVE_NOT_FOUND",
				Message: "No objective configured for the current moment",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load objective",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toObjectiveItem(*objective))
}

func toObjectiveItem(o models.Objective) ObjectiveItem {
	item := ObjectiveItem{
		ID:         o.ID,
		Text:       o.Text,
		OutOfClass: o.OutOfClass,
	}
	if !o.OutOfClass {
		item.StartDate = o.StartDate.Format("2006-01-02")
		item.EndDate = o.EndDate.Format("2006-01-02")
	}
	return item
}

// currentPeriods returns the slot in session at now and the next
// upcoming slot today, either of which may be nil.
func currentPeriods(teacherID uint, now time.Time) (current, next *models.ClassPeriod, err error) {
	day := now.Weekday().String()
	minute := now.Hour()*60 + now.Minute()

	var periods []models.ClassPeriod
	if err := storage.DB.
		Where("teacher_id = ? AND day = ? AND is_active = true", teacherID, day).
		Order("start_minute ASC").
		Find(&periods).Error; err != nil {
		return nil, nil, err
	}

	for i := range periods {
		slot := &periods[i]
		if minute >= slot.StartMinute && minute < slot.EndMinute {
			current = slot
		}
		if slot.StartMinute > minute && next == nil {
			next = slot
		}
	}
	return current, next, nil
}

func currentObjective(teacherID uint, now time.Time) (*models.Objective, error) {
	current, _, err := currentPeriods(teacherID, now)
	if err != nil {
		return nil, err
	}

	var objective models.Objective
	if current == nil {
		// No class in session: fall back to the out-of-class objective.
		err = storage.DB.
			Where("teacher_id = ? AND out_of_class = true", teacherID).
			First(&objective).Error
	} else {
		today := now.Format("2006-01-02")
		err = storage.DB.
			Where("teacher_id = ? AND class_period_id = ? AND start_date <= ? AND end_date >= ?",
				teacherID, current.ID, today, today).
			First(&objective).Error
	}
	if err != nil {
		return nil, err
	}
	return &objective, nil
}

func displayCacheKey(teacherID uint) string {
	return "tv_display_" + strconv.Itoa(int(teacherID))
}

// InvalidateDisplayCache drops the cached TV display snapshot so the
// next request rebuilds it. Safe to call when Redis is down.
func InvalidateDisplayCache(teacherID uint) {
	if storage.RedisClient == nil {
		return
	}
	storage.RedisClient.Del(scheduleCtx, displayCacheKey(teacherID))
}

func cachedDisplay(teacherID uint, out interface{}) bool {
	if storage.RedisClient == nil {
		return false
	}
	cached, err := storage.RedisClient.Get(scheduleCtx, displayCacheKey(teacherID)).Result()
	if err != nil || cached == "" {
		return false
	}
	return json.Unmarshal([]byte(cached), out) == nil
}

func cacheDisplay(teacherID uint, payload interface{}, ttl time.Duration) {
	if storage.RedisClient == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	storage.RedisClient.Set(scheduleCtx, displayCacheKey(teacherID), string(body), ttl)
}
