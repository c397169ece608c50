package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TVSettingsItem configures the classroom TV display.
type TVSettingsItem struct {
	Enabled         bool   `json:"enabled"`
	ShowSchedule    bool   `json:"show_schedule"`
	ShowLine        bool   `json:"show_line"`
	RotationSeconds int    `json:"rotation_seconds"`
	Background      string `json:"background"`
}

func defaultTVSettings(teacherID uint) models.TVSettings {
	return models.TVSettings{
		TeacherID:       teacherID,
		Enabled:         true,
		ShowSchedule:    true,
		ShowLine:        true,
		RotationSeconds: 10,
	}
}

func loadTVSettings(teacherID uint) (models.TVSettings, error) {
	var settings models.TVSettings
	err := storage.DB.Where("teacher_id = ?", teacherID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultTVSettings(teacherID), nil
	}
	return settings, err
}

func toTVSettingsItem(s models.TVSettings) TVSettingsItem {
	return TVSettingsItem{
		Enabled:         s.Enabled,
		ShowSchedule:    s.ShowSchedule,
		ShowLine:        s.ShowLine,
		RotationSeconds: s.RotationSeconds,
		Background:      s.Background,
	}
}

// GetTVSettingsHandler returns the TV display settings
// @Summary		Get TV settings
// @Description	Returns the teacher's TV display configuration, defaults if never saved
// @Tags			tv
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	TVSettingsItem
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/tv/settings [get]
func GetTVSettingsHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	settings, err := loadTVSettings(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load TV settings",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, toTVSettingsItem(settings))
}

type PutTVSettingsRequest struct {
	Enabled         *bool  `json:"enabled"`
	ShowSchedule    *bool  `json:"show_schedule"`
	ShowLine        *bool  `json:"show_line"`
	RotationSeconds *int   `json:"rotation_seconds"`
	Background      string `json:"background"`
}

// PutTVSettingsHandler updates the TV display settings
// @Summary		Update TV settings
// @Description	Updates the teacher's TV display configuration; omitted fields keep their value
// @Tags			tv
// @Accept			json
// @Produce		json
// @Param			settings	body		PutTVSettingsRequest	true	"Settings"
// @Security		BearerAuth
// @Success		200	{object}	TVSettingsItem
// @Failure		400	{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/tv/settings [put]
func PutTVSettingsHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var req PutTVSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}
	if req.RotationSeconds != nil && *req.RotationSeconds < 1 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "rotation_seconds must be at least 1",
		})
		return
	}

	settings, err := loadTVSettings(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load TV settings",
			Details: err.Error(),
		})
		return
	}

	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.ShowSchedule != nil {
		settings.ShowSchedule = *req.ShowSchedule
	}
	if req.ShowLine != nil {
		settings.ShowLine = *req.ShowLine
	}
	if req.RotationSeconds != nil {
		settings.RotationSeconds = *req.RotationSeconds
	}
	if req.Background != "" {
		settings.Background = req.Background
	}

	if err := storage.DB.Save(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to save TV settings",
			Details: err.Error(),
		})
		return
	}

	InvalidateDisplayCache(teacherID)
	ws.HubInstance.BroadcastChange(teacherID, ws.ChangeEvent{
		EventType: "update", Table: "tv_settings", RowID: settings.ID,
	})
	c.JSON(http.StatusOK, toTVSettingsItem(settings))
}

// TVDisplayResponse aggregates everything the TV screen renders in
// one request.
type TVDisplayResponse struct {
	Settings      TVSettingsItem `json:"settings"`
	Passes        []PassItem     `json:"passes"`
	Queue         []QueueItem    `json:"queue"`
	CurrentPeriod *PeriodItem    `json:"current_period,omitempty"`
	NextPeriod    *PeriodItem    `json:"next_period,omitempty"`
	Objective     *ObjectiveItem `json:"objective,omitempty"`
}

// TVDisplayHandler returns the TV display snapshot
// @Summary		Get the TV display snapshot
// @Description	Returns open passes, the waiting line, the class in session and its objective. Cached briefly per teacher.
// @Tags			tv
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	TVDisplayResponse
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR)"
// @Router			/api/tv/display [get]
func TVDisplayHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	var cached TVDisplayResponse
	if cachedDisplay(teacherID, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	settings, err := loadTVSettings(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load TV settings",
			Details: err.Error(),
		})
		return
	}

	state, err := Live.Get(teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load live state",
			Details: err.Error(),
		})
		return
	}

	now := time.Now()
	resp := TVDisplayResponse{Settings: toTVSettingsItem(settings)}

	for _, p := range state.Passes {
		if p.Open() {
			resp.Passes = append(resp.Passes, toPassItem(p, now))
		}
	}
	if settings.ShowLine {
		for _, e := range state.Queue {
			resp.Queue = append(resp.Queue, toQueueItem(e, now))
		}
	}

	if settings.ShowSchedule {
		current, next, err := currentPeriods(teacherID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "DB_ERROR",
				Message: "Failed to load schedule",
				Details: err.Error(),
			})
			return
		}
		if current != nil {
			item := toPeriodItem(*current)
			resp.CurrentPeriod = &item
		}
		if next != nil {
			item := toPeriodItem(*next)
			resp.NextPeriod = &item
		}
	}

	if objective, err := currentObjective(teacherID, now); err == nil {
		item := toObjectiveItem(*objective)
		resp.Objective = &item
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load objective",
			Details: err.Error(),
		})
		return
	}

	cacheDisplay(teacherID, resp, Cfg.DisplayCacheTTL)
	c.JSON(http.StatusOK, resp)
}
