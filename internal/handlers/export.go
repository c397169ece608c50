package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gamemanuel/BathPass/internal/export"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/storage"

	"github.com/gin-gonic/gin"
)

// ExportPassesHandler streams the teacher's passes as CSV
// @Summary		Export passes to CSV
// @Description	Serves the selected passes as an RFC 4180 CSV download. Filter by status or an explicit ids list; open passes get N/A for time in and duration.
// @Tags			passes
// @Produce		text/csv
// @Param			status	query		string	false	"open or closed"
// @Param			ids		query		string	false	"Comma-separated pass IDs"
// @Security		BearerAuth
// @Success		200	{string}	string	"CSV file"
// @Failure		400	{object}	response.ErrorResponse	"Bad ids list (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Server error (DB_ERROR, EXPORT_ERROR)"
// @Router			/api/passes/export [get]
func ExportPassesHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")

	query := storage.DB.Where("teacher_id = ?", teacherID)
	switch c.Query("status") {
	case "open":
		query = query.Where("time_in IS NULL")
	case "closed":
		query = query.Where("time_in IS NOT NULL")
	}

	if idsParam := c.Query("ids"); idsParam != "" {
		var ids []uint
		for _, raw := range strings.Split(idsParam, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				c.JSON(http.StatusBadRequest, response.ErrorResponse{
					Code:    "VALIDATION_ERROR",
					Message: "Invalid ids list",
					Details: err.Error(),
				})
				return
			}
			ids = append(ids, uint(id))
		}
		query = query.Where("id IN ?", ids)
	}

	var passes []models.Pass
	if err := query.Order("time_out ASC").Find(&passes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to load passes for export",
			Details: err.Error(),
		})
		return
	}

	csvText, err := export.Passes(passes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "EXPORT_ERROR",
			Message: "Failed to build CSV",
			Details: err.Error(),
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csvText))
}
