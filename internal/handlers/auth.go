package handlers

import (
	"net/http"

	"github.com/Gamemanuel/BathPass/internal/auth"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/response"
	"github.com/Gamemanuel/BathPass/internal/storage"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary		Register a teacher account
// @Description	Creates a new teacher account
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			teacher	body		RegisterRequest				true	"Teacher data"
// @Success		201		{object}	response.SuccessResponse	"Account created"
// @Failure		400		{object}	response.ErrorResponse		"Validation failed (VALIDATION_ERROR) or email already registered (EMAIL_EXISTS)"
// @Failure		500		{object}	response.ErrorResponse		"Server error (PASSWORD_HASH_ERROR, DB_ERROR)"
// @Router			/auth/register [post]
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	var existing models.Teacher
	if err := storage.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "EMAIL_EXISTS",
			Message: "A teacher with this email already exists",
		})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "PASSWORD_HASH_ERROR",
			Message: "Failed to hash password",
		})
		return
	}

	teacher := models.Teacher{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}

	if err := storage.DB.Create(&teacher).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Failed to create teacher account",
		})
		return
	}

	c.JSON(http.StatusCreated, response.SuccessResponse{
		Message: "Teacher account created",
	})
}

// @Summary		Log in
// @Description	Authenticates a teacher and returns a token pair
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			teacher	body		LoginRequest			true	"Credentials"
// @Success		200		{object}	response.TokenResponse	"Authenticated"
// @Failure		400		{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		401		{object}	response.ErrorResponse	"Wrong credentials (INVALID_CREDENTIALS)"
// @Failure		500		{object}	response.ErrorResponse	"Server error (TOKEN_GENERATION_ERROR)"
// @Router			/auth/login [post]
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	var teacher models.Teacher
	if err := storage.DB.Where("email = ?", req.Email).First(&teacher).Error; err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "Wrong email or password",
		})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "Wrong email or password",
		})
		return
	}

	accessToken, err := auth.GenerateToken(teacher.ID, auth.AccessTokenTTL, auth.AccessSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate access token",
		})
		return
	}

	refreshToken, err := auth.GenerateToken(teacher.ID, auth.RefreshTokenTTL, auth.RefreshSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate refresh token",
		})
		return
	}

	c.JSON(http.StatusOK, response.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary		Refresh the access token
// @Description	Exchanges a refresh token for a new token pair
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			refresh_token	body		RefreshTokenRequest		true	"Refresh token"
// @Success		200				{object}	response.TokenResponse	"New token pair"
// @Failure		400				{object}	response.ErrorResponse	"Validation failed (VALIDATION_ERROR)"
// @Failure		401				{object}	response.ErrorResponse	"Invalid refresh token (INVALID_REFRESH_TOKEN) or unknown teacher (TEACHER_NOT_FOUND)"
// @Failure		500				{object}	response.ErrorResponse	"Server error (TOKEN_GENERATION_ERROR)"
// @Router			/auth/refresh [post]
func RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: err.Error(),
		})
		return
	}

	teacherID, ok := auth.ParseTeacherID(req.RefreshToken, auth.RefreshSecret)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_REFRESH_TOKEN",
			Message: "Invalid or expired refresh token",
		})
		return
	}

	var teacher models.Teacher
	if err := storage.DB.First(&teacher, teacherID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "TEACHER_NOT_FOUND",
			Message: "Teacher not found",
		})
		return
	}

	newAccessToken, err := auth.GenerateToken(teacher.ID, auth.AccessTokenTTL, auth.AccessSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate access token",
		})
		return
	}

	newRefreshToken, err := auth.GenerateToken(teacher.ID, auth.RefreshTokenTTL, auth.RefreshSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate refresh token",
		})
		return
	}

	c.JSON(http.StatusOK, response.TokenResponse{
		AccessToken:  newAccessToken,
		RefreshToken: newRefreshToken,
	})
}
