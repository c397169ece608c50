package response

// SuccessResponse represents a successful API response
type SuccessResponse struct {
	Message string `json:"message" example:"Operation completed successfully"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	// Machine-readable error code
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Human-readable error message
	// example: Request validation failed
	Message string `json:"message"`

	// Optional extra detail about the error
	// example: field email must be a valid email address
	Details string `json:"details,omitempty"`
}

// TokenResponse represents an auth token pair
type TokenResponse struct {
	// JWT token used to access protected endpoints
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"access_token"`

	// JWT token used to refresh the access token
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refresh_token"`
}
