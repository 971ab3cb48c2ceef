package utils

import (
	"github.com/gofiber/fiber/v2"

	"ledgemail/config"
)

// IsProduction reports whether the process runs with a production
// environment setting. Error detail is withheld from responses when true.
func IsProduction() bool {
	return config.AppConfig.Environment == "production"
}

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"message": message,
	}
	if err != nil && !IsProduction() {
		response["error"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ValidTenantID reports whether a request-supplied tenant id is usable.
// The frontend sends the literal string "undefined" when its user context
// has not loaded, so that value counts as missing.
func ValidTenantID(id string) bool {
	return id != "" && id != "undefined"
}
