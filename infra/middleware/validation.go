package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PreventPathTraversal blocks path traversal attempts
func PreventPathTraversal() fiber.Handler {
	traversalPatterns := []string{
		"..",
		"..%2f",
		"..%5c",
		"%2e%2e",
		"..\\",
	}

	return func(c *fiber.Ctx) error {
		path := strings.ToLower(c.Path())

		for _, pattern := range traversalPatterns {
			if strings.Contains(path, pattern) {
				return c.Status(400).JSON(fiber.Map{
					"error": "invalid path",
					"code":  "PATH_TRAVERSAL_BLOCKED",
				})
			}
		}

		return c.Next()
	}
}
