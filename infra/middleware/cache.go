// Package middleware provides HTTP middleware for caching and optimization.
package middleware

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagConfig holds ETag middleware configuration.
type ETagConfig struct {
	// SkipPaths are excluded from ETag processing, e.g. large candidate-body
	// payloads a client caches on its own.
	SkipPaths []string
}

// DefaultETagConfig returns default ETag configuration.
func DefaultETagConfig() *ETagConfig {
	return &ETagConfig{
		SkipPaths: []string{"/body"},
	}
}

// ETag generates and validates ETag for responses.
func ETag() fiber.Handler {
	config := DefaultETagConfig()

	return func(c *fiber.Ctx) error {
		// POST, PUT, DELETE 등은 ETag 처리 안 함
		method := c.Method()
		if method != "GET" && method != "HEAD" {
			return c.Next()
		}

		// Skip 경로 체크 - /body 경로는 프론트엔드 캐시 사용
		path := c.Path()
		for _, skip := range config.SkipPaths {
			if strings.Contains(path, skip) {
				return c.Next()
			}
		}

		// 응답 처리
		if err := c.Next(); err != nil {
			return err
		}

		// 응답이 성공이 아니면 ETag 생성 안 함
		if c.Response().StatusCode() >= 400 {
			return nil
		}

		// 응답 본문으로 ETag 생성
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		// MD5 해시로 ETag 생성 (빠름)
		hash := md5.Sum(body)
		etag := fmt.Sprintf(`"%x"`, hash)
		c.Set("ETag", etag)

		// If-None-Match 체크
		clientETag := c.Get("If-None-Match")
		if clientETag == etag {
			c.Status(304)
			c.Response().SetBody(nil)
		}

		return nil
	}
}
