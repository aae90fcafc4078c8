package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{"empty configured token disables auth", "", "", http.StatusOK},
		{"matching token passes", "s3cret", "Bearer s3cret", http.StatusOK},
		{"missing header rejected", "s3cret", "", http.StatusUnauthorized},
		{"wrong token rejected", "s3cret", "Bearer wrong", http.StatusUnauthorized},
		{"missing Bearer prefix rejected", "s3cret", "s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(bearerAuth(tt.configured))
			e.GET("/test", func(c *echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
