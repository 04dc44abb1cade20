package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveCORS(cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(CORS(cfg))
	e.GET("/api/capital", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.OPTIONS("/api/capital", func(c echo.Context) error { return c.NoContent(http.StatusMethodNotAllowed) })

	req := httptest.NewRequest(method, "/api/capital", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	if preflight {
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORS(t *testing.T) {
	listed := CORSConfig{
		AllowOrigins: []string{"https://desk.example.com"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       10 * time.Minute,
	}

	t.Run("allowed origin is echoed", func(t *testing.T) {
		rec := serveCORS(listed, http.MethodGet, "https://DESK.example.com", false)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://DESK.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
		assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	})

	t.Run("unknown origin passes untagged", func(t *testing.T) {
		rec := serveCORS(listed, http.MethodGet, "https://evil.example.com", false)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		rec := serveCORS(listed, http.MethodOptions, "https://desk.example.com", true)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
		assert.Equal(t, echo.HeaderContentType, rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
		assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
	})

	t.Run("options without request method is not a preflight", func(t *testing.T) {
		rec := serveCORS(listed, http.MethodOptions, "https://desk.example.com", false)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("wildcard", func(t *testing.T) {
		rec := serveCORS(CORSConfig{AllowOrigins: []string{"*"}}, http.MethodGet, "https://any.example.com", false)
		assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
}
