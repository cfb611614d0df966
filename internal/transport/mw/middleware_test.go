package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestBearerAuth(t *testing.T) {
	e := echo.New()
	e.Use(BearerAuth("secret"))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "header", header: "Bearer secret", want: http.StatusNoContent},
		{name: "query", query: "?access_token=secret", want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer other", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic c2VjcmV0", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBearerAuthRejectsEmptyExpected(t *testing.T) {
	e := echo.New()
	e.Use(BearerAuth(""))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
}
