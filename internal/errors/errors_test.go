package errors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name           string
		err            *AppError
		expectedCat    ErrorCategory
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "not found",
			err:            NewNotFoundError("survey_name", "age"),
			expectedCat:    CategoryNotFound,
			expectedStatus: http.StatusNotFound,
			expectedMsg:    `[NOT_FOUND] no survey_name matches "age"`,
		},
		{
			name:           "malformed",
			err:            NewMalformedError("missing separator", map[string]interface{}{"line": 3}),
			expectedCat:    CategoryMalformed,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "[MALFORMED_INPUT] missing separator",
		},
		{
			name:           "out of range",
			err:            NewOutOfRangeError("exclude", 7, 3),
			expectedCat:    CategoryOutOfRange,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "[OUT_OF_RANGE] exclude index 7 out of range [0, 3)",
		},
		{
			name:           "validation",
			err:            NewValidationError("duplicate feature name", "Age"),
			expectedCat:    CategoryValidation,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "[VALIDATION_ERROR] duplicate feature name",
		},
		{
			name:           "rate limit",
			err:            NewRateLimitError("30s"),
			expectedCat:    CategoryRateLimit,
			expectedStatus: http.StatusTooManyRequests,
			expectedMsg:    "[RATE_LIMIT_EXCEEDED] Rate limit exceeded",
		},
		{
			name:           "configuration",
			err:            NewConfigurationError("bad alpha", nil),
			expectedCat:    CategoryConfiguration,
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "[CONFIGURATION_ERROR] bad alpha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedCat, tt.err.Category)
			assert.Equal(t, tt.expectedStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := NewNotFoundError("feature_name", "Age")
	wrapped := fmt.Errorf("rename: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsMalformed(wrapped))
	assert.False(t, IsOutOfRange(wrapped))
	assert.Equal(t, CategoryNotFound, CategoryOf(wrapped))
	assert.Equal(t, ErrorCategory(""), CategoryOf(fmt.Errorf("plain")))
}

func TestToAppError(t *testing.T) {
	assert.Nil(t, ToAppError(nil))

	nf := NewNotFoundError("run", "abc")
	assert.Same(t, nf, ToAppError(fmt.Errorf("wrapped: %w", nf)))

	assert.Equal(t, CategoryTimeout, ToAppError(context.DeadlineExceeded).Category)
	assert.Equal(t, CategoryTimeout, ToAppError(context.Canceled).Category)
	assert.Equal(t, CategoryInternal, ToAppError(fmt.Errorf("boom")).Category)
}

func TestInternalErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewInternalError("save failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("run", "42"))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("unexpected"))
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/missing", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"category":"not_found"`)

	w = httptest.NewRecorder()
	req, err = http.NewRequest(http.MethodGet, "/boom", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryHandler())
	r.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/panic", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "kaboom")
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	err := WrapError(fmt.Errorf("inner"), "open %s", "features.csv")
	assert.EqualError(t, err, "open features.csv: inner")
}

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return fmt.Errorf("disk gone")
}

func TestSafeClose(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	closer := &failingCloser{}
	SafeClose(closer, "run database")
	assert.True(t, closer.closed)
	assert.Contains(t, buf.String(), "resource=\"run database\"")
	assert.Contains(t, buf.String(), "disk gone")

	assert.NotPanics(t, func() { SafeClose(nil, "nothing") })
}
