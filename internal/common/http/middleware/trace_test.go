package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	commonmw "simoj/internal/common/http/middleware"
	"simoj/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceResponse struct {
	TraceID      string `json:"trace_id"`
	RequestID    string `json:"request_id"`
	UserID       string `json:"user_id"`
	CtxTraceID   string `json:"ctx_trace_id"`
	CtxRequestID string `json:"ctx_request_id"`
	CtxUserID    string `json:"ctx_user_id"`
}

func newTraceRouter(cfg commonmw.TraceContextConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddlewareWithConfig(cfg), commonmw.AccessLog())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, traceResponse{
			TraceID:      c.GetString("trace_id"),
			RequestID:    c.GetString("request_id"),
			UserID:       c.GetString("user_id"),
			CtxTraceID:   toString(ctx.Value(contextkey.TraceID)),
			CtxRequestID: toString(ctx.Value(contextkey.RequestID)),
			CtxUserID:    toString(ctx.Value(contextkey.UserID)),
		})
	})
	return router
}

func TestTraceContextMiddleware(t *testing.T) {
	cases := []struct {
		name          string
		cfg           commonmw.TraceContextConfig
		headers       map[string]string
		wantTraceID   string
		wantRequestID string
		wantUserID    string
	}{
		{
			name: "generate trace and request id",
			cfg:  commonmw.TraceContextConfig{AllowOperatorHeader: true},
		},
		{
			name: "preserve caller ids",
			cfg:  commonmw.TraceContextConfig{AllowOperatorHeader: true},
			headers: map[string]string{
				"X-Trace-Id":    "trace-123",
				"X-Request-Id":  "req-123",
				"X-Operator-Id": "42",
			},
			wantTraceID:   "trace-123",
			wantRequestID: "req-123",
			wantUserID:    "42",
		},
		{
			name:    "operator header ignored when disabled",
			cfg:     commonmw.TraceContextConfig{},
			headers: map[string]string{"X-Operator-Id": "42"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTraceRouter(tc.cfg)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

			assert.NotEmpty(t, resp.TraceID)
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, resp.TraceID, resp.CtxTraceID)
			assert.Equal(t, resp.RequestID, resp.CtxRequestID)
			assert.Equal(t, resp.TraceID, rec.Header().Get("X-Trace-Id"))
			assert.Equal(t, resp.RequestID, rec.Header().Get("X-Request-Id"))
			if tc.wantTraceID != "" {
				assert.Equal(t, tc.wantTraceID, resp.TraceID)
			}
			if tc.wantRequestID != "" {
				assert.Equal(t, tc.wantRequestID, resp.RequestID)
			}
			assert.Equal(t, tc.wantUserID, resp.UserID)
			assert.Equal(t, tc.wantUserID, resp.CtxUserID)
		})
	}
}

func toString(value interface{}) string {
	s, _ := value.(string)
	return s
}
