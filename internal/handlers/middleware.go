package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/ratelimit"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// RequestLogger logs every request and records its metrics. Server errors
// additionally log the attached errors and the response body.
func RequestLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &responseBodyWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		m.ObserveRequest(c.Request.Method, route, status, duration)
		log.LogRequest(c.Request.Method, route, status, duration, c.GetInt("user_id"))

		if status >= http.StatusInternalServerError {
			log.Error().
				Str("path", c.Request.URL.Path).
				Str("ip", c.ClientIP()).
				Str("errors", c.Errors.ByType(gin.ErrorTypeAny).String()).
				Str("response", strings.TrimSpace(blw.body.String())).
				Msg("server error")
		}
	}
}

func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("ip", c.ClientIP()).
			Interface("error", recovered).
			Bytes("stack", debug.Stack()).
			Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error: __("internal server error"),
			Code:  apperrors.CodeInternal,
		})
	})
}

func CORS(origins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origins)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NoSniff stops browsers from guessing a content type other than the one
// served.
func NoSniff() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

// RateLimit counts each request against rule. scope derives the counter
// scope from the request; the caller is identified by user id once
// authenticated and by client IP before that.
func RateLimit(guard *ratelimit.Guard, rule ratelimit.Rule, scope func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := guard.Check(c.Request.Context(), rule, scope(c), identity(c))

		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", decision.Reset.Unix()))
		}

		if err != nil {
			respondError(c, err)
			return
		}

		c.Next()
	}
}

// RuleScope uses the rule name as the scope.
func RuleScope(rule ratelimit.Rule) func(*gin.Context) string {
	return func(*gin.Context) string { return rule.Name }
}

// ConversationScope keys counters by the :id path parameter so each
// conversation has its own budget.
func ConversationScope(rule ratelimit.Rule) func(*gin.Context) string {
	return func(c *gin.Context) string { return rule.Name + ":" + c.Param("id") }
}

func identity(c *gin.Context) string {
	if id := c.GetInt("user_id"); id != 0 {
		return fmt.Sprintf("user:%d", id)
	}
	return "ip:" + c.ClientIP()
}
