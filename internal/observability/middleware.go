package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// schemaParam is the route parameter naming the schema a request targets.
const schemaParam = "name"

// route is the matched route template, or the raw path for 404s.
func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// RequestLogger writes one line per request. Schema routes also log the
// schema name, whether the body was framed and the request body size.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", route(c)).
			Int("status", status)
		if name := c.Param(schemaParam); name != "" {
			event = event.
				Str("schema", name).
				Bool("framed", c.Query("framed") != "").
				Int64("body_bytes", c.Request.ContentLength)
		}
		event.
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("http_request")
	}
}

// RequestMetricsMiddleware counts requests per route and schema. Unknown
// schema names are folded into "unknown" so a client cannot grow the label
// set.
func RequestMetricsMiddleware(service string, known func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		schema := c.Param(schemaParam)
		if schema != "" && (known == nil || !known(schema)) {
			schema = "unknown"
		}
		RecordHTTPRequest(service, c.Request.Method, route(c), schema, c.Writer.Status(), time.Since(start))
	}
}
