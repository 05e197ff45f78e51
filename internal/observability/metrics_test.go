package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/view"
	"github.com/danmuck/schemawire/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

var (
	_ codec.Recorder = Recorder{}
	_ view.Recorder  = Recorder{}
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("inspect", "GET", "/health", "", 200, 12*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("inspect", "GET", "/health", "", "200")); got < 1 {
		t.Fatalf("http counter: %v", got)
	}
}

func TestRecorderCounts(t *testing.T) {
	testlog.Start(t)
	var r Recorder
	before := testutil.ToFloat64(codecOps.WithLabelValues("Ping", "unpack", "bounds"))
	r.ObserveCodec("Ping", "unpack", 6, false)
	r.ObserveCodec("Ping", "pack", 42, true)
	r.ObserveChanges("Ping", "null", 2)

	if got := testutil.ToFloat64(codecOps.WithLabelValues("Ping", "unpack", "bounds")); got != before+1 {
		t.Fatalf("bounds counter: got %v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(codecBytes.WithLabelValues("Ping", "pack")); got < 42 {
		t.Fatalf("bytes counter: %v", got)
	}
	if got := testutil.ToFloat64(viewChanges.WithLabelValues("Ping", "null")); got < 2 {
		t.Fatalf("view counter: %v", got)
	}
}

func TestRequestMetricsLabelSchema(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()))
	r.Use(RequestMetricsMiddleware("inspect", func(name string) bool { return name == "Ping" }))
	r.GET("/schemas/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	label := func(schema string) float64 {
		return testutil.ToFloat64(httpRequests.WithLabelValues("inspect", "GET", "/schemas/:name", schema, "200"))
	}
	knownBefore, unknownBefore := label("Ping"), label("unknown")
	for _, path := range []string{"/schemas/Ping", "/schemas/a1", "/schemas/b2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := label("Ping"); got != knownBefore+1 {
		t.Fatalf("known schema: got %v want %v", got, knownBefore+1)
	}
	if got := label("unknown"); got != unknownBefore+2 {
		t.Fatalf("unknown schemas: got %v want %v", got, unknownBefore+2)
	}
}
