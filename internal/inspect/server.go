package inspect

import (
	"time"

	"github.com/danmuck/schemawire/internal/observability"
	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/protocol/header"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const serviceName = "inspect"

type Options struct {
	Addr        string
	CorsOrigins []string
	Codec       codec.Config
	Header      header.Options
	Limits      frame.Limits
}

// Server is the inspection API over one catalog. Handlers build a fresh
// codec.Message per request, so a Server is safe for concurrent use.
type Server struct {
	Addr     string
	Appeared time.Time

	catalog *schema.Catalog
	engine  *codec.Engine
	header  header.Options
	limits  frame.Limits
	router  *gin.Engine
}

func New(catalog *schema.Catalog, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(serviceName, func(name string) bool {
		_, ok := catalog.ByName(name)
		return ok
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	limits := opts.Limits
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Server{
		Addr:     opts.Addr,
		Appeared: time.Now(),
		catalog:  catalog,
		engine:   codec.New(opts.Codec, codec.WithMetrics(observability.Recorder{})),
		header:   opts.Header,
		limits:   limits,
		router:   r,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	s.RegisterRoutes()
	log.Info().
		Str("addr", s.Addr).
		Int("schemas", s.catalog.Len()).
		Msg("inspect listening")
	return s.router.Run(s.Addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
