package inspect

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/schemawire/internal/observability"
	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/protocol/header"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/danmuck/schemawire/internal/protocol/view"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchemaInfo is one entry of GET /schemas.
type SchemaInfo struct {
	Name   string `json:"name"`
	ID     uint32 `json:"id,omitempty"`
	View   bool   `json:"view"`
	Fixed  bool   `json:"fixed"`
	Size   int    `json:"size,omitempty"`
	Fields int    `json:"fields"`
}

func schemaInfo(t *schema.Tree) SchemaInfo {
	return SchemaInfo{
		Name:   t.Name(),
		ID:     t.ID(),
		View:   t.IsView(),
		Fixed:  t.IsFixedSize(),
		Size:   t.SizeInBytes(),
		Fields: len(t.TopLevel()),
	}
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": serviceName,
			"schemas": s.catalog.Len(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/schemas", func(c *gin.Context) {
		trees := s.catalog.Trees()
		list := make([]SchemaInfo, 0, len(trees))
		for _, t := range trees {
			list = append(list, schemaInfo(t))
		}
		c.JSON(http.StatusOK, gin.H{"schemas": list})
	})

	s.router.GET("/schemas/:name", func(c *gin.Context) {
		t, ok := s.tree(c)
		if !ok {
			return
		}
		var outline bytes.Buffer
		if err := t.Dump(&outline); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"schema":  schemaInfo(t),
			"tree":    t.Info(t.Root()),
			"outline": outline.String(),
		})
	})

	s.router.GET("/schemas/:name/header", func(c *gin.Context) {
		t, ok := s.tree(c)
		if !ok {
			return
		}
		raw, err := header.Build(t, s.header)
		if raw == nil {
			status := http.StatusInternalServerError
			body := gin.H{"error": err.Error()}
			if errors.Is(err, header.ErrNotView) {
				status = http.StatusConflict
			} else if list, ok := schema.AsValidations(err); ok {
				status = http.StatusUnprocessableEntity
				body["validation"] = validationJSON(list)
			}
			c.JSON(status, body)
			return
		}
		if c.Query("format") != "json" {
			c.Data(http.StatusOK, "application/octet-stream", raw)
			return
		}
		summary, perr := header.Parse(raw)
		if perr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": perr.Error()})
			return
		}
		body := gin.H{
			"hex":         hex.EncodeToString(raw),
			"fingerprint": header.Sum(raw).String(),
			"summary":     summary,
		}
		if list, ok := schema.AsValidations(err); ok {
			body["validation"] = validationJSON(list)
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.POST("/schemas/:name/decode", func(c *gin.Context) {
		t, payload, ok := s.payload(c, false)
		if !ok {
			return
		}
		msg := s.engine.NewMessage(t)
		n, err := msg.Decode(payload)
		body := gin.H{
			"schema":      t.Name(),
			"consumed":    n,
			"length":      len(payload),
			"values":      msg.Values().Map(),
			"diagnostics": msg.Diagnostics(),
		}
		if err != nil {
			body["error"] = err.Error()
			c.JSON(http.StatusUnprocessableEntity, body)
			return
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.POST("/schemas/:name/changes", func(c *gin.Context) {
		t, payload, ok := s.payload(c, true)
		if !ok {
			return
		}
		v, err := view.New(s.engine, t, view.WithMetrics(observability.Recorder{}))
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		n, err := v.DecodeChanges(payload)
		body := gin.H{
			"schema":      t.Name(),
			"consumed":    n,
			"length":      len(payload),
			"changed":     v.Values().Map(),
			"diagnostics": v.Diagnostics(),
		}
		if err != nil {
			body["error"] = err.Error()
			c.JSON(http.StatusUnprocessableEntity, body)
			return
		}
		c.JSON(http.StatusOK, body)
	})
}

func (s *Server) tree(c *gin.Context) (*schema.Tree, bool) {
	name := c.Param("name")
	t, ok := s.catalog.ByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "schema not found", "schema": name})
		return nil, false
	}
	return t, true
}

// payload reads the request body. With ?framed=1 the body is a frame whose
// schema id and change flag must match the route.
func (s *Server) payload(c *gin.Context, changes bool) (*schema.Tree, []byte, bool) {
	t, ok := s.tree(c)
	if !ok {
		return nil, nil, false
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(s.limits.MaxPayloadBytes)+int64(frame.FixedHeaderLen)+int64(s.limits.MaxExtBytes)+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if !isTrue(c.Query("framed")) {
		if len(body) > int(s.limits.MaxPayloadBytes) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": frame.ErrPayloadTooLarge.Error()})
			return nil, nil, false
		}
		return t, body, true
	}
	f, err := frame.ReadFrame(bytes.NewReader(body), s.limits)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if f.Header.SchemaID != 0 && t.ID() != 0 && f.Header.SchemaID != t.ID() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("frame schema id %d does not match %s (%d)", f.Header.SchemaID, t.Name(), t.ID()),
		})
		return nil, nil, false
	}
	if f.Header.IsChanges() != changes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame changes flag does not match route"})
		return nil, nil, false
	}
	if err := s.checkFingerprint(t, f); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return t, f.Payload, true
}

// checkFingerprint rejects a view frame pinned to a different header than
// the one this catalog produces. Frames without the record pass.
func (s *Server) checkFingerprint(t *schema.Tree, f frame.Frame) error {
	recs, err := f.Records()
	if err != nil {
		return err
	}
	rec, ok := frame.FindExt(recs, frame.ExtFingerprint)
	if !ok || !t.IsView() {
		return nil
	}
	raw, err := header.Build(t, s.header)
	if err != nil || raw == nil {
		return nil
	}
	sum := header.Sum(raw)
	if !bytes.Equal(rec.Value, sum[:]) {
		return fmt.Errorf("frame header fingerprint %s does not match %s", hex.EncodeToString(rec.Value), sum)
	}
	return nil
}

type validationEntry struct {
	Path   string `json:"path,omitempty"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func validationJSON(list schema.ValidationList) []validationEntry {
	out := make([]validationEntry, 0, len(list))
	for _, e := range list {
		out = append(out, validationEntry{Path: e.Path, Code: string(e.Code), Reason: e.Reason})
	}
	return out
}

func isTrue(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
