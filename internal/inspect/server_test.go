package inspect

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/protocol/header"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/danmuck/schemawire/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	doc := schema.Document{
		Types: []schema.TypeDecl{
			{Name: "Vec3", Kind: schema.TypeBlock, Fields: []schema.FieldDesc{
				schema.Field("x", "float"), schema.Field("y", "float"), schema.Field("z", "float"),
			}},
		},
		Schemas: []schema.Description{
			{Name: "Telemetry", ID: 7, View: true, Fields: []schema.FieldDesc{
				schema.Field("TestValue", "uint"),
				schema.Field("TestVlaue2", "float"),
				schema.Field("Speed", "float").AsNullable(),
			}},
			{Name: "Spawn", ID: 8, Fields: []schema.FieldDesc{
				schema.Field("Kind", "byte"),
				schema.Field("Pos", "Vec3"),
			}},
			{Name: "Odd", ID: 9, View: true, Fields: []schema.FieldDesc{
				schema.Field("Pos", "Vec3"),
			}},
		},
	}
	cat, err := schema.Compile(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if opts.Codec == (codec.Config{}) {
		opts.Codec = codec.DefaultConfig()
	}
	s := New(cat, opts)
	s.RegisterRoutes()
	return s
}

func serve(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestHealthAndSchemaList(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})

	rr := serve(s, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != "ok" || body["schemas"] != float64(3) {
		t.Fatalf("health body: %#v", body)
	}

	rr = serve(s, http.MethodGet, "/schemas", nil)
	var list struct {
		Schemas []SchemaInfo `json:"schemas"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Schemas) != 3 || list.Schemas[1].Name != "Spawn" || list.Schemas[1].Size != 13 {
		t.Fatalf("schema list: %+v", list.Schemas)
	}

	rr = serve(s, http.MethodGet, "/schemas/Spawn", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("schema detail: %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["outline"] == "" {
		t.Fatalf("missing outline: %#v", body)
	}

	if rr := serve(s, http.MethodGet, "/schemas/Nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown schema: %d", rr.Code)
	}
}

func TestHeaderRoute(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})

	rr := serve(s, http.MethodGet, "/schemas/Telemetry/header", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("raw header: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	raw := rr.Body.Bytes()
	if !bytes.HasPrefix(raw, []byte("Telemetry\x00")) {
		t.Fatalf("header bytes: %q", raw)
	}

	rr = serve(s, http.MethodGet, "/schemas/Telemetry/header?format=json", nil)
	body := decodeBody(t, rr)
	if body["hex"] != hex.EncodeToString(raw) || body["fingerprint"] != header.Sum(raw).String() {
		t.Fatalf("json header: %#v", body)
	}

	if rr := serve(s, http.MethodGet, "/schemas/Spawn/header", nil); rr.Code != http.StatusConflict {
		t.Fatalf("non-view header: %d", rr.Code)
	}
	rr = serve(s, http.MethodGet, "/schemas/Odd/header", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid header: %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["validation"] == nil {
		t.Fatalf("missing validation list: %#v", body)
	}

	emit := newTestServer(t, Options{Header: header.Options{EmitInvalid: true}})
	rr = serve(emit, http.MethodGet, "/schemas/Odd/header?format=json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("emit invalid: %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["validation"] == nil {
		t.Fatalf("emitted header should still carry validation: %#v", body)
	}
}

func TestDecodeRoute(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})
	payload := []byte{0x03, 0, 0, 0x80, 0x3f, 0, 0, 0, 0x40, 0, 0, 0x40, 0x40}

	rr := serve(s, http.MethodPost, "/schemas/Spawn/decode", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("decode: %d %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	values := body["values"].(map[string]any)
	pos := values["Pos"].(map[string]any)
	if values["Kind"] != float64(3) || pos["x"] != float64(1) || pos["z"] != float64(3) {
		t.Fatalf("values: %#v", values)
	}

	rr = serve(s, http.MethodPost, "/schemas/Spawn/decode", payload[:7])
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short decode: %d", rr.Code)
	}
	body = decodeBody(t, rr)
	diags := body["diagnostics"].([]any)
	if body["consumed"] != float64(5) || len(diags) != 1 {
		t.Fatalf("short body: %#v", body)
	}
	if d := diags[0].(map[string]any); d["field"] != "Pos.y" {
		t.Fatalf("diagnostic: %#v", d)
	}
}

func TestNonFiniteFloatsRender(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})
	payload := []byte{0x01, 0, 0, 0xc0, 0x7f, 0, 0, 0x80, 0x7f, 0, 0, 0x80, 0xff}

	rr := serve(s, http.MethodPost, "/schemas/Spawn/decode", payload)
	if rr.Code != http.StatusOK || rr.Body.Len() == 0 {
		t.Fatalf("decode: %d %q", rr.Code, rr.Body.String())
	}
	pos := decodeBody(t, rr)["values"].(map[string]any)["Pos"].(map[string]any)
	if pos["x"] != "NaN" || pos["y"] != "+Inf" || pos["z"] != "-Inf" {
		t.Fatalf("pos: %#v", pos)
	}

	rr = serve(s, http.MethodPost, "/schemas/Telemetry/changes", []byte{0x01, 0, 0, 0x80, 0x7f})
	if rr.Code != http.StatusOK || rr.Body.Len() == 0 {
		t.Fatalf("changes: %d %q", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["changed"].(map[string]any)["TestVlaue2"] != "+Inf" {
		t.Fatalf("changes body: %#v", body)
	}
}

func TestChangesRoute(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})
	stream := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x82}

	rr := serve(s, http.MethodPost, "/schemas/Telemetry/changes", stream)
	if rr.Code != http.StatusOK {
		t.Fatalf("changes: %d %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	changed := body["changed"].(map[string]any)
	if len(changed) != 2 || changed["TestValue"] != float64(1) {
		t.Fatalf("changed: %#v", changed)
	}
	if v, ok := changed["Speed"]; !ok || v != nil {
		t.Fatalf("Speed should be reported null: %#v", changed)
	}

	if rr := serve(s, http.MethodPost, "/schemas/Spawn/changes", stream); rr.Code != http.StatusConflict {
		t.Fatalf("non-view changes: %d", rr.Code)
	}
	if rr := serve(s, http.MethodPost, "/schemas/Telemetry/changes", []byte{0x09}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad id: %d", rr.Code)
	}
}

func TestFramedChanges(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, Options{})
	stream := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x40}

	var buf bytes.Buffer
	f := frame.Frame{Header: frame.Header{SchemaID: 7, Flags: frame.FlagChanges}, Payload: stream}
	if err := frame.WriteFrame(&buf, f, frame.DefaultOptions()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	rr := serve(s, http.MethodPost, "/schemas/Telemetry/changes?framed=1", buf.Bytes())
	if rr.Code != http.StatusOK {
		t.Fatalf("framed changes: %d %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["consumed"] != float64(10) {
		t.Fatalf("framed body: %#v", body)
	}

	if rr := serve(s, http.MethodPost, "/schemas/Telemetry/decode?framed=1", buf.Bytes()); rr.Code != http.StatusBadRequest {
		t.Fatalf("changes frame on decode route: %d", rr.Code)
	}

	buf.Reset()
	f.Header.SchemaID = 8
	if err := frame.WriteFrame(&buf, f, frame.DefaultOptions()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if rr := serve(s, http.MethodPost, "/schemas/Telemetry/changes?framed=1", buf.Bytes()); rr.Code != http.StatusBadRequest {
		t.Fatalf("schema id mismatch: %d", rr.Code)
	}

	buf.Reset()
	f.Header.SchemaID = 7
	ext, err := frame.AppendExt(nil, frame.BytesExt(frame.ExtFingerprint, make([]byte, 32)))
	if err != nil {
		t.Fatalf("ext: %v", err)
	}
	f.Ext = ext
	if err := frame.WriteFrame(&buf, f, frame.DefaultOptions()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if rr := serve(s, http.MethodPost, "/schemas/Telemetry/changes?framed=1", buf.Bytes()); rr.Code != http.StatusConflict {
		t.Fatalf("fingerprint mismatch: %d %s", rr.Code, rr.Body.String())
	}
}
