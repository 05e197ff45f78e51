package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/schemawire/internal/config"
	"github.com/danmuck/schemawire/internal/inspect"
	"github.com/danmuck/schemawire/internal/observability"
	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/protocol/header"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/danmuck/schemawire/internal/protocol/view"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// common holds the flags every command accepts.
type common struct {
	configPath string
	cfg        config.Config
}

func newFlags(name string, e *env) (*pflag.FlagSet, *common) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	c := &common{}
	fs.StringVarP(&c.configPath, "config", "c", "", "schemactl TOML config")
	return fs, c
}

// parse parses args and loads the config. It returns the positional
// arguments left over.
func (c *common) parse(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	c.cfg = config.Default()
	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		c.cfg = cfg
	}
	return fs.Args(), nil
}

func (c *common) documentPath(rest []string) (string, error) {
	switch {
	case len(rest) > 1:
		return "", fmt.Errorf("unexpected argument: %s", rest[1])
	case len(rest) == 1:
		return rest[0], nil
	case c.cfg.Schemas != "":
		return c.cfg.Schemas, nil
	}
	return "", fmt.Errorf("no schema document given and config has no schemas path")
}

func (c *common) catalog(rest []string) (*schema.Catalog, error) {
	path, err := c.documentPath(rest)
	if err != nil {
		return nil, err
	}
	doc, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return schema.Compile(doc, schema.WithLogger(log.Logger))
}

func (c *common) engine() *codec.Engine {
	return codec.New(c.cfg.Codec.Engine(), codec.WithLogger(log.Logger), codec.WithMetrics(observability.Recorder{}))
}

func lookup(cat *schema.Catalog, name string) (*schema.Tree, error) {
	t, ok := cat.ByName(name)
	if !ok {
		return nil, fmt.Errorf("schema %q not found (have %v)", name, cat.Names())
	}
	return t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(e *env, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(e.stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(e *env, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := e.stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runValidate(e *env, args []string) error {
	fs, c := newFlags("validate", e)
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	cat, err := c.catalog(rest)
	if list, ok := schema.AsValidations(err); ok {
		for _, v := range list {
			fmt.Fprintln(e.stdout, v.Error())
		}
		return fmt.Errorf("%d validation errors", len(list))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "ok: %d schemas\n", cat.Len())
	return nil
}

func runTree(e *env, args []string) error {
	fs, c := newFlags("tree", e)
	name := fs.StringP("schema", "s", "", "schema name (default: every schema)")
	asJSON := fs.Bool("json", false, "print the tree as JSON")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	cat, err := c.catalog(rest)
	if err != nil {
		return err
	}
	trees := cat.Trees()
	if *name != "" {
		t, err := lookup(cat, *name)
		if err != nil {
			return err
		}
		trees = []*schema.Tree{t}
	}
	if *asJSON {
		out := make([]schema.NodeInfo, 0, len(trees))
		for _, t := range trees {
			out = append(out, t.Info(t.Root()))
		}
		return writeJSON(e.stdout, out)
	}
	for _, t := range trees {
		if err := t.Dump(e.stdout); err != nil {
			return err
		}
	}
	return nil
}

func runHeader(e *env, args []string) error {
	fs, c := newFlags("header", e)
	name := fs.StringP("schema", "s", "", "view schema name")
	format := fs.String("format", "hex", "output format: raw|hex|json")
	emitInvalid := fs.Bool("emit-invalid", false, "emit unsupported fields with code 255")
	output := fs.StringP("output", "o", "", "output file (default stdout)")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--schema is required")
	}
	cat, err := c.catalog(rest)
	if err != nil {
		return err
	}
	t, err := lookup(cat, *name)
	if err != nil {
		return err
	}
	opts := c.cfg.Header.Options()
	if fs.Changed("emit-invalid") {
		opts.EmitInvalid = *emitInvalid
	}
	raw, err := header.Build(t, opts)
	if raw == nil {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Str("schema", t.Name()).Msg("header emitted with invalid fields")
	}
	switch *format {
	case "raw":
		return writeOutput(e, *output, raw)
	case "hex":
		return writeOutput(e, *output, []byte(hex.EncodeToString(raw)+"\n"))
	case "json":
		summary, err := header.Parse(raw)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := writeJSON(&buf, map[string]any{
			"hex":         hex.EncodeToString(raw),
			"fingerprint": header.Sum(raw).String(),
			"summary":     summary,
		}); err != nil {
			return err
		}
		return writeOutput(e, *output, buf.Bytes())
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

type decodeResult struct {
	Schema      string             `json:"schema"`
	Changes     bool               `json:"changes"`
	Consumed    int                `json:"consumed"`
	Length      int                `json:"length"`
	Values      map[string]any     `json:"values"`
	Diagnostics []codec.Diagnostic `json:"diagnostics"`
	Error       string             `json:"error,omitempty"`
}

func runDecode(e *env, args []string) error {
	fs, c := newFlags("decode", e)
	name := fs.StringP("schema", "s", "", "schema name (framed input may omit it)")
	input := fs.StringP("input", "i", "-", "payload file (default stdin)")
	framed := fs.Bool("framed", false, "input is a frame envelope")
	changes := fs.Bool("changes", false, "payload is a view change stream")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	cat, err := c.catalog(rest)
	if err != nil {
		return err
	}
	payload, err := readInput(e, *input)
	if err != nil {
		return err
	}

	var t *schema.Tree
	if *framed {
		opts, err := c.cfg.Frame.Options()
		if err != nil {
			return err
		}
		f, err := frame.ReadFrame(bytes.NewReader(payload), opts.Limits)
		if err != nil {
			return err
		}
		payload = f.Payload
		*changes = f.Header.IsChanges()
		if *name == "" {
			if t, err = frameTree(cat, f); err != nil {
				return err
			}
		}
	}
	if t == nil {
		if *name == "" {
			return fmt.Errorf("--schema is required")
		}
		if t, err = lookup(cat, *name); err != nil {
			return err
		}
	}

	res := decodeResult{Schema: t.Name(), Changes: *changes, Length: len(payload)}
	var derr error
	if *changes {
		v, err := view.New(c.engine(), t, view.WithMetrics(observability.Recorder{}))
		if err != nil {
			return err
		}
		res.Consumed, derr = v.DecodeChanges(payload)
		res.Values, res.Diagnostics = v.Values().Map(), v.Diagnostics()
	} else {
		msg := c.engine().NewMessage(t)
		res.Consumed, derr = msg.Decode(payload)
		res.Values, res.Diagnostics = msg.Values().Map(), msg.Diagnostics()
	}
	if derr != nil {
		res.Error = derr.Error()
	}
	if err := writeJSON(e.stdout, res); err != nil {
		return err
	}
	return derr
}

func runFrame(e *env, args []string) error {
	fs, c := newFlags("frame", e)
	name := fs.StringP("schema", "s", "", "schema name")
	input := fs.StringP("input", "i", "-", "payload file (default stdin)")
	output := fs.StringP("output", "o", "-", "frame file (default stdout)")
	changes := fs.Bool("changes", false, "payload is a view change stream")
	messageID := fs.Uint64("message-id", 0, "message id")
	compression := fs.String("compression", "", "none|lz4|zstd (default from config)")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--schema is required")
	}
	cat, err := c.catalog(rest)
	if err != nil {
		return err
	}
	t, err := lookup(cat, *name)
	if err != nil {
		return err
	}
	opts, err := c.cfg.Frame.Options()
	if err != nil {
		return err
	}
	if fs.Changed("compression") {
		if opts.Compression, err = frame.ParseCompression(*compression); err != nil {
			return err
		}
	}
	payload, err := readInput(e, *input)
	if err != nil {
		return err
	}
	h := frame.Header{MessageID: *messageID, SchemaID: t.ID()}
	if *changes {
		h.Flags |= frame.FlagChanges
	}
	ext, err := frameExt(t, c.cfg.Header.Options())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, frame.Frame{Header: h, Ext: ext, Payload: payload}, opts); err != nil {
		return err
	}
	return writeOutput(e, *output, buf.Bytes())
}

// frameExt names the schema in the frame extension, so a schema without a
// numeric id can still be resolved, and pins view frames to the header
// fingerprint.
func frameExt(t *schema.Tree, opts header.Options) ([]byte, error) {
	recs := []frame.ExtRecord{frame.StringExt(frame.ExtSchemaName, t.Name())}
	if t.IsView() {
		if raw, err := header.Build(t, opts); err == nil && raw != nil {
			sum := header.Sum(raw)
			recs = append(recs, frame.BytesExt(frame.ExtFingerprint, sum[:]))
		}
	}
	return frame.AppendExt(nil, recs...)
}

// frameTree resolves the schema a frame was written for: by numeric id,
// then by the schema name extension record.
func frameTree(cat *schema.Catalog, f frame.Frame) (*schema.Tree, error) {
	if f.Header.SchemaID != 0 {
		if t, ok := cat.ByID(f.Header.SchemaID); ok {
			return t, nil
		}
	}
	recs, err := f.Records()
	if err != nil {
		return nil, err
	}
	if rec, ok := frame.FindExt(recs, frame.ExtSchemaName); ok {
		name, err := rec.Text()
		if err != nil {
			return nil, err
		}
		return lookup(cat, name)
	}
	return nil, fmt.Errorf("frame schema id %d is not in the catalog", f.Header.SchemaID)
}

func runSnapshot(e *env, args []string) error {
	fs, c := newFlags("snapshot", e)
	output := fs.StringP("output", "o", "", "CBOR output file")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("--output is required")
	}
	path, err := c.documentPath(rest)
	if err != nil {
		return err
	}
	doc, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := schema.Compile(doc); err != nil {
		return err
	}
	data, err := schema.EncodeCBOR(doc)
	if err != nil {
		return err
	}
	return writeOutput(e, *output, data)
}

func runServe(e *env, args []string) error {
	fs, c := newFlags("serve", e)
	addr := fs.String("addr", "", "listen address (default from config)")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	cat, err := c.catalog(rest)
	if err != nil {
		return err
	}
	frameOpts, err := c.cfg.Frame.Options()
	if err != nil {
		return err
	}
	opts := inspect.Options{
		Addr:        c.cfg.Inspect.Addr,
		CorsOrigins: c.cfg.Inspect.CorsOrigins,
		Codec:       c.cfg.Codec.Engine(),
		Header:      c.cfg.Header.Options(),
		Limits:      frameOpts.Limits,
	}
	if *addr != "" {
		opts.Addr = *addr
	}
	return inspect.New(cat, opts).Serve()
}
