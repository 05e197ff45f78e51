package main

import (
	"os"

	"github.com/danmuck/schemawire/internal/config"
	"github.com/danmuck/schemawire/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultPath = "cmd/schemactl/config.toml"

func main() {
	observability.InitLogger("configgen")
	output := pflag.StringP("output", "o", defaultPath, "output path for the config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.StringP("input", "i", defaultPath, "config path for validation")
	force := pflag.Bool("force", false, "overwrite existing config file")
	print := pflag.Bool("print", false, "print the template to stdout")
	pflag.Parse()

	switch {
	case *print:
		if _, err := os.Stdout.WriteString(config.Template()); err != nil {
			log.Fatal().Err(err).Msg("print template")
		}
	case *validate:
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().
			Str("path", *input).
			Str("schemas", cfg.Schemas).
			Str("addr", cfg.Inspect.Addr).
			Msg("validated schemactl config")
	default:
		if err := config.WriteTemplate(*output, *force); err != nil {
			log.Fatal().Err(err).Msg("write template")
		}
		log.Info().Str("path", *output).Msg("wrote schemactl config template")
	}
}
