// Command schemagen writes the protocol JSON schemas to disk.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
)

func main() {
	out := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	docs, err := protocol.Schemas()
	if err != nil {
		logger.Fatal().Err(err).Msg("reflect schemas")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("mkdir")
	}
	for _, name := range protocol.SchemaNames() {
		path := filepath.Join(*out, name)
		if err := os.WriteFile(path, docs[name], 0o644); err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("write schema")
		}
		logger.Info().Str("path", path).Msg("wrote schema")
	}
}
