package main

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/SaveTheRbtz/pandoc-bridge-go/engine/htmlmd"
	"github.com/SaveTheRbtz/pandoc-bridge-go/engine/identity"
	"github.com/SaveTheRbtz/pandoc-bridge-go/engine/wasm"
	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

// openEngine builds the engine named on the command line, e.g. "html" or "wasm:/path/to/guest.wasm".
// capacity is the number of characters per pull the engine will be driven with.
func openEngine(name string, capacity int, logger *zap.Logger) (env.Engine, error) {
	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case "identity":
		return identity.New(), nil
	case "html":
		return htmlmd.New(htmlmd.WithLogger(logger)), nil
	case "wasm":
		module := wasm.IdentityModule
		if arg == "" && capacity*utf8.UTFMax > wasm.IdentityMaxBufferSize {
			return nil, fmt.Errorf("built-in wasm guest supports a capacity of at most %d characters: %d",
				wasm.IdentityMaxBufferSize/utf8.UTFMax, capacity)
		}
		if arg != "" {
			b, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to read guest: %w", err)
			}
			module = b
		}
		e, err := wasm.New(module, wasm.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown engine: %q", name)
}
