// Package wasm hosts a conversion engine compiled to WebAssembly.
//
// The guest sees the bridge through two host imports and talks to it with raw pointers into its
// linear memory, the same way a native engine would through C callbacks:
//
//	(import "env" "pull" (func (param $dst i32) (result $n i32)))
//	(import "env" "push" (func (param $src i32) (param $len i32)))
//
// and must export:
//
//	(memory (export "memory") ...)
//	(func (export "alloc") (param $size i32) (result $ptr i32))
//	(func (export "convert") (param $bufSize i32) (param $from i32) (param $to i32) (param $settings i32) (result $err i32))
//
// Parameters are pointers to zero terminated strings, 0 for an absent parameter.
// convert returns 0 on success, or a pointer to a zero terminated error message.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const hostModuleName = "env"

var (
	errNotInitialized = errors.New("wasm engine is not initialized")
	errNoConversion   = errors.New("host function called outside of a conversion")
)

type Engine struct {
	module []byte
	logger *zap.Logger
	pages  uint32

	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

var _ env.Engine = (*Engine)(nil)

type Option func(*Engine) error

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) error { e.logger = l; return nil }
}

// WithMemoryLimitPages caps guest memory, in 64 KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(e *Engine) error {
		if pages == 0 {
			return fmt.Errorf("memory limit must be positive")
		}
		e.pages = pages
		return nil
	}
}

// New prepares an engine for the given guest binary.  Nothing is compiled until Init.
func New(module []byte, opts ...Option) (*Engine, error) {
	e := &Engine{
		module: module,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Init creates the runtime, registers the host imports and compiles the guest.
func (e *Engine) Init() (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := context.Background()
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.pages > 0 {
		cfg = cfg.WithMemoryLimitPages(e.pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.Close(ctx))
		}
	}()

	_, err = r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPull), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("pull").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPush), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("push").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to register host module: %w", err)
	}

	compiled, err := r.CompileModule(ctx, e.module)
	if err != nil {
		return fmt.Errorf("failed to compile guest: %w", err)
	}
	if err := checkExports(compiled); err != nil {
		return err
	}

	e.runtime = r
	e.compiled = compiled
	e.logger.Debug("guest compiled", zap.Int("size", len(e.module)))
	return nil
}

func checkExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		return fmt.Errorf("guest does not export memory")
	}
	funcs := compiled.ExportedFunctions()
	for _, name := range []string{"alloc", "convert"} {
		if _, ok := funcs[name]; !ok {
			return fmt.Errorf("guest does not export %q", name)
		}
	}
	return nil
}

// Exit closes the runtime and every guest instance still running in it.
func (e *Engine) Exit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(context.Background())
	e.runtime = nil
	e.compiled = nil
	return err
}

// Convert runs the guest's convert export in a fresh instance.
func (e *Engine) Convert(ctx context.Context, req env.Request, pull env.PullFunc, push env.PushFunc) (msg string, err error) {
	e.mu.Lock()
	r, compiled := e.runtime, e.compiled
	e.mu.Unlock()
	if r == nil {
		return "", errNotInitialized
	}

	// An anonymous instance per call keeps guest state, e.g. its heap, from leaking between conversions.
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return "", fmt.Errorf("failed to instantiate guest: %w", err)
	}
	defer func() {
		err = multierr.Append(err, mod.Close(ctx))
	}()

	args := []uint64{api.EncodeU32(uint32(req.BufferSize))}
	for _, p := range [][]byte{req.From, req.To, req.Settings} {
		ptr, err := writeParam(ctx, mod, p)
		if err != nil {
			return "", err
		}
		args = append(args, api.EncodeU32(ptr))
	}

	c := &call{pull: pull, push: push, bufSize: uint32(req.BufferSize)}
	res, err := mod.ExportedFunction("convert").Call(withCall(ctx, c), args...)
	if c.err != nil {
		// The guest was trapped by a failing callback.
		return "", c.err
	}
	if err != nil {
		return "", fmt.Errorf("guest convert failed: %w", err)
	}

	msg, err = readCString(mod.Memory(), api.DecodeU32(res[0]))
	if err != nil {
		return "", err
	}
	e.logger.Debug("guest returned", zap.Uint32("errPtr", api.DecodeU32(res[0])), zap.String("message", msg))
	return msg, nil
}

// writeParam copies an encoded parameter into guest memory.  Absent parameters are passed as 0.
func writeParam(ctx context.Context, mod api.Module, p []byte) (uint32, error) {
	if len(p) == 0 {
		return 0, nil
	}

	res, err := mod.ExportedFunction("alloc").Call(ctx, api.EncodeU32(uint32(len(p))))
	if err != nil {
		return 0, fmt.Errorf("guest alloc failed: %w", err)
	}
	ptr := api.DecodeU32(res[0])
	if !mod.Memory().Write(ptr, p) {
		return 0, fmt.Errorf("guest alloc returned out of range memory: %d+%d", ptr, len(p))
	}
	return ptr, nil
}

func readCString(mem api.Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}

	var b []byte
	for off := ptr; ; off++ {
		c, ok := mem.ReadByte(off)
		if !ok {
			return "", fmt.Errorf("unterminated guest string at %d", ptr)
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}
