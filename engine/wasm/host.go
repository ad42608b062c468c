package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

// call is the state of one guest conversion, reachable from the host functions through the context.
type call struct {
	pull    env.PullFunc
	push    env.PushFunc
	bufSize uint32

	err error
}

type callKey struct{}

func withCall(ctx context.Context, c *call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

func callFrom(ctx context.Context) *call {
	c, ok := ctx.Value(callKey{}).(*call)
	if !ok {
		panic(errNoConversion)
	}
	return c
}

// fail records err and traps the guest; wazero turns the panic into an error from Call.
func (c *call) fail(err error) {
	c.err = err
	panic(err)
}

func hostPull(ctx context.Context, mod api.Module, stack []uint64) {
	c := callFrom(ctx)
	ptr := api.DecodeU32(stack[0])

	// Read returns a view, the pull writes straight into guest memory.
	dst, ok := mod.Memory().Read(ptr, c.bufSize)
	if !ok {
		c.fail(fmt.Errorf("pull buffer out of range: %d+%d", ptr, c.bufSize))
	}

	n, err := c.pull(dst)
	if err != nil {
		c.fail(err)
	}
	stack[0] = api.EncodeI32(int32(n))
}

func hostPush(ctx context.Context, mod api.Module, stack []uint64) {
	c := callFrom(ctx)
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeI32(stack[1])
	if length <= 0 {
		return
	}

	src, ok := mod.Memory().Read(ptr, uint32(length))
	if !ok {
		c.fail(fmt.Errorf("push buffer out of range: %d+%d", ptr, length))
	}
	if err := c.push(src); err != nil {
		c.fail(err)
	}
}
