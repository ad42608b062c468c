package wasm

// IdentityMaxBufferSize is the largest Request.BufferSize IdentityModule can stage.
const IdentityMaxBufferSize = 32 << 10

// IdentityModule is a guest that copies its input to its output.
// It stages every chunk at address 0x8000, so it supports buffer sizes up to 32 KiB.
//
//	(module
//	  (import "env" "pull" (func $pull (param i32) (result i32)))
//	  (import "env" "push" (func $push (param i32 i32)))
//	  (memory (export "memory") 1)
//	  (global $heap (mut i32) (i32.const 1024))
//	  (func (export "alloc") (param $size i32) (result i32) (local $ptr i32)
//	    global.get $heap
//	    local.set $ptr
//	    global.get $heap
//	    local.get $size
//	    i32.add
//	    global.set $heap
//	    local.get $ptr)
//	  (func (export "convert") (param i32 i32 i32 i32) (result i32) (local $n i32)
//	    block
//	      loop
//	        (local.tee $n (call $pull (i32.const 0x8000)))
//	        i32.eqz
//	        br_if 1
//	        (call $push (i32.const 0x8000) (local.get $n))
//	        br 0
//	      end
//	    end
//	    i32.const 0))
var IdentityModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	// type section: (i32)->i32, (i32 i32)->(), (i32 i32 i32 i32)->i32
	0x01, 0x13, 0x03,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x02, 0x7f, 0x7f, 0x00,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,

	// import section: env.pull, env.push
	0x02, 0x17, 0x02,
	0x03, 'e', 'n', 'v', 0x04, 'p', 'u', 'l', 'l', 0x00, 0x00,
	0x03, 'e', 'n', 'v', 0x04, 'p', 'u', 's', 'h', 0x00, 0x01,

	// function section: alloc, convert
	0x03, 0x03, 0x02, 0x00, 0x02,

	// memory section: 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// global section: heap pointer
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,

	// export section: memory, alloc, convert
	0x07, 0x1c, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x05, 'a', 'l', 'l', 'o', 'c', 0x00, 0x02,
	0x07, 'c', 'o', 'n', 'v', 'e', 'r', 't', 0x00, 0x03,

	// code section
	0x0a, 0x35, 0x02,
	// alloc
	0x11, 0x01, 0x01, 0x7f,
	0x23, 0x00, 0x21, 0x01,
	0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00,
	0x20, 0x01, 0x0b,
	// convert
	0x21, 0x01, 0x01, 0x7f,
	0x02, 0x40,
	0x03, 0x40,
	0x41, 0x80, 0x80, 0x02, 0x10, 0x00, 0x22, 0x04,
	0x45, 0x0d, 0x01,
	0x41, 0x80, 0x80, 0x02, 0x20, 0x04, 0x10, 0x01,
	0x0c, 0x00,
	0x0b,
	0x0b,
	0x41, 0x00, 0x0b,
}

// FailingModule is a guest that rejects every conversion with "unknown reader format"
// without reading its input.
//
//	(module
//	  (memory (export "memory") 1)
//	  (func (export "alloc") (param i32) (result i32) i32.const 1024)
//	  (func (export "convert") (param i32 i32 i32 i32) (result i32) i32.const 16)
//	  (data (i32.const 16) "unknown reader format\00"))
var FailingModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	// type section: (i32)->i32, (i32 i32 i32 i32)->i32
	0x01, 0x0e, 0x02,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,

	// function section: alloc, convert
	0x03, 0x03, 0x02, 0x00, 0x01,

	// memory section: 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: memory, alloc, convert
	0x07, 0x1c, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x05, 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	0x07, 'c', 'o', 'n', 'v', 'e', 'r', 't', 0x00, 0x01,

	// code section
	0x0a, 0x0c, 0x02,
	0x05, 0x00, 0x41, 0x80, 0x08, 0x0b,
	0x04, 0x00, 0x41, 0x10, 0x0b,

	// data section: message at 16
	0x0b, 0x1c, 0x01,
	0x00, 0x41, 0x10, 0x0b, 0x16,
	'u', 'n', 'k', 'n', 'o', 'w', 'n', ' ',
	'r', 'e', 'a', 'd', 'e', 'r', ' ',
	'f', 'o', 'r', 'm', 'a', 't', 0x00,
}
