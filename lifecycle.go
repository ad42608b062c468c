package bridge

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

// engineState tracks how many leases an engine has handed out.
type engineState struct {
	refs   int
	exited bool
}

// registry is process wide, like the engines' own global state.
// Engines are keyed by identity; exited engines stay in it as tombstones.
var registry = struct {
	sync.Mutex
	engines map[env.Engine]*engineState
}{
	engines: make(map[env.Engine]*engineState),
}

// Lease keeps an engine initialized.  The first lease of an engine runs its Init, releasing
// the last one runs its Exit.  An engine that has exited cannot be leased again.
type Lease struct {
	engine env.Engine
	once   *sync.Once
}

// Acquire leases engine, initializing it if no other lease is outstanding.
//
// Sessions hold a lease of their own; a program that opens sessions one after another should
// hold a lease for its whole lifetime so the engine is not torn down in between.
//
// The engine must be comparable, e.g. a pointer.  An engine that has exited stays referenced
// by the registry for the life of the process, so that it keeps being refused.
func Acquire(engine env.Engine) (*Lease, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if !reflect.TypeOf(engine).Comparable() {
		return nil, fmt.Errorf("engine %T is not comparable, pass a pointer", engine)
	}

	registry.Lock()
	defer registry.Unlock()

	st := registry.engines[engine]
	if st == nil {
		st = &engineState{}
		registry.engines[engine] = st
	}
	if st.exited {
		return nil, ErrEngineExited
	}

	if st.refs == 0 {
		if err := engine.Init(); err != nil {
			delete(registry.engines, engine)
			return nil, fmt.Errorf("failed to initialize engine: %w", err)
		}
	}
	st.refs++

	return &Lease{engine: engine, once: &sync.Once{}}, nil
}

// Release gives the lease back.  Only the first call has an effect.
func (l *Lease) Release() (err error) {
	l.once.Do(func() {
		registry.Lock()
		defer registry.Unlock()

		st := registry.engines[l.engine]
		st.refs--
		if st.refs > 0 {
			return
		}

		st.exited = true
		if exitErr := l.engine.Exit(); exitErr != nil {
			err = fmt.Errorf("failed to tear down engine: %w", exitErr)
		}
	})
	return
}
