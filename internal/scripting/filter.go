package scripting

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// FilterFunc is the Lua global a filter script must define:
//
//	function filter(kind, sender, body) return body end
//
// Returning a string replaces the body; returning nil or false drops the message.
const FilterFunc = "filter"

// ErrNoFilterFunc is returned when a script does not define FilterFunc.
var ErrNoFilterFunc = errors.New("scripting: script does not define a filter function")

// Filter applies a Lua chat filter to outbound bridge messages.
// It is safe for concurrent use; calls are serialized on one VM.
type Filter struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	logger *zap.Logger
}

// NewFilter loads the filter script at path.
//
// Precondition: logger must be non-nil; instLimit <= 0 uses DefaultInstructionLimit.
// Postcondition: Returns a ready Filter, or an error if the script fails to
// load or does not define FilterFunc.
func NewFilter(path string, instLimit int, logger *zap.Logger) (*Filter, error) {
	f, err := newFilter(instLimit, logger, func(L *lua.LState) error { return L.DoFile(path) })
	if err != nil {
		return nil, fmt.Errorf("scripting: loading filter %q: %w", path, err)
	}
	return f, nil
}

// NewFilterFromString loads a filter from Lua source.
func NewFilterFromString(src string, instLimit int, logger *zap.Logger) (*Filter, error) {
	f, err := newFilter(instLimit, logger, func(L *lua.LState) error { return L.DoString(src) })
	if err != nil {
		return nil, fmt.Errorf("scripting: loading filter source: %w", err)
	}
	return f, nil
}

func newFilter(instLimit int, logger *zap.Logger, load func(*lua.LState) error) (*Filter, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := NewSandboxedState()
	if err := withBudget(L, instLimit, func() error { return load(L) }); err != nil {
		L.Close()
		return nil, err
	}
	if _, ok := L.GetGlobal(FilterFunc).(*lua.LFunction); !ok {
		L.Close()
		return nil, ErrNoFilterFunc
	}
	return &Filter{L: L, limit: instLimit, logger: logger}, nil
}

// Apply runs the filter for one message.
//
// Postcondition: keep is false when the script dropped the message. On a Lua
// runtime error or budget exhaustion the error is returned and keep is false.
func (f *Filter) Apply(kind, sender, body string) (out string, keep bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err = withBudget(f.L, f.limit, func() error {
		return f.L.CallByParam(lua.P{
			Fn:      f.L.GetGlobal(FilterFunc),
			NRet:    1,
			Protect: true,
		}, lua.LString(kind), lua.LString(sender), lua.LString(body))
	})
	if err != nil {
		f.logger.Warn("chat filter error",
			zap.String("kind", kind),
			zap.String("sender", sender),
			zap.Error(err),
		)
		return "", false, err
	}

	ret := f.L.Get(-1)
	f.L.Pop(1)
	switch v := ret.(type) {
	case lua.LString:
		return string(v), true, nil
	case *lua.LNilType:
		return "", false, nil
	case lua.LBool:
		if !bool(v) {
			return "", false, nil
		}
		return body, true, nil
	default:
		return "", false, fmt.Errorf("scripting: filter returned %s, want string or nil", ret.Type())
	}
}

// Close releases the VM.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.L.Close()
}
