package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// globalKey is the reserved key for shared scripts loaded via LoadGlobal.
// A hook missing from a keyed VM is looked up here.
const globalKey = "__global__"

// vm is one sandboxed state. LStates are single-threaded, so every use holds mu.
type vm struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	closed bool
}

// defines reports whether hook is a Lua function in v.
func (v *vm) defines(hook string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed && v.L.GetGlobal(hook).Type() == lua.LTFunction
}

func (v *vm) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		v.L.Close()
	}
}

// Manager owns one sandboxed LState per script key and exposes hook dispatch.
//
// Manager is safe for concurrent use. Calls into the same VM are serialized;
// different VMs run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		logger: logger,
	}
}

// Load creates a sandboxed VM for key, registers the engine module, then
// executes every *.lua file in scriptDir in lexicographic order. A previous
// VM under the same key is replaced.
//
// Precondition: key must be non-empty; scriptDir must be a readable directory.
// Postcondition: the VM is registered; returns error on Lua load failure.
func (m *Manager) Load(key, scriptDir string, instLimit int) error {
	if key == "" {
		return fmt.Errorf("scripting: empty script key")
	}
	return m.loadInto(key, scriptDir, instLimit)
}

// LoadGlobal creates the "__global__" VM holding hooks shared by every key.
// A keyed VM's own definition of a hook wins over the shared one.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalKey, scriptDir, instLimit)
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L, release := NewSandboxedState(instLimit)
	m.RegisterModules(L, key)
	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			release()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}
	release()

	m.mu.Lock()
	if old, ok := m.vms[key]; ok {
		old.close()
	}
	m.vms[key] = &vm{L: L, limit: instLimit}
	m.mu.Unlock()

	m.logger.Info("scripting: loaded",
		zap.String("key", key),
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// resolve returns the VM defining hook: key's own VM first, then the shared
// VM. Nil when neither defines it.
func (m *Manager) resolve(key, hook string) *vm {
	m.mu.RLock()
	own, shared := m.vms[key], m.vms[globalKey]
	m.mu.RUnlock()
	for _, v := range []*vm{own, shared} {
		if v != nil && v.defines(hook) {
			return v
		}
	}
	return nil
}

// HasHook reports whether hook is a Lua function in key's VM or the shared VM.
func (m *Manager) HasHook(key, hook string) bool {
	return m.resolve(key, hook) != nil
}

// CallPredicate calls hook with facts converted to a Lua table and reports
// whether it returned a truthy value. Missing hooks and script errors are
// false; runtime errors, including an exhausted instruction budget, are
// logged at Warn and never propagated.
func (m *Manager) CallPredicate(key, hook string, facts map[string]any) bool {
	v := m.resolve(key, hook)
	if v == nil {
		m.logger.Debug("scripting: hook not defined",
			zap.String("key", key),
			zap.String("hook", hook),
		)
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	return lua.LVAsBool(m.call(v, key, hook, ToTable(v.L, facts)))
}

// call runs hook under a fresh instruction budget. v.mu must be held.
func (m *Manager) call(v *vm, key, hook string, arg lua.LValue) lua.LValue {
	if v.closed {
		return lua.LNil
	}
	fn := v.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil
	}

	release := budget(v.L, v.limit)
	defer release()
	if err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("key", key),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret
}

// Close releases every VM. Later calls behave as if nothing was loaded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.vms {
		v.close()
		delete(m.vms, key)
	}
}
