package eval

import "sync"

// SymbolTable interns attribute names so repeated names share storage.
type SymbolTable struct {
	mu      sync.RWMutex
	symbols map[string]string
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]string)}
}

// Intern returns the canonical copy of name.
func (t *SymbolTable) Intern(name string) string {
	t.mu.RLock()
	s, ok := t.symbols[name]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.symbols[name]; ok {
		return s
	}
	s = string([]byte(name))
	t.symbols[s] = s
	return s
}

// Len returns the number of distinct symbols.
func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}
