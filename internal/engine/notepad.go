package engine

// Notepad is the per-run key-value store steps use to pass data forward.
// Writes are last-writer-wins. Access is strictly sequential within a run,
// so there is no locking; two concurrent runs must each own their instance.
type Notepad struct {
	entries map[string]Value
}

func NewNotepad() *Notepad {
	return &Notepad{entries: make(map[string]Value)}
}

func (n *Notepad) Write(key string, v Value) {
	n.entries[key] = v
}

// Read returns the stored value and whether the key exists. The ok flag is
// the absent sentinel: a stored Null is still present.
func (n *Notepad) Read(key string) (Value, bool) {
	v, ok := n.entries[key]
	return v, ok
}

// ReadAll snapshots the store for the execution report.
func (n *Notepad) ReadAll() map[string]Value {
	out := make(map[string]Value, len(n.entries))
	for k, v := range n.entries {
		out[k] = v
	}
	return out
}
