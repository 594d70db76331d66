// Package symtab implements the two-list symbol table the compiler
// consults while emitting code: a process-wide global list and a scratch
// local list reset per procedure body.
package symtab

// Class distinguishes what kind of declaration an entry records.
type Class int

const (
	ClassVariable Class = iota
	ClassFunction
	ClassString
)

// Type is the Source language's tiny type system.
type Type int

const (
	TypeInt Type = iota
	TypeIntStar
	TypeVoid
)

func (ty Type) String() string {
	switch ty {
	case TypeInt:
		return "int"
	case TypeIntStar:
		return "int*"
	case TypeVoid:
		return "void"
	default:
		return "?"
	}
}

// HomeRegister names the register an entry's Address is relative to.
type HomeRegister int

const (
	GlobalPointer HomeRegister = iota
	FramePointer
)

// Entry is one symbol table record. For a variable, Address is its offset:
// negative for a global data slot relative to the global pointer; relative
// to the frame pointer, positive for a parameter and negative for a local.
// For a function,
// Address is either its known entry address, or (while undefined) the head
// of its fixup chain — the index of the most recent JAL 0 instruction
// waiting to be patched.
type Entry struct {
	Next     *Entry
	Name     string
	Class    Class
	Type     Type
	Value    int32
	Address  int32
	Register HomeRegister
	Defined  bool
}

// Table holds the global and local lists. Insertion is always at the head;
// lookup is linear, scoped local-then-global, and filtered by class.
type Table struct {
	global *Entry
	local  *Entry
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{}
}

// InsertGlobal prepends e to the global list.
func (t *Table) InsertGlobal(e *Entry) {
	e.Next = t.global
	t.global = e
}

// InsertLocal prepends e to the local list.
func (t *Table) InsertLocal(e *Entry) {
	e.Next = t.local
	t.local = e
}

// ResetLocal clears the local list, done at the start of each procedure body.
func (t *Table) ResetLocal() {
	t.local = nil
}

// Lookup searches the local list, then the global list, for an entry with
// the given name and class.
func (t *Table) Lookup(name string, class Class) (*Entry, bool) {
	for e := t.local; e != nil; e = e.Next {
		if e.Name == name && e.Class == class {
			return e, true
		}
	}
	for e := t.global; e != nil; e = e.Next {
		if e.Name == name && e.Class == class {
			return e, true
		}
	}
	return nil, false
}

// LookupAnyClass searches both lists ignoring class.
func (t *Table) LookupAnyClass(name string) (*Entry, bool) {
	for e := t.local; e != nil; e = e.Next {
		if e.Name == name {
			return e, true
		}
	}
	for e := t.global; e != nil; e = e.Next {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Globals returns the global list head, for callers walking every global
// (the image builder, laying out data after code).
func (t *Table) Globals() *Entry {
	return t.global
}
