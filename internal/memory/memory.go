// Package memory implements the address space the interpreter and kernel
// share: a physical word store, a parallel virtual store used while loading
// executables, and the three translation regimes a running process can be
// in — flat, segment-offset, and demand-paged.
package memory

import "fmt"

// PageSize is the size in bytes of one page and one physical frame.
const PageSize = 4096

// WordsPerPage is PageSize expressed in 32-bit words.
const WordsPerPage = PageSize / 4

// SharedSpaceStart is the first virtual address of the shared region. Any
// address at or above it bypasses the active translation regime entirely
// and is treated as already physical.
const SharedSpaceStart int32 = 16777216

// Mode selects how Translate maps a virtual address below SharedSpaceStart.
type Mode int

const (
	// Flat maps vaddr directly to word index vaddr/4. Used for the
	// bootstrap kernel process and while an executable is being loaded.
	Flat Mode = iota
	// SegmentOffset adds a per-process byte offset before flattening,
	// with no page table involved.
	SegmentOffset
	// Paged walks a per-process page table, faulting in a fresh frame on
	// first touch of any page.
	Paged
)

var (
	// ErrUnaligned is returned for any address not a multiple of 4.
	ErrUnaligned = fmt.Errorf("memory: unaligned address")
	// ErrOutOfBounds is returned when a translated index falls outside
	// the backing word slice.
	ErrOutOfBounds = fmt.Errorf("memory: address out of bounds")
	// ErrOutOfFrames is returned when a page fault needs a frame beyond
	// the machine's physical memory size.
	ErrOutOfFrames = fmt.Errorf("memory: out of physical frames")
)

// PageTable maps a process's virtual page numbers to physical frame
// indices. Entries are added only by page faults and are never removed.
type PageTable struct {
	frames map[int32]int32
}

// NewPageTable returns an empty page table.
func NewPageTable() *PageTable {
	return &PageTable{frames: make(map[int32]int32)}
}

// Lookup returns the frame mapped to vpn, if any.
func (pt *PageTable) Lookup(vpn int32) (int32, bool) {
	frame, ok := pt.frames[vpn]
	return frame, ok
}

// Map installs a vpn-to-frame mapping.
func (pt *PageTable) Map(vpn, frame int32) {
	pt.frames[vpn] = frame
}

// Memory is the machine's address space. One Memory instance is shared by
// every process; Mode, SegmentOffset, and Pages are swapped out by the
// kernel's save/restore process switch to reflect whichever process is
// currently running.
type Memory struct {
	physical []int32
	virtual  []int32
	active   *[]int32

	nextFrame int32
	maxFrames int32

	// Mode is the translation regime currently in effect for addresses
	// below SharedSpaceStart.
	Mode Mode
	// SegmentOffset is added to vaddr in SegmentOffset mode, and is also
	// the byte offset into the virtual store that Paged mode's page
	// faults copy pages in from, since that is where the process's
	// executable was loaded.
	SegmentOffset int32
	// Pages is the active process's page table. Required in Paged mode.
	Pages *PageTable
}

// New allocates physical and virtual word stores of the given sizes. Sizes
// are in words, not bytes.
func New(physicalWords, virtualWords int32) *Memory {
	m := &Memory{
		physical:  make([]int32, physicalWords),
		virtual:   make([]int32, virtualWords),
		maxFrames: physicalWords / WordsPerPage,
	}
	m.active = &m.physical
	return m
}

// PhysicalWords reports the size of physical memory in words.
func (m *Memory) PhysicalWords() int32 {
	return int32(len(m.physical))
}

// UseVirtualStore points subsequent Read/Write calls (below
// SharedSpaceStart) at the virtual store instead of physical memory. The
// kernel uses this while copying a freshly loaded executable into place.
func (m *Memory) UseVirtualStore() {
	m.active = &m.virtual
}

// UsePhysicalMemory restores Read/Write to target physical memory.
func (m *Memory) UsePhysicalMemory() {
	m.active = &m.physical
}

// Read loads the word at vaddr through the active translation regime.
func (m *Memory) Read(vaddr int32) (int32, error) {
	idx, words, err := m.resolve(vaddr)
	if err != nil {
		return 0, err
	}
	if idx < 0 || int(idx) >= len(words) {
		return 0, ErrOutOfBounds
	}
	return words[idx], nil
}

// Write stores value at vaddr through the active translation regime.
func (m *Memory) Write(vaddr, value int32) error {
	idx, words, err := m.resolve(vaddr)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(words) {
		return ErrOutOfBounds
	}
	words[idx] = value
	return nil
}

// resolve translates vaddr and reports which backing slice it indexes
// into. Shared-region addresses always resolve against physical memory
// regardless of the active target or translation mode.
func (m *Memory) resolve(vaddr int32) (int32, []int32, error) {
	if vaddr%4 != 0 {
		return 0, nil, ErrUnaligned
	}
	if vaddr >= SharedSpaceStart {
		return vaddr / 4, m.physical, nil
	}
	idx, err := m.translate(vaddr)
	if err != nil {
		return 0, nil, err
	}
	return idx, *m.active, nil
}

// translate maps a sub-shared-region vaddr to a physical/virtual word
// index under the current Mode.
func (m *Memory) translate(vaddr int32) (int32, error) {
	switch m.Mode {
	case Flat:
		return vaddr / 4, nil
	case SegmentOffset:
		return (vaddr + m.SegmentOffset) / 4, nil
	case Paged:
		vpn := vaddr / PageSize
		frame, ok := m.Pages.Lookup(vpn)
		if !ok {
			var err error
			frame, err = m.pageFault(vpn)
			if err != nil {
				return 0, err
			}
		}
		return frame*WordsPerPage + (vaddr%PageSize)/4, nil
	default:
		return vaddr / 4, nil
	}
}

// pageFault allocates the next physical frame in order, copies the page's
// backing words in from the virtual store at SegmentOffset, installs the
// mapping, and returns the new frame index. Frames are handed out from a
// monotone counter and are never reclaimed.
func (m *Memory) pageFault(vpn int32) (int32, error) {
	if m.nextFrame >= m.maxFrames {
		return 0, ErrOutOfFrames
	}
	frame := m.nextFrame
	m.nextFrame++

	srcStart := (m.SegmentOffset + vpn*PageSize) / 4
	dstStart := frame * WordsPerPage
	if int(srcStart+WordsPerPage) > len(m.virtual) || int(dstStart+WordsPerPage) > len(m.physical) {
		return 0, ErrOutOfBounds
	}
	copy(m.physical[dstStart:dstStart+WordsPerPage], m.virtual[srcStart:srcStart+WordsPerPage])
	m.Pages.Map(vpn, frame)
	return frame, nil
}
