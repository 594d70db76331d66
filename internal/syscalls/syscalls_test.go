package syscalls

import (
	"testing"

	"selfsys/internal/cpu"
	"selfsys/internal/memory"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

type fakeKernel struct {
	exited     bool
	exitCode   int32
	heapBase   int32
	heapErr    error
	yielded    bool
	loadedName string
	loadedSize int32
	loadedPid  int32
	switched   [2]int32
	pid        int32
	action     int32
	mmapTop    int32
	queueHead  int32
}

func (k *fakeKernel) Exit(c *cpu.CPU, code int32) { k.exited = true; k.exitCode = code }
func (k *fakeKernel) HeapBump(c *cpu.CPU, n int32) (int32, error) {
	if k.heapErr != nil {
		return 0, k.heapErr
	}
	base := k.heapBase
	k.heapBase += n
	return base, nil
}
func (k *fakeKernel) Yield(c *cpu.CPU) { k.yielded = true }
func (k *fakeKernel) Load(c *cpu.CPU, name string, size int32) (int32, error) {
	k.loadedName = name
	k.loadedSize = size
	return k.loadedPid, nil
}
func (k *fakeKernel) Switch(c *cpu.CPU, prev, next int32) { k.switched = [2]int32{prev, next} }
func (k *fakeKernel) PID(c *cpu.CPU) int32                { return k.pid }
func (k *fakeKernel) PendingAction(c *cpu.CPU) int32      { return k.action }
func (k *fakeKernel) Mmap(c *cpu.CPU, n int32) int32      { prev := k.mmapTop; k.mmapTop += n; return prev }
func (k *fakeKernel) QueueHead(c *cpu.CPU) int32          { return k.queueHead }

type fakeHost struct {
	writes  [][]byte
	reads   []byte
	opened  string
	openFd  int32
	openErr error
}

func (h *fakeHost) Read(fd int32, p []byte) (int, error) {
	n := copy(p, h.reads)
	return n, nil
}
func (h *fakeHost) Write(fd int32, p []byte) (int, error) {
	h.writes = append(h.writes, append([]byte(nil), p...))
	return len(p), nil
}
func (h *fakeHost) Open(name string, flags, mode int32) (int32, error) {
	h.opened = name
	return h.openFd, h.openErr
}

func newTestCPU() *cpu.CPU {
	mem := memory.New(256, 256)
	mem.Mode = memory.Flat
	return cpu.New(mem)
}

func TestDispatchExit(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, Exit)
	c.Set(cpu.RegA0, 7)
	k := &fakeKernel{}
	trap, err := Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, trap == cpu.TrapExit, "got %v, want TrapExit", trap)
	assert(t, k.exited && k.exitCode == 7, "kernel did not observe exit(7)")
}

func TestDispatchWrite(t *testing.T) {
	c := newTestCPU()
	msg := "hi"
	for i, ch := range []byte(msg) {
		assert(t, storeChar(c.Mem, 100, int32(i), int32(ch)) == nil, "seed failed")
	}
	c.Set(cpu.RegV0, Write)
	c.Set(cpu.RegA0, 1)
	c.Set(cpu.RegA1, 100)
	c.Set(cpu.RegA2, int32(len(msg)))
	h := &fakeHost{}
	_, err := Dispatch(c, &fakeKernel{}, h)
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, len(h.writes) == 1 && string(h.writes[0]) == msg, "got writes %v, want [%q]", h.writes, msg)
	assert(t, c.Get(cpu.RegV0) == int32(len(msg)), "got v0=%d, want %d", c.Get(cpu.RegV0), len(msg))
}

func TestDispatchRead(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, Read)
	c.Set(cpu.RegA0, 0)
	c.Set(cpu.RegA1, 100)
	c.Set(cpu.RegA2, 3)
	h := &fakeHost{reads: []byte("xyz")}
	_, err := Dispatch(c, &fakeKernel{}, h)
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, c.Get(cpu.RegV0) == 3, "got v0=%d, want 3", c.Get(cpu.RegV0))
	for i, want := range []byte("xyz") {
		got, err := loadChar(c.Mem, 100, int32(i))
		assert(t, err == nil, "loadChar: %v", err)
		assert(t, got == int32(want), "char %d: got %d, want %d", i, got, want)
	}
}

func TestDispatchMalloc(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, Malloc)
	c.Set(cpu.RegA0, 10) // rounds up to 12
	k := &fakeKernel{heapBase: 1000}
	_, err := Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, c.Get(cpu.RegV0) == 1000, "got %d, want 1000", c.Get(cpu.RegV0))
	assert(t, k.heapBase == 1012, "got next heap base %d, want 1012", k.heapBase)
}

func TestDispatchSchedYield(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, SchedYield)
	k := &fakeKernel{}
	trap, err := Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, trap == cpu.TrapSchedule, "got %v, want TrapSchedule", trap)
	assert(t, k.yielded, "kernel did not observe yield")
}

func TestDispatchMlockMunlock(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, Mlock)
	trap, err := Dispatch(c, &fakeKernel{}, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, trap == cpu.TrapLock, "got %v, want TrapLock", trap)

	c.Set(cpu.RegV0, Munlock)
	trap, err = Dispatch(c, &fakeKernel{}, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, trap == cpu.TrapUnlock, "got %v, want TrapUnlock", trap)
}

func TestDispatchGetPIDAndSignal(t *testing.T) {
	c := newTestCPU()
	k := &fakeKernel{pid: 5, action: 2}
	c.Set(cpu.RegV0, GetPID)
	_, err := Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, c.Get(cpu.RegV0) == 5, "got %d, want 5", c.Get(cpu.RegV0))

	c.Set(cpu.RegV0, Signal)
	_, err = Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, c.Get(cpu.RegV0) == 2, "got %d, want 2", c.Get(cpu.RegV0))
}

func TestDispatchMmap(t *testing.T) {
	c := newTestCPU()
	k := &fakeKernel{mmapTop: memory.SharedSpaceStart}
	c.Set(cpu.RegV0, Mmap)
	c.Set(cpu.RegA0, 5) // rounds up to 8
	_, err := Dispatch(c, k, NewStdHost())
	assert(t, err == nil, "Dispatch: %v", err)
	assert(t, c.Get(cpu.RegV0) == memory.SharedSpaceStart, "got %d, want the previous top", c.Get(cpu.RegV0))
	assert(t, k.mmapTop == memory.SharedSpaceStart+8, "got new top %d", k.mmapTop)
}

func TestDispatchUnknownSyscall(t *testing.T) {
	c := newTestCPU()
	c.Set(cpu.RegV0, 99999)
	_, err := Dispatch(c, &fakeKernel{}, NewStdHost())
	exc, ok := err.(*cpu.Exception)
	assert(t, ok, "expected an *cpu.Exception, got %v", err)
	assert(t, exc.Kind == cpu.ExceptionUnknownSyscall, "got kind %v", exc.Kind)
}
