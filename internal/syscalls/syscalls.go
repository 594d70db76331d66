// Package syscalls implements the numbered system call surface the
// compiled Source binaries and the kernel itself use to cross from user
// code into host I/O and kernel services, dispatched the same
// dispatch-by-number way the emulated hardware devices are.
package syscalls

import (
	"fmt"
	"os"

	"selfsys/internal/arith"
	"selfsys/internal/cpu"
	"selfsys/internal/memory"
)

// Syscall numbers. a0-a3 carry arguments; v0 carries the selector on entry
// and the result on return; the compiler's syscall call sequences move
// each argument into a0-a3 with ADDU before SYSCALL.
const (
	Exit       int32 = 4001
	Read       int32 = 4003
	Write      int32 = 4004
	Open       int32 = 4005
	Malloc     int32 = 5001
	SchedYield int32 = 5003
	Alarm      int32 = 5004
	Select     int32 = 5005
	Mlock      int32 = 5006
	Munlock    int32 = 5007
	GetPID     int32 = 5008
	Signal     int32 = 5009
	Mmap       int32 = 5010
	Madvise    int32 = 5011
)

// Kernel is the process- and machine-level state a syscall needs to read
// or mutate, keyed off the CPU making the call. internal/kernel's Kernel
// type implements this; syscalls depends only on the interface so the two
// packages don't import each other.
type Kernel interface {
	// Exit records the exit code for c's process; Dispatch then returns
	// TrapExit, on which the kernel retires the process.
	Exit(c *cpu.CPU, code int32)
	// HeapBump reserves n already-rounded bytes from c's process's heap,
	// returning the base address or a heap-overflow exception if it
	// would cross the process's stack pointer.
	HeapBump(c *cpu.CPU, n int32) (int32, error)
	// Yield notifies the kernel of a sched_yield by c's process; the
	// rescheduling itself follows from the TrapSchedule Dispatch returns.
	Yield(c *cpu.CPU)
	// Load brings in a fresh executable as a new process and returns its
	// pid.
	Load(c *cpu.CPU, name string, size int32) (int32, error)
	// Switch performs a process switch from prev to next.
	Switch(c *cpu.CPU, prev, next int32)
	// PID returns c's process's id.
	PID(c *cpu.CPU) int32
	// PendingAction returns the kernel action the calling process (the
	// bootstrap kernel process) should react to.
	PendingAction(c *cpu.CPU) int32
	// Mmap bumps the shared-region pointer by n bytes and returns the
	// previous top.
	Mmap(c *cpu.CPU, n int32) int32
	// QueueHead returns an opaque handle for the Michael-Scott queue; it
	// is not the address of a guest-readable head record.
	QueueHead(c *cpu.CPU) int32
}

// Host is the host-facing I/O a read, write, or open syscall reaches.
type Host interface {
	Read(fd int32, p []byte) (int, error)
	Write(fd int32, p []byte) (int, error)
	Open(name string, flags, mode int32) (int32, error)
}

// StdHost implements Host against the real process's stdin/stdout and the
// host filesystem, with descriptor numbering starting at 3 once 0 and 1
// are taken, mirroring selfie.c's convention.
type StdHost struct {
	files map[int32]*os.File
	next  int32
}

// NewStdHost returns a Host with stdin/stdout pre-opened as fd 0 and 1.
func NewStdHost() *StdHost {
	return &StdHost{
		files: map[int32]*os.File{0: os.Stdin, 1: os.Stdout},
		next:  3,
	}
}

func (h *StdHost) Read(fd int32, p []byte) (int, error) {
	f, ok := h.files[fd]
	if !ok {
		return 0, fmt.Errorf("syscalls: read: no such file descriptor %d", fd)
	}
	return f.Read(p)
}

func (h *StdHost) Write(fd int32, p []byte) (int, error) {
	f, ok := h.files[fd]
	if !ok {
		return 0, fmt.Errorf("syscalls: write: no such file descriptor %d", fd)
	}
	return f.Write(p)
}

func (h *StdHost) Open(name string, flags, mode int32) (int32, error) {
	goFlags := os.O_RDONLY
	if flags != 0 {
		goFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(name, goFlags, os.FileMode(mode))
	if err != nil {
		return -1, nil
	}
	fd := h.next
	h.next++
	h.files[fd] = f
	return fd, nil
}

// Dispatch executes the syscall selected by c's v0 register, using k for
// kernel-level effects and h for host I/O, and returns the trap the
// kernel must act on.
func Dispatch(c *cpu.CPU, k Kernel, h Host) (cpu.Trap, error) {
	switch c.Get(cpu.RegV0) {
	case Exit:
		k.Exit(c, c.Get(cpu.RegA0))
		return cpu.TrapExit, nil
	case Read:
		return dispatchRead(c, h)
	case Write:
		return dispatchWrite(c, h)
	case Open:
		return dispatchOpen(c, h)
	case Malloc:
		return dispatchMalloc(c, k)
	case SchedYield:
		k.Yield(c)
		return cpu.TrapSchedule, nil
	case Alarm:
		return dispatchAlarm(c, k)
	case Select:
		k.Switch(c, c.Get(cpu.RegA0), c.Get(cpu.RegA1))
		return cpu.TrapNone, nil
	case Mlock:
		return cpu.TrapLock, nil
	case Munlock:
		return cpu.TrapUnlock, nil
	case GetPID:
		c.Set(cpu.RegV0, k.PID(c))
		return cpu.TrapNone, nil
	case Signal:
		c.Set(cpu.RegV0, k.PendingAction(c))
		return cpu.TrapNone, nil
	case Mmap:
		c.Set(cpu.RegV0, k.Mmap(c, roundUp4(c.Get(cpu.RegA0))))
		return cpu.TrapNone, nil
	case Madvise:
		c.Set(cpu.RegV0, k.QueueHead(c))
		return cpu.TrapNone, nil
	default:
		return cpu.TrapNone, &cpu.Exception{
			Kind:    cpu.ExceptionUnknownSyscall,
			Message: fmt.Sprintf("syscalls: unknown syscall number %d", c.Get(cpu.RegV0)),
		}
	}
}

func dispatchRead(c *cpu.CPU, h Host) (cpu.Trap, error) {
	fd := c.Get(cpu.RegA0)
	bufAddr := c.Get(cpu.RegA1)
	n := c.Get(cpu.RegA2)

	raw := make([]byte, n)
	got, err := h.Read(fd, raw)
	if err != nil && got == 0 {
		c.Set(cpu.RegV0, -1)
		return cpu.TrapNone, nil
	}
	for i := 0; i < got; i++ {
		if err := storeChar(c.Mem, bufAddr, int32(i), int32(raw[i])); err != nil {
			return cpu.TrapNone, err
		}
	}
	c.Set(cpu.RegV0, int32(got))
	return cpu.TrapNone, nil
}

func dispatchWrite(c *cpu.CPU, h Host) (cpu.Trap, error) {
	fd := c.Get(cpu.RegA0)
	bufAddr := c.Get(cpu.RegA1)
	n := c.Get(cpu.RegA2)

	buf := make([]byte, n)
	for i := int32(0); i < n; i++ {
		ch, err := loadChar(c.Mem, bufAddr, i)
		if err != nil {
			return cpu.TrapNone, err
		}
		buf[i] = byte(ch)
	}
	written, err := h.Write(fd, buf)
	if err != nil {
		c.Set(cpu.RegV0, -1)
		return cpu.TrapNone, nil
	}
	c.Set(cpu.RegV0, int32(written))
	return cpu.TrapNone, nil
}

func dispatchOpen(c *cpu.CPU, h Host) (cpu.Trap, error) {
	name, err := readCString(c.Mem, c.Get(cpu.RegA0))
	if err != nil {
		return cpu.TrapNone, err
	}
	fd, err := h.Open(name, c.Get(cpu.RegA1), c.Get(cpu.RegA2))
	if err != nil {
		return cpu.TrapNone, err
	}
	c.Set(cpu.RegV0, fd)
	return cpu.TrapNone, nil
}

func dispatchMalloc(c *cpu.CPU, k Kernel) (cpu.Trap, error) {
	addr, err := k.HeapBump(c, roundUp4(c.Get(cpu.RegA0)))
	if err != nil {
		return cpu.TrapNone, err
	}
	c.Set(cpu.RegV0, addr)
	return cpu.TrapNone, nil
}

// dispatchAlarm loads a fresh executable as a new process. a0 is reserved
// (the new pid is assigned by the kernel's process table, not chosen by
// the caller); a1 is the new process's segment size in bytes (0 sizes it
// to the image, rounded up to a page), a2 the address of its
// null-terminated host file name.
func dispatchAlarm(c *cpu.CPU, k Kernel) (cpu.Trap, error) {
	name, err := readCString(c.Mem, c.Get(cpu.RegA2))
	if err != nil {
		return cpu.TrapNone, err
	}
	pid, err := k.Load(c, name, c.Get(cpu.RegA1))
	if err != nil {
		return cpu.TrapNone, err
	}
	c.Set(cpu.RegV0, pid)
	return cpu.TrapNone, nil
}

func roundUp4(n int32) int32 {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// loadChar reads the i-th packed 7-bit character out of the emulated
// buffer starting at bufAddr, a word at a time through mem.
func loadChar(mem *memory.Memory, bufAddr, i int32) (int32, error) {
	word, err := mem.Read(bufAddr + (i/4)*4)
	if err != nil {
		return 0, err
	}
	var tmp [1]int32
	tmp[0] = word
	return arith.LoadCharacter(tmp[:], i%4), nil
}

// storeChar writes ch into the i-th packed 7-bit character slot of the
// emulated buffer starting at bufAddr.
func storeChar(mem *memory.Memory, bufAddr, i, ch int32) error {
	wordAddr := bufAddr + (i/4)*4
	word, err := mem.Read(wordAddr)
	if err != nil {
		return err
	}
	var tmp [1]int32
	tmp[0] = word
	arith.StoreCharacter(tmp[:], i%4, ch)
	return mem.Write(wordAddr, tmp[0])
}

func readCString(mem *memory.Memory, addr int32) (string, error) {
	var b []byte
	for i := int32(0); ; i++ {
		ch, err := loadChar(mem, addr, i)
		if err != nil {
			return "", err
		}
		if ch == 0 {
			break
		}
		b = append(b, byte(ch))
	}
	return string(b), nil
}
