// Package kernel implements the cooperative, tick-preemptive scheduler
// that multiplexes many loaded executables over one interpreter: a
// process table, a FIFO ready queue, the one global lock, and the
// executable loader syscalls reach through alarm.
//
// The original design runs the scheduler itself as an interpreted
// process (pid 0) that polls a pending action through a signal syscall.
// Since this is already a single Go process, that extra layer of
// self-interpretation buys nothing: the scheduler here is the Kernel
// type's own Run loop, driving each process's cpu.CPU directly and
// reacting to the traps syscalls.Dispatch returns. Every externally
// observable behavior it's responsible for — FIFO ready-queue order,
// FIFO lock acquisition, round-robin fairness, tick-based preemption —
// is unchanged; only the mechanism collapses from two interpreted loops
// into one.
package kernel

import (
	"fmt"

	"selfsys/internal/cpu"
	"selfsys/internal/image"
	"selfsys/internal/memory"
	"selfsys/internal/shared"
	"selfsys/internal/syscalls"
)

// Action is the pending kernel action a process can observe with the
// signal syscall.
type Action int32

const (
	ActionNone     Action = iota
	ActionSchedule
	ActionLock
	ActionUnlock
)

// State is a process's scheduling state.
type State int

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateExited
)

// Segment records a process's byte range within the shared virtual
// store that its executable was loaded into.
type Segment struct {
	Start int32
	Size  int32
}

// Process is one loaded executable's saved context. Unlike the reference
// design's single global register file copied in and out on every
// switch, each process owns its own *cpu.CPU for as long as it lives, so
// a switch is just changing which Process the Kernel calls Step on.
type Process struct {
	PID      int32
	CPU      *cpu.CPU
	Segment  Segment
	Pages    *memory.PageTable
	State    State
	ExitCode int32
}

// lock is the kernel's one global mutex resource: mlock/munlock block
// and wake processes through it in strict FIFO order.
type lock struct {
	owner *Process
	wait  []*Process
}

// Kernel owns the process table, the ready queue, the global lock, the
// shared region, and the Michael-Scott queue madvise hands out.
type Kernel struct {
	Mem  *memory.Memory
	Host syscalls.Host

	processes map[int32]*Process
	nextPID   int32
	ready     []*Process
	running   *Process

	lock   lock
	action Action

	nextSegment int32
	region      *shared.Region
	queue       *shared.Queue

	// loadFromHost reads an executable by host file name, overridable
	// in tests so alarm doesn't have to touch the real filesystem.
	loadFromHost func(name string) (*image.Image, error)

	// SwitchLog and ExitLog record scheduling history for tests and
	// diagnostics; neither is consulted by the scheduler itself.
	SwitchLog []int32
	ExitLog   []ExitRecord
}

// ExitRecord is one process's terminal outcome, in the order it retired.
type ExitRecord struct {
	PID  int32
	Code int32
}

// New returns a kernel operating over mem, with host I/O routed through
// host.
func New(mem *memory.Memory, host syscalls.Host) *Kernel {
	return &Kernel{
		Mem:          mem,
		Host:         host,
		processes:    make(map[int32]*Process),
		nextPID:      1,
		region:       shared.NewRegion(),
		queue:        shared.New(),
		loadFromHost: func(name string) (*image.Image, error) { return image.Load(name) },
	}
}

// Boot loads img as the first process and runs the scheduler until no
// process remains or Step returns an error that is not a *cpu.Exception;
// an exception only retires the process that raised it. segmentSize bounds
// the process's virtual address space; 0 sizes it to the image itself,
// rounded up to a page.
func (k *Kernel) Boot(img *image.Image, segmentSize int32) error {
	if _, err := k.loadImage(img, segmentSize); err != nil {
		return err
	}
	return k.Run()
}

// Run drives whichever process is current, and the ones behind it in the
// ready queue, until none remain.
func (k *Kernel) Run() error {
	if k.running == nil {
		k.scheduleNext()
	}
	for k.running != nil {
		trap, err := k.running.CPU.Step()
		if err != nil {
			exc, ok := err.(*cpu.Exception)
			if !ok {
				return err
			}
			fmt.Printf("kernel: process %d terminated: %v\n", k.running.PID, exc)
			k.retireRunning(int32(exc.Kind))
			k.scheduleNext()
			continue
		}

		switch trap {
		case cpu.TrapSchedule:
			k.action = ActionSchedule
			k.requeueRunning()
			k.scheduleNext()
		case cpu.TrapLock:
			k.action = ActionLock
			k.doLock()
		case cpu.TrapUnlock:
			k.action = ActionUnlock
			k.doUnlock()
		case cpu.TrapExit:
			code := k.running.ExitCode
			fmt.Printf("kernel: process %d exited with code %d\n", k.running.PID, code)
			k.retireRunning(code)
			k.scheduleNext()
		}
	}
	return nil
}

func (k *Kernel) requeueRunning() {
	if k.running == nil {
		return
	}
	k.running.State = StateReady
	k.ready = append(k.ready, k.running)
	k.running = nil
}

func (k *Kernel) retireRunning(code int32) {
	if k.running == nil {
		return
	}
	k.running.State = StateExited
	k.running.ExitCode = code
	k.ExitLog = append(k.ExitLog, ExitRecord{PID: k.running.PID, Code: code})
	delete(k.processes, k.running.PID)
	k.running = nil
}

func (k *Kernel) scheduleNext() {
	if len(k.ready) == 0 {
		return
	}
	next := k.ready[0]
	k.ready = k.ready[1:]
	k.restore(next)
}

// restore makes p the running process, pointing Mem's translation regime
// at its page table and segment.
func (k *Kernel) restore(p *Process) {
	p.State = StateRunning
	k.running = p
	k.SwitchLog = append(k.SwitchLog, p.PID)
	k.Mem.UsePhysicalMemory()
	k.Mem.Mode = memory.Paged
	k.Mem.SegmentOffset = p.Segment.Start
	k.Mem.Pages = p.Pages
	p.CPU.InterruptsActive = true
}

func (k *Kernel) doLock() {
	p := k.running
	if k.lock.owner == nil {
		k.lock.owner = p
		return
	}
	// Rewind to the SYSCALL instruction so the mlock call retries from
	// scratch once this process is scheduled again; the guest never
	// sees a lock syscall "fail" and has nothing to loop on itself.
	p.CPU.PC -= 4
	p.State = StateBlocked
	k.lock.wait = append(k.lock.wait, p)
	k.running = nil
	k.scheduleNext()
}

func (k *Kernel) doUnlock() {
	p := k.running
	if k.lock.owner != p {
		return // only the owner may unlock; otherwise silently ignored
	}
	k.lock.owner = nil
	for _, waiter := range k.lock.wait {
		waiter.State = StateReady
		k.ready = append(k.ready, waiter)
	}
	k.lock.wait = nil
}

// loadImage copies img into the shared virtual store at the next free
// segment, allocates a process record, page table, and segment, and
// enqueues it as ready.
func (k *Kernel) loadImage(img *image.Image, segmentSize int32) (int32, error) {
	size := segmentSize
	if size == 0 {
		size = roundUpPage(int32(len(img.Words)) * 4)
	}

	base := k.nextSegment
	k.Mem.UseVirtualStore()
	savedMode, savedOffset := k.Mem.Mode, k.Mem.SegmentOffset
	k.Mem.Mode = memory.Flat
	k.Mem.SegmentOffset = 0
	for i, w := range img.Words {
		if err := k.Mem.Write(base+int32(i)*4, w); err != nil {
			k.Mem.UsePhysicalMemory()
			k.Mem.Mode, k.Mem.SegmentOffset = savedMode, savedOffset
			return 0, err
		}
	}
	k.Mem.UsePhysicalMemory()
	k.Mem.Mode, k.Mem.SegmentOffset = savedMode, savedOffset
	k.nextSegment += size

	pid := k.nextPID
	k.nextPID++

	p := &Process{
		PID:     pid,
		CPU:     cpu.New(k.Mem),
		Segment: Segment{Start: base, Size: size},
		Pages:   memory.NewPageTable(),
		State:   StateReady,
	}
	p.CPU.Syscall = func(c *cpu.CPU) (cpu.Trap, error) { return syscalls.Dispatch(c, k, k.Host) }
	p.CPU.Set(cpu.RegSP, size)
	p.CPU.Set(cpu.RegK1, 0)

	k.processes[pid] = p
	k.ready = append(k.ready, p)
	return pid, nil
}

func roundUpPage(n int32) int32 {
	if n%memory.PageSize == 0 {
		return n
	}
	return n + (memory.PageSize - n%memory.PageSize)
}

// The methods below implement syscalls.Kernel.

func (k *Kernel) Exit(c *cpu.CPU, code int32) {
	if k.running != nil {
		k.running.ExitCode = code
	}
}

func (k *Kernel) HeapBump(c *cpu.CPU, n int32) (int32, error) {
	base := c.Get(cpu.RegK1)
	top := base + n
	if top > c.Get(cpu.RegSP) {
		return 0, &cpu.Exception{
			Kind:    cpu.ExceptionHeapOverflow,
			Message: fmt.Sprintf("kernel: malloc of %d bytes would cross the stack pointer", n),
		}
	}
	c.Set(cpu.RegK1, top)
	return base, nil
}

func (k *Kernel) Yield(c *cpu.CPU) {}

func (k *Kernel) Load(c *cpu.CPU, name string, size int32) (int32, error) {
	img, err := k.loadFromHost(name)
	if err != nil {
		return 0, fmt.Errorf("kernel: alarm: %w", err)
	}
	return k.loadImage(img, size)
}

func (k *Kernel) Switch(c *cpu.CPU, prev, next int32) {
	if p, ok := k.processes[prev]; ok && p.State == StateRunning {
		p.State = StateReady
		k.ready = append(k.ready, p)
	}
	if p, ok := k.processes[next]; ok {
		for i, r := range k.ready {
			if r == p {
				k.ready = append(k.ready[:i], k.ready[i+1:]...)
				break
			}
		}
		k.restore(p)
	}
}

func (k *Kernel) PID(c *cpu.CPU) int32 {
	if k.running == nil {
		return 0
	}
	return k.running.PID
}

func (k *Kernel) PendingAction(c *cpu.CPU) int32 {
	return int32(k.action)
}

func (k *Kernel) Mmap(c *cpu.CPU, n int32) int32 {
	return k.region.Bump(n)
}

func (k *Kernel) QueueHead(c *cpu.CPU) int32 {
	// The queue itself lives as a host-side shared.Queue rather than a
	// guest-readable structure (the machine has no CAS instruction a
	// Source program could use on it directly), so this is an opaque
	// handle rather than a literal address whose fields LW could reach.
	return memory.SharedSpaceStart
}

// Process looks up a process by pid, for tests and diagnostics.
func (k *Kernel) Process(pid int32) (*Process, bool) {
	p, ok := k.processes[pid]
	return p, ok
}

// ReadyPIDs returns the ready queue's pids in FIFO order, for tests.
func (k *Kernel) ReadyPIDs() []int32 {
	pids := make([]int32, len(k.ready))
	for i, p := range k.ready {
		pids[i] = p.PID
	}
	return pids
}
