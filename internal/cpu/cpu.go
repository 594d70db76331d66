// Package cpu implements the fetch/decode/execute loop for the emulated
// machine: a 32-register file, the hi/lo multiply/divide registers, a
// program counter, and the exception and kernel-trap conditions a single
// Step can produce.
package cpu

import (
	"fmt"

	"selfsys/internal/isa"
	"selfsys/internal/memory"
)

// TimeSlice is the number of instructions a process runs, with interrupts
// active, before Step forces a schedule trap.
const TimeSlice = 40000

// Trap is a non-fatal condition Step reports that the kernel must act on
// by performing a process switch or a lock operation, as opposed to an
// Exception, which is fatal.
type Trap int

const (
	// TrapNone means the instruction completed with nothing for the
	// kernel to do.
	TrapNone Trap = iota
	// TrapSchedule is raised at the end of a time slice or by a
	// sched_yield syscall: the kernel should run the scheduler.
	TrapSchedule
	// TrapLock is raised by an mlock syscall.
	TrapLock
	// TrapUnlock is raised by an munlock syscall.
	TrapUnlock
	// TrapExit is raised by an exit syscall: the process is done and
	// must be removed from scheduling, not merely switched out.
	TrapExit
)

func (t Trap) String() string {
	switch t {
	case TrapNone:
		return "none"
	case TrapSchedule:
		return "schedule"
	case TrapLock:
		return "lock"
	case TrapUnlock:
		return "unlock"
	case TrapExit:
		return "exit"
	default:
		return "unknown"
	}
}

// ExceptionKind identifies which of the machine's fatal conditions
// terminated a process. The numeric values double as the process's exit
// code, matching the exception codes a host process would report.
type ExceptionKind int32

const (
	ExceptionSignal             ExceptionKind = 1
	ExceptionAddressError       ExceptionKind = 2
	ExceptionUnknownInstruction ExceptionKind = 3
	ExceptionHeapOverflow       ExceptionKind = 4
	ExceptionUnknownSyscall     ExceptionKind = 5
	ExceptionUnknownFunction    ExceptionKind = 6
)

// Exception is a fatal condition. Fetch, decode, or execute errors all
// surface as one of these; the owning process is terminated at the point
// of detection, with no retry and no recovery.
type Exception struct {
	Kind    ExceptionKind
	Message string
}

func (e *Exception) Error() string {
	return e.Message
}

func addressError(addr int32, cause error) error {
	return &Exception{Kind: ExceptionAddressError, Message: fmt.Sprintf("cpu: address error at %d: %v", addr, cause)}
}

// CPU is one process's execution context. Memory is shared across every
// process's CPU; the kernel points Mem at the right translation regime
// (Mode, SegmentOffset, Pages) before resuming a process. Each process
// keeps its own CPU, so PC/Regs/Hi/Lo are never copied across a switch.
type CPU struct {
	PC     int32
	Regs   [NumRegisters]int32
	Hi, Lo int32

	Mem *memory.Memory

	// Syscall is invoked when a SYSCALL instruction executes. It reads
	// arguments from Regs and Mem, writes its result to RegV0, and
	// returns the trap the kernel must act on (TrapNone for syscalls
	// that don't require one).
	Syscall func(c *CPU) (Trap, error)

	// Ticks counts instructions executed since the last time-slice
	// expiry, advancing only while InterruptsActive is set.
	Ticks            int32
	InterruptsActive bool
}

// New returns a CPU sharing the given address space.
func New(mem *memory.Memory) *CPU {
	return &CPU{Mem: mem}
}

// Get reads a register. Register 0 always reads zero.
func (c *CPU) Get(r int32) int32 {
	if r == RegZero {
		return 0
	}
	return c.Regs[r]
}

// Set writes a register. Writes to register 0 are silently discarded.
func (c *CPU) Set(r int32, v int32) {
	if r == RegZero {
		return
	}
	c.Regs[r] = v
}

// Step fetches the instruction at PC, executes it, and reports any trap
// the kernel needs to act on. Errors the CPU itself detects are
// *Exception and mean the process must be terminated; an error returned
// by the Syscall handler is passed through unchanged.
func (c *CPU) Step() (Trap, error) {
	word, err := c.Mem.Read(c.PC)
	if err != nil {
		return TrapNone, addressError(c.PC, err)
	}

	in := isa.Decode(word)
	trap, err := c.execute(in)
	if err != nil {
		return TrapNone, err
	}

	if c.InterruptsActive {
		c.Ticks++
		if c.Ticks >= TimeSlice {
			c.Ticks = 0
			if trap == TrapNone {
				trap = TrapSchedule
			}
		}
	}
	return trap, nil
}

func (c *CPU) execute(in isa.Instruction) (Trap, error) {
	switch in.Opcode {
	case isa.OpSpecial:
		return c.executeSpecial(in)
	case isa.OpADDIU:
		c.Set(in.Rt, c.Get(in.Rs)+in.Immediate)
		c.PC += 4
	case isa.OpLW:
		addr := c.Get(in.Rs) + in.Immediate
		v, err := c.Mem.Read(addr)
		if err != nil {
			return TrapNone, addressError(addr, err)
		}
		c.Set(in.Rt, v)
		c.PC += 4
	case isa.OpSW:
		addr := c.Get(in.Rs) + in.Immediate
		if err := c.Mem.Write(addr, c.Get(in.Rt)); err != nil {
			return TrapNone, addressError(addr, err)
		}
		c.PC += 4
	case isa.OpBEQ:
		c.PC += 4
		if c.Get(in.Rs) == c.Get(in.Rt) {
			c.PC += in.Immediate * 4
		}
	case isa.OpBNE:
		c.PC += 4
		if c.Get(in.Rs) != c.Get(in.Rt) {
			c.PC += in.Immediate * 4
		}
	case isa.OpJAL:
		c.Set(RegRA, c.PC+8)
		c.PC = in.InstrIndex * 4
	case isa.OpJ:
		c.PC = in.InstrIndex * 4
	default:
		return TrapNone, &Exception{Kind: ExceptionUnknownInstruction, Message: fmt.Sprintf("cpu: unknown opcode %d at pc=%d", in.Opcode, c.PC)}
	}
	return TrapNone, nil
}

func (c *CPU) executeSpecial(in isa.Instruction) (Trap, error) {
	switch in.Function {
	case isa.FuncNOP:
		c.PC += 4
	case isa.FuncJR:
		c.PC = c.Get(in.Rs)
	case isa.FuncADDU:
		c.Set(in.Rd, c.Get(in.Rs)+c.Get(in.Rt))
		c.PC += 4
	case isa.FuncSUBU:
		c.Set(in.Rd, c.Get(in.Rs)-c.Get(in.Rt))
		c.PC += 4
	case isa.FuncMULTU:
		c.Lo = c.Get(in.Rs) * c.Get(in.Rt)
		c.PC += 4
	case isa.FuncDIVU:
		rt := c.Get(in.Rt)
		if rt == 0 {
			return TrapNone, &Exception{Kind: ExceptionSignal, Message: fmt.Sprintf("cpu: division by zero at pc=%d", c.PC)}
		}
		c.Lo = c.Get(in.Rs) / rt
		c.Hi = c.Get(in.Rs) % rt
		c.PC += 4
	case isa.FuncMFHI:
		c.Set(in.Rd, c.Hi)
		c.PC += 4
	case isa.FuncMFLO:
		c.Set(in.Rd, c.Lo)
		c.PC += 4
	case isa.FuncSLT:
		if c.Get(in.Rs) < c.Get(in.Rt) {
			c.Set(in.Rd, 1)
		} else {
			c.Set(in.Rd, 0)
		}
		c.PC += 4
	case isa.FuncTEQ:
		if c.Get(in.Rs) == c.Get(in.Rt) {
			return TrapNone, &Exception{Kind: ExceptionSignal, Message: fmt.Sprintf("cpu: signal exception at pc=%d", c.PC)}
		}
		c.PC += 4
	case isa.FuncSYSCALL:
		c.PC += 4
		if c.Syscall == nil {
			return TrapNone, &Exception{Kind: ExceptionUnknownSyscall, Message: fmt.Sprintf("cpu: no syscall handler installed, v0=%d", c.Get(RegV0))}
		}
		return c.Syscall(c)
	default:
		return TrapNone, &Exception{Kind: ExceptionUnknownFunction, Message: fmt.Sprintf("cpu: unknown SPECIAL function %d at pc=%d", in.Function, c.PC)}
	}
	return TrapNone, nil
}
