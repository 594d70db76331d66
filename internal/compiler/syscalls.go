package compiler

import (
	"selfsys/internal/isa"
	"selfsys/internal/scanner"
	"selfsys/internal/symtab"
	"selfsys/internal/syscalls"
)

// syscallProcedure describes one of the Source language's library
// procedures: a name that never gets a user-written body and instead
// compiles straight to the numbered system call it wraps, the same way
// selfie.c's emitExit/emitRead/emitWrite/etc. hand-write a syscall's
// machine code rather than compiling it from a procedure's own
// declaration. selfie pops its arguments back off the stack into a0-a3
// after a normal push-args call sequence; since our call-argument
// registers are still live at the call site, we move them into a0-a3
// directly instead of round-tripping them through memory.
type syscallProcedure struct {
	number     int32
	argCount   int
	returnType symtab.Type
}

var syscallProcedures = map[string]syscallProcedure{
	"exit":         {syscalls.Exit, 1, symtab.TypeVoid},
	"read":         {syscalls.Read, 3, symtab.TypeInt},
	"write":        {syscalls.Write, 3, symtab.TypeInt},
	"open":         {syscalls.Open, 3, symtab.TypeInt},
	"malloc":       {syscalls.Malloc, 1, symtab.TypeIntStar},
	"sched_yield":  {syscalls.SchedYield, 0, symtab.TypeInt},
	"alarm":        {syscalls.Alarm, 3, symtab.TypeInt},
	"sched_switch": {syscalls.Select, 2, symtab.TypeInt},
	"mlock":        {syscalls.Mlock, 0, symtab.TypeInt},
	"munlock":      {syscalls.Munlock, 0, symtab.TypeInt},
	"getpid":       {syscalls.GetPID, 0, symtab.TypeInt},
	"signal":       {syscalls.Signal, 0, symtab.TypeInt},
	"mmap":         {syscalls.Mmap, 1, symtab.TypeIntStar},
	"madvise":      {syscalls.Madvise, 0, symtab.TypeIntStar},
}

var argRegisters = [4]int32{RegA0, RegA1, RegA2, RegA3}

// callSyscall parses a library procedure's argument list and emits the
// argument-marshal/v0-select/SYSCALL sequence directly, with p.tok already
// past the opening '('.
func (p *Parser) callSyscall(proc syscallProcedure) (int32, symtab.Type, error) {
	var args []int32
	for p.tok.Kind != scanner.RParen {
		if len(args) > 0 {
			if err := p.expect(scanner.Comma, "','"); err != nil {
				return 0, 0, err
			}
		}
		reg, _, err := p.expression()
		if err != nil {
			return 0, 0, err
		}
		args = append(args, reg)
	}
	if err := p.next(); err != nil { // consume ')'
		return 0, 0, err
	}
	if len(args) != proc.argCount {
		return 0, 0, p.errorf("system call expects %d argument(s), got %d", proc.argCount, len(args))
	}

	for i, reg := range args {
		p.em.emitR(isa.OpSpecial, RegZero, reg, argRegisters[i], 0, isa.FuncADDU)
	}
	p.allocator.free(len(args))

	p.em.emitI(isa.OpADDIU, RegZero, RegV0, proc.number)
	p.em.emitSyscall()

	reg, err := p.allocator.allocate()
	if err != nil {
		return 0, 0, p.errorf("%v", err)
	}
	p.em.emitR(isa.OpSpecial, RegV0, RegZero, reg, 0, isa.FuncADDU)
	return reg, proc.returnType, nil
}
