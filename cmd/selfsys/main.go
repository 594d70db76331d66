// Command selfsys is the single executable that compiles Source programs,
// saves and loads binary images, and runs them either directly under the
// interpreter or under the cooperative kernel. Flags are processed strictly
// left to right, exactly as a hand-rolled ordered-flag dispatch loop over
// os.Args would.
package main

import (
	"fmt"
	"os"
	"strconv"

	"selfsys/internal/compiler"
	"selfsys/internal/cpu"
	"selfsys/internal/image"
	"selfsys/internal/kernel"
	"selfsys/internal/memory"
	"selfsys/internal/syscalls"
)

func usage() {
	fmt.Println("usage: selfsys { -c <source> | -o <out> | -l <in> | -m <MB> args... | -k <MB> args... }")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run processes args left to right: -m and -k are terminal and end the
// dispatch loop. Any arguments after their MB value are ignored; they are
// not passed to the emulated program.
func run(args []string) int {
	var img *image.Image

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-c":
			if i+1 >= len(args) {
				usage()
				return -1
			}
			name := args[i+1]
			src, err := os.ReadFile(name)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			compiled, err := compiler.Compile(name, src)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			img = compiled
			i += 2

		case "-o":
			if i+1 >= len(args) || img == nil {
				usage()
				return -1
			}
			if err := img.Save(args[i+1]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			i += 2

		case "-l":
			if i+1 >= len(args) {
				usage()
				return -1
			}
			loaded, err := image.Load(args[i+1])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			img = loaded
			i += 2

		case "-m":
			if i+1 >= len(args) || img == nil {
				usage()
				return -1
			}
			mb, err := parseMB(args[i+1])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			return runEmulator(img, mb)

		case "-k":
			if i+1 >= len(args) || img == nil {
				usage()
				return -1
			}
			mb, err := parseMB(args[i+1])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return -1
			}
			return runKernel(img, mb)

		default:
			usage()
			return -1
		}
	}
	return 0
}

func parseMB(s string) (int32, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("selfsys: invalid memory size %q", s)
	}
	if n < 1 {
		n = 1
	}
	if n > 1024 {
		n = 1024
	}
	return int32(n), nil
}

// runEmulator loads img into a flat address space and runs it directly
// under the interpreter, with no scheduler and no second process: exactly
// the -m mode of the spec's command surface.
func runEmulator(img *image.Image, mb int32) int {
	words := mb * 1024 * 1024 / 4
	mem := memory.New(words, words)
	mem.Mode = memory.Flat

	for i, w := range img.Words {
		if err := mem.Write(int32(i)*4, w); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return -1
		}
	}

	c := cpu.New(mem)
	host := syscalls.NewStdHost()
	k := &standaloneKernel{exitCode: -1}
	c.Syscall = func(c *cpu.CPU) (cpu.Trap, error) { return syscalls.Dispatch(c, k, host) }

	for {
		trap, err := c.Step()
		if err != nil {
			if exc, ok := err.(*cpu.Exception); ok {
				fmt.Fprintln(os.Stderr, exc)
				return int(exc.Kind)
			}
			fmt.Fprintln(os.Stderr, err)
			return -1
		}
		if trap == cpu.TrapExit {
			return int(k.exitCode)
		}
	}
}

// runKernel loads img as pid 1 under the cooperative scheduler: the -k mode
// of the spec's command surface.
func runKernel(img *image.Image, mb int32) int {
	words := mb * 1024 * 1024 / 4
	mem := memory.New(words, words)
	host := syscalls.NewStdHost()
	k := kernel.New(mem, host)

	if err := k.Boot(img, 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return -1
	}
	if len(k.ExitLog) == 0 {
		return -1
	}
	return int(k.ExitLog[len(k.ExitLog)-1].Code)
}

// standaloneKernel implements syscalls.Kernel for the -m (no scheduler) run
// mode: only exit and malloc are meaningful without a process table. alarm
// returns an error; every other call is a no-op rather than an
// import-cycle-forcing special case.
type standaloneKernel struct {
	heapTop  int32
	exitCode int32
}

func (k *standaloneKernel) Exit(c *cpu.CPU, code int32) { k.exitCode = code }

func (k *standaloneKernel) HeapBump(c *cpu.CPU, n int32) (int32, error) {
	base := k.heapTop
	top := base + n
	if top > c.Get(cpu.RegSP) {
		return 0, &cpu.Exception{Kind: cpu.ExceptionHeapOverflow, Message: "selfsys: malloc would cross the stack pointer"}
	}
	k.heapTop = top
	return base, nil
}

func (k *standaloneKernel) Yield(c *cpu.CPU)                              {}
func (k *standaloneKernel) Load(c *cpu.CPU, name string, size int32) (int32, error) {
	return 0, fmt.Errorf("selfsys: alarm is unavailable outside the kernel (-k)")
}
func (k *standaloneKernel) Switch(c *cpu.CPU, prev, next int32) {}
func (k *standaloneKernel) PID(c *cpu.CPU) int32                { return 1 }
func (k *standaloneKernel) PendingAction(c *cpu.CPU) int32      { return 0 }
func (k *standaloneKernel) Mmap(c *cpu.CPU, n int32) int32      { return 0 }
func (k *standaloneKernel) QueueHead(c *cpu.CPU) int32          { return memory.SharedSpaceStart }
