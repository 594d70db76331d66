// Command selfsys-tool is a companion disassembler and symbol-dump utility
// for inspecting a compiled binary image offline, built the way
// oisee-z80-optimizer/cmd/z80opt builds its rootCmd + subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"selfsys/internal/image"
	"selfsys/internal/isa"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "selfsys-tool",
		Short: "Inspect selfsys binary images offline",
	}

	disasmCmd := &cobra.Command{
		Use:   "disasm <binary>",
		Short: "Disassemble every code word in a binary image",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisasm,
	}

	symbolsCmd := &cobra.Command{
		Use:   "symbols <binary>",
		Short: "Print the bootstrap call and data-region layout of a binary image",
		Args:  cobra.ExactArgs(1),
		RunE:  runSymbols,
	}

	rootCmd.AddCommand(disasmCmd, symbolsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDisasm(cmd *cobra.Command, args []string) error {
	img, err := image.Load(args[0])
	if err != nil {
		return err
	}
	for addr := int32(0); int(addr/4) < len(img.Words); addr += 4 {
		word := img.Words[addr/4]
		in := isa.Decode(word)
		fmt.Printf("%8d: %08x  %s\n", addr, uint32(word), disasmLine(in))
	}
	return nil
}

// disasmLine renders the significant operand fields alongside the mnemonic
// isa.Instruction.String already gives us, since that method alone doesn't
// print register numbers or immediates.
func disasmLine(in isa.Instruction) string {
	mnemonic := in.String()
	switch in.Opcode {
	case isa.OpADDIU, isa.OpLW, isa.OpSW, isa.OpBEQ, isa.OpBNE:
		return fmt.Sprintf("%-8s $%d, $%d, %d", mnemonic, in.Rt, in.Rs, in.Immediate)
	case isa.OpJ, isa.OpJAL:
		return fmt.Sprintf("%-8s %d", mnemonic, in.InstrIndex*4)
	case isa.OpSpecial:
		switch in.Function {
		case isa.FuncADDU, isa.FuncSUBU, isa.FuncSLT:
			return fmt.Sprintf("%-8s $%d, $%d, $%d", mnemonic, in.Rd, in.Rs, in.Rt)
		case isa.FuncMULTU, isa.FuncDIVU, isa.FuncTEQ:
			return fmt.Sprintf("%-8s $%d, $%d", mnemonic, in.Rs, in.Rt)
		case isa.FuncMFHI, isa.FuncMFLO:
			return fmt.Sprintf("%-8s $%d", mnemonic, in.Rd)
		case isa.FuncJR:
			return fmt.Sprintf("%-8s $%d", mnemonic, in.Rs)
		default:
			return mnemonic
		}
	default:
		return mnemonic
	}
}

func runSymbols(cmd *cobra.Command, args []string) error {
	img, err := image.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("words:       %d\n", len(img.Words))
	fmt.Printf("code length: %d (words)\n", img.CodeLength)
	fmt.Printf("data length: %d (words)\n", int32(len(img.Words))-img.CodeLength)

	if len(img.Words) < 2 {
		return nil
	}
	bootstrap := isa.Decode(img.Words[1])
	if bootstrap.Opcode != isa.OpJAL {
		fmt.Println("word 1 is not the expected bootstrap JAL; image may not be a selfsys binary")
		return nil
	}
	fmt.Printf("main entry:  %d (resolved bootstrap JAL target)\n", bootstrap.InstrIndex*4)
	return nil
}
