// Command samvm runs a small built-in demonstration program against the SAM
// virtual machine and prints its terminal data stack. Unlike the FORTH
// bootstrap this tool descends from, SAM has no source-file syntax to parse
// (spec.md's Non-goals exclude a surface language), so there is no input
// file to name on the command line — only the VM's own low-level execution
// knobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	sam "github.com/rrthomas/samvm"
	"github.com/rrthomas/samvm/internal/logio"
	"github.com/rrthomas/samvm/traps/basiclib"
	"github.com/rrthomas/samvm/traps/mathlib"
)

func main() {
	var (
		timeout   time.Duration
		trace     bool
		stepLimit int
	)
	flag.DurationVar(&timeout, "timeout", 0, "specify a time limit")
	flag.BoolVar(&trace, "trace", false, "enable trace logging")
	flag.IntVar(&stepLimit, "step-limit", 0, "bound the number of instructions executed (0 = unbounded)")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()

	opts := []sam.Option{
		sam.WithTrapLibrary(basiclib.New()),
		sam.WithTrapLibrary(mathlib.New()),
		sam.WithStepLimit(stepLimit),
	}
	if trace {
		tracef := log.Leveledf("TRACE")
		opts = append(opts, sam.WithTrace(func(line string) { tracef(line) }))
	}

	state := sam.NewState(opts...)
	if err := buildAddDemo(state); err != nil {
		log.ErrorIf(err)
		return
	}

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := state.Run(ctx)
	if err != nil {
		log.ErrorIf(err)
		return
	}
	fmt.Fprintf(os.Stdout, "halted: %#x\n", uint(result))

	data := state.CurrentData()
	for i := 0; i < data.Count(); i++ {
		w, werr := data.Peek(i)
		if werr != nil {
			log.ErrorIf(werr)
			return
		}
		fmt.Fprintf(os.Stdout, "data[%d] = %#x\n", i, uint(w))
	}
}

// buildAddDemo installs the "add two integers" program onto state: push 2,
// push 3, then a packed ADD, followed by a packed HALT so Run terminates
// with a visible return code rather than falling off the end of code.
func buildAddDemo(state *sam.State) error {
	code := state.NewStack()
	data := state.NewStack()

	if err := code.PushInt(2); err != nil {
		return err
	}
	if err := code.PushInt(3); err != nil {
		return err
	}
	if err := code.PushInsts(sam.InstAdd); err != nil {
		return err
	}
	if err := code.PushInt(0); err != nil {
		return err
	}
	if err := code.PushInsts(sam.InstHalt); err != nil {
		return err
	}

	state.SetProgram(code, data)
	return nil
}
