package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/nixwasm/executor"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <module.wasm> [export]",
		Short: "Check a module against the host ABI without running it",
		Long: `Compile a module and report whether it can be called: every import
resolves to a host function, a memory is exported, the initialization hooks
have the right signatures and, if given, the export takes and returns one
value handle. No guest code runs.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCheck,
	}
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	export := ""
	if len(args) > 1 {
		export = args[1]
	}
	report, err := e.exec.Check(context.Background(), executor.File(args[0]), export)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if !report.OK() {
		return fmt.Errorf("%s: %d problem(s) found", report.Module, len(report.Problems))
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return okMark("ok")
	}
	return failMark("FAIL")
}

func printReport(w io.Writer, r *executor.Report) {
	fmt.Fprintf(w, "module  %s\n", r.Module)
	fmt.Fprintf(w, "memory  %s\n", status(r.Memory))
	if len(r.Hooks) > 0 {
		fmt.Fprintf(w, "hooks   %s\n", strings.Join(r.Hooks, ", "))
	} else {
		fmt.Fprintf(w, "hooks   %s\n", dim("none"))
	}
	if r.Export != "" {
		fmt.Fprintf(w, "export  %s %s\n", r.Export, status(r.Target))
	}

	if len(r.Imports) > 0 {
		fmt.Fprintln(w, "imports")
		for _, imp := range r.Imports {
			fmt.Fprintf(w, "  %s.%s %s\n", imp.Module, imp.Name, status(imp.Resolved))
		}
	}

	if len(r.Problems) > 0 {
		fmt.Fprintln(w, "problems")
		for _, p := range r.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}
