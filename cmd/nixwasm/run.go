package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/executor"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module.wasm> <export>",
		Short: "Call an exported function and print the result",
		Long: `Call an exported function of a WebAssembly module and print the
forced result.

The argument is given as YAML or JSON:
  nixwasm run double.wasm double --arg 21
  nixwasm run build.wasm main --arg '{src: ./src, flags: [-O2]}'
  nixwasm run build.wasm main --arg-file args.yaml --deps deps.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: runRun,
	}

	f := cmd.Flags()
	f.StringP("arg", "a", "", "Argument as YAML or JSON (default: null)")
	f.String("arg-file", "", "Read the argument from a YAML or JSON file")
	f.String("deps", "", "Dependency registry file: YAML map of name to store path")
	f.String("out-path", "", "Output path reported by get_out_path")
	f.Duration("timeout", 30*time.Second, "Execution timeout")
	return cmd
}

func runOptions(cmd *cobra.Command, e *env) ([]executor.Option, error) {
	opts := []executor.Option{executor.WithTimeout(e.cfg.Timeout)}

	if path, _ := cmd.Flags().GetString("deps"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dependencies: %w", err)
		}
		deps, err := e.parseValue(data)
		if err != nil {
			return nil, fmt.Errorf("dependencies: %w", err)
		}
		opts = append(opts, executor.WithDependencies(deps))
	}
	if out, _ := cmd.Flags().GetString("out-path"); out != "" {
		opts = append(opts, executor.WithOutPath(eval.String(out)))
	}
	return opts, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	argText, _ := cmd.Flags().GetString("arg")
	if path, _ := cmd.Flags().GetString("arg-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read argument: %w", err)
		}
		argText = string(data)
	}
	arg, err := e.parseValue([]byte(argText))
	if err != nil {
		return err
	}

	opts, err := runOptions(cmd, e)
	if err != nil {
		return err
	}

	res, err := e.exec.Invoke(context.Background(), executor.File(args[0]), args[1], arg, opts...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := e.state.Print(out, res); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}
