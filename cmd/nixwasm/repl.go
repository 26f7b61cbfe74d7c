package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caffeineduck/nixwasm/executor"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl <module.wasm>",
		Short: "Call a module's exports interactively",
		Long: `Start an interactive session against one module. Each line names an
export followed by an optional YAML argument:

  >>> double 21
  42
  >>> build {src: ./src}

The module is compiled once; every call gets a fresh instance.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - :exports lists the callable exports

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.ExactArgs(1),
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.nixwasm_history)")
	cmd.Flags().String("deps", "", "Dependency registry file: YAML map of name to store path")
	cmd.Flags().String("out-path", "", "Output path reported by get_out_path")
	cmd.Flags().Duration("timeout", 0, "Per-call timeout (default: from config)")
	return cmd
}

// session calls exports of one module, line by line.
type session struct {
	env  *env
	src  executor.Source
	opts []executor.Option
}

var errQuit = errors.New("quit")

// handle runs one input line and returns what to print.
func (s *session) handle(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return "", nil
	case "exit", "quit":
		return "", errQuit
	case ":exports":
		return s.exports(ctx)
	}

	export, argText, _ := strings.Cut(line, " ")
	arg, err := s.env.parseValue([]byte(argText))
	if err != nil {
		return "", err
	}
	res, err := s.env.exec.Invoke(ctx, s.src, export, arg, s.opts...)
	if err != nil {
		return "", err
	}
	return s.env.state.Sprint(res)
}

func (s *session) exports(ctx context.Context) (string, error) {
	m, err := s.env.exec.Modules().Get(ctx, s.src)
	if err != nil {
		return "", err
	}
	var names []string
	for name, def := range m.Compiled().ExportedFunctions() {
		if len(def.ParamTypes()) == 1 && len(def.ResultTypes()) == 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".nixwasm_history")
	}

	src := executor.File(args[0])
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	opts, err := runOptions(cmd, e)
	if err != nil {
		return err
	}
	s := &session{env: e, src: src, opts: opts}

	// Compile up front so a broken module fails before the prompt.
	if _, err := e.exec.Modules().Get(context.Background(), src); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "nixwasm REPL for %s (type 'exit' to quit, Ctrl+D to exit)\n", args[0])

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		out, err := s.handle(context.Background(), line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
	}
}
