package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/mimas/bootstrap"
)

var replCmd = &cobra.Command{
	Use:   "repl <endpoint>",
	Short: "Bootstrap on the Go backend, then evaluate Go interactively",
	Long: `Bootstrap the application published at <endpoint> into the Go interpreter
and start an interactive REPL (Read-Eval-Print Loop) in the same
interpreter. The entry module is available under its package name.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepl,
}

func init() {
	addBootFlags(replCmd)
	replCmd.Flags().String("history", "", "History file path (default: ~/.mimas_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if backend, _ := cmd.Flags().GetString("backend"); backend != "go" {
		return fmt.Errorf("repl requires the go backend, got %q", backend)
	}

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".mimas_history")
	}

	client, err := newFetcher(cmd, args[0])
	if err != nil {
		return err
	}

	rt := newGoRuntime(cmd, client)

	result := bootstrap.New(client, rt, bootstrapOptions(cmd)...).Run(cmd.Context())
	if result.Error != nil {
		return result.Error
	}
	if result.Value != nil {
		fmt.Fprintln(cmd.OutOrStdout(), result.Value)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	entry := result.Manifest.EntryModule
	alias, _ := rt.Imported(entry)
	fmt.Fprintf(cmd.ErrOrStderr(), "mimas Go REPL, %s imported as %s (type 'exit' to quit, Ctrl+D to exit)\n", entry, alias)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(cmd.OutOrStdout())
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		v, err := rt.Eval(cmd.Context(), line)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if s, ok := formatValue(v); ok {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
	}
	return nil
}

// formatValue renders an evaluation result, skipping statements that
// produce no value.
func formatValue(v reflect.Value) (string, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	switch v.Kind() {
	case reflect.Func:
		return v.Type().String(), true
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan:
		if v.IsNil() {
			return "nil", true
		}
	}
	return fmt.Sprintf("%v", v.Interface()), true
}
