package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/mimas/executor"
	"github.com/caffeineduck/mimas/internal/ctxlog"
)

var rootCmd = &cobra.Command{
	Use:   "mimas [endpoint]",
	Short: "Bootstrap applications into an embedded interpreter",
	Long: `mimas - Stage an application into an embedded interpreter and run it.

A bootstrap fetches the manifest at the endpoint root, stages every listed
source file into a private in-memory filesystem, installs the extension
modules and finally imports the entry module and calls its Main function.

Backends: go (yaegi Go interpreter), wasm (wazero WebAssembly runtime).`,
	Args:              cobra.MaximumNArgs(1),
	RunE:              runBoot, // Default to boot command behavior
	PersistentPreRunE: setupLogging,
	SilenceUsage:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	// Add boot-specific flags to root (for default command)
	addBootFlags(rootCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: ctxlog.ParseLevel(level),
	}))
	slog.SetDefault(logger)
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

func parseMemoryLimit(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return 0, nil // use default
	case "1mb":
		return executor.MemoryLimit1MB, nil
	case "16mb":
		return executor.MemoryLimit16MB, nil
	case "64mb":
		return executor.MemoryLimit64MB, nil
	case "256mb":
		return executor.MemoryLimit256MB, nil
	case "1gb":
		return executor.MemoryLimit1GB, nil
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb or 1gb)", s)
	}
}
