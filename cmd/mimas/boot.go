package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/mimas/api"
	"github.com/caffeineduck/mimas/bootstrap"
	"github.com/caffeineduck/mimas/executor"
	"github.com/caffeineduck/mimas/fetch"
	"github.com/caffeineduck/mimas/gointerp"
	"github.com/caffeineduck/mimas/server"
)

var bootCmd = &cobra.Command{
	Use:   "boot <endpoint>",
	Short: "Bootstrap and run the application published at endpoint",
	Long: `Fetch the manifest at <endpoint>/, stage its source files, install its
extension modules, then import the entry module and call its entry function.

Examples:
  mimas boot http://127.0.0.1:8000
  mimas boot --backend wasm --memory 64mb http://127.0.0.1:8000/app
  mimas boot --allow-module fmt --allow-module strings http://127.0.0.1:8000

Any failure aborts the bootstrap; nothing is retried.`,
	Args: cobra.ExactArgs(1),
	RunE: runBoot,
}

func init() {
	addBootFlags(bootCmd)
	rootCmd.AddCommand(bootCmd)
}

func addBootFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "go", "Runtime backend: go, wasm")
	cmd.Flags().Duration("timeout", 60*time.Second, "Timeout for fetching, staging and installing; the entry function is not bounded (0 for none)")
	cmd.Flags().Int("concurrency", bootstrap.DefaultConcurrency, "Max in-flight fetches or installs per stage")
	cmd.Flags().StringSlice("allow-module", nil, "Allow extension module (repeatable; default allows any)")
	cmd.Flags().String("entry-func", bootstrap.EntryFunction, "Entry function called on the entry module")
	cmd.Flags().String("memory", "256mb", "Memory limit (wasm): 1mb, 16mb, 64mb, 256mb, 1gb")
	cmd.Flags().Bool("no-cache", false, "Disable compilation disk cache (wasm)")
	cmd.Flags().String("api-base", "", "Base URL of the application's API (go; default <endpoint>/api)")
	addTransportFlags(cmd)
}

func addTransportFlags(cmd *cobra.Command) {
	cmd.Flags().Int("http-max-url", fetch.DefaultMaxURLLength, "Max request URL length")
	cmd.Flags().Int64("http-max-body", fetch.DefaultMaxBodySize, "Max response body size")
	cmd.Flags().Duration("http-timeout", fetch.DefaultRequestTimeout, "Per-request timeout")
}

func newFetcher(cmd *cobra.Command, endpoint string) (*fetch.Client, error) {
	maxURL, _ := cmd.Flags().GetInt("http-max-url")
	maxBody, _ := cmd.Flags().GetInt64("http-max-body")
	timeout, _ := cmd.Flags().GetDuration("http-timeout")

	return fetch.New(fetch.Config{
		Root:           endpoint,
		MaxURLLength:   maxURL,
		MaxBodySize:    maxBody,
		RequestTimeout: timeout,
	})
}

// newRuntime builds the runtime handle for the selected backend. The
// returned release func tears it down at process exit.
func newRuntime(cmd *cobra.Command, client *fetch.Client) (bootstrap.Runtime, func(), error) {
	backend, _ := cmd.Flags().GetString("backend")

	switch backend {
	case "go":
		return newGoRuntime(cmd, client), func() {}, nil

	case "wasm":
		noCache, _ := cmd.Flags().GetBool("no-cache")
		memory, _ := cmd.Flags().GetString("memory")

		pages, err := parseMemoryLimit(memory)
		if err != nil {
			return nil, nil, err
		}

		opts := []executor.Option{
			executor.WithModuleSource(client),
			executor.WithStdout(cmd.OutOrStdout()),
			executor.WithStderr(cmd.ErrOrStderr()),
		}
		if !noCache {
			opts = append(opts, executor.WithDiskCache())
		}
		if pages > 0 {
			opts = append(opts, executor.WithMemoryLimit(pages))
		}

		exec, err := executor.New(opts...)
		if err != nil {
			return nil, nil, err
		}
		return exec, func() { exec.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q: use go or wasm", backend)
	}
}

// newGoRuntime builds the Go interpreter with the api package installable
// as a host module, bound to the application's API.
func newGoRuntime(cmd *cobra.Command, client *fetch.Client) *gointerp.Runtime {
	base, _ := cmd.Flags().GetString("api-base")
	if base == "" {
		base = client.URL(server.APIPrefix)
	}

	return gointerp.New(
		gointerp.WithStdout(cmd.OutOrStdout()),
		gointerp.WithStderr(cmd.ErrOrStderr()),
		gointerp.WithModule(api.ImportPath, api.Exports(base)),
	)
}

func bootstrapOptions(cmd *cobra.Command) []bootstrap.Option {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	allowed, _ := cmd.Flags().GetStringSlice("allow-module")
	entryFunc, _ := cmd.Flags().GetString("entry-func")

	return []bootstrap.Option{
		bootstrap.WithTimeout(timeout),
		bootstrap.WithConcurrency(concurrency),
		bootstrap.WithAllowedModules(allowed),
		bootstrap.WithEntryFunction(entryFunc),
	}
}

func runBoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	client, err := newFetcher(cmd, args[0])
	if err != nil {
		return err
	}

	rt, release, err := newRuntime(cmd, client)
	if err != nil {
		return err
	}
	defer release()

	result := bootstrap.New(client, rt, bootstrapOptions(cmd)...).Run(cmd.Context())
	if result.Error != nil {
		return result.Error
	}

	if result.Value != nil {
		fmt.Fprintln(cmd.OutOrStdout(), result.Value)
	}
	return nil
}
