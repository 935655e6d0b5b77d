package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/mimas/api"
	"github.com/caffeineduck/mimas/bootstrap"
	"github.com/caffeineduck/mimas/gointerp"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect extension modules",
	Long: `Inspect the extension modules a bootstrap can install.

On the go backend, installable modules are standard library import paths
plus "stdlib" for all of them, and the API client package
github.com/caffeineduck/mimas/api. On the wasm backend, a module <name> is the
library served at <endpoint>/modules/<name>.wasm.`,
}

var modulesListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List modules installable on the go backend",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModulesList,
}

var manifestCmd = &cobra.Command{
	Use:   "manifest <endpoint>",
	Short: "Fetch and print the manifest published at endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifest,
}

func init() {
	addTransportFlags(manifestCmd)
	modulesCmd.AddCommand(modulesListCmd)
	rootCmd.AddCommand(modulesCmd, manifestCmd)
}

func runModulesList(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	out := cmd.OutOrStdout()
	for _, name := range installableModules() {
		if strings.HasPrefix(name, prefix) {
			fmt.Fprintln(out, name)
		}
	}
	return nil
}

func runManifest(cmd *cobra.Command, args []string) error {
	client, err := newFetcher(cmd, args[0])
	if err != nil {
		return err
	}

	m, err := bootstrap.FetchManifest(cmd.Context(), client)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func installableModules() []string {
	mods := append([]string{gointerp.StdlibModule}, gointerp.StdlibPackages()...)
	return append(mods, api.ImportPath)
}
