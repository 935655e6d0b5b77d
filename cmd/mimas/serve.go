package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/mimas/internal/ctxlog"
	"github.com/caffeineduck/mimas/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish a project for bootstrap clients",
	Long: `Start an HTTP server that publishes a project's manifest, source files
and wasm libraries.

Endpoints:
  GET /                     Manifest document
  GET /<path>               Staged source file
  GET /modules/<name>.wasm  Library from --modules-dir
  GET /healthz              Health check

The project comes from --config (YAML) and/or flags; flags add to what the
config file declares and --entry overrides it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	serveCmd.Flags().String("addr", "", "Listen address (overrides --port)")
	serveCmd.Flags().StringP("config", "f", "", "Project file (YAML)")
	serveCmd.Flags().StringP("entry", "e", "", "Entry module")
	serveCmd.Flags().StringSliceP("include", "i", nil, "Include directory (repeatable)")
	serveCmd.Flags().StringSliceP("module", "m", nil, "Extension module (repeatable)")
	serveCmd.Flags().String("modules-dir", "", "Directory of <name>.wasm libraries")
	serveCmd.Flags().StringSlice("ext", nil, "Published file extension (repeatable, default .go)")

	rootCmd.AddCommand(serveCmd)
}

func projectFromFlags(cmd *cobra.Command) (server.Project, error) {
	config, _ := cmd.Flags().GetString("config")
	entry, _ := cmd.Flags().GetString("entry")
	include, _ := cmd.Flags().GetStringSlice("include")
	modules, _ := cmd.Flags().GetStringSlice("module")
	modulesDir, _ := cmd.Flags().GetString("modules-dir")
	exts, _ := cmd.Flags().GetStringSlice("ext")

	var p server.Project
	if config != "" {
		var err error
		p, err = server.LoadProject(config)
		if err != nil {
			return server.Project{}, err
		}
	}

	if entry != "" {
		p.Entry = entry
	}
	p.Include = append(p.Include, include...)
	p.Modules = append(p.Modules, modules...)
	p.Extensions = append(p.Extensions, exts...)
	if modulesDir != "" {
		p.ModulesDir = modulesDir
	}
	return p, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = fmt.Sprintf(":%d", port)
	}

	p, err := projectFromFlags(cmd)
	if err != nil {
		return err
	}

	log := ctxlog.FromContext(cmd.Context())
	srv, err := server.New(p, server.WithLogger(log))
	if err != nil {
		return err
	}

	m := srv.Catalog().Manifest()
	log.Info("project collected",
		"entry", m.EntryModule,
		"files", len(m.SourcePaths),
		"modules", len(m.ExtraModules))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "mimas server listening on %s\n", a)
	})
}
