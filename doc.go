// Package mimas bootstraps an application into an embedded interpreter.
//
// # Overview
//
// A bootstrap fetches a manifest from the root of a remote endpoint, stages
// every source file it lists into a private in-memory filesystem, installs
// the extension modules it names and finally imports the entry module and
// calls its entry function. Each stage finishes completely before the next
// begins, and the first failure aborts the run.
//
// # Basic Usage
//
//	client, _ := fetch.New(fetch.Config{Root: "http://127.0.0.1:8000"})
//	rt := gointerp.New()
//
//	res := bootstrap.New(client, rt,
//	    bootstrap.WithTimeout(30*time.Second),
//	    bootstrap.WithAllowedModules([]string{"fmt", "strings"}),
//	).Run(ctx)
//	if res.Error != nil {
//	    stage, _ := bootstrap.StageOf(res.Error)
//	    log.Fatalf("bootstrap failed in %s: %v", stage, res.Error)
//	}
//	fmt.Println(res.Value)
//
// # Backends
//
// The Go backend ([gointerp]) runs staged Go packages in the yaegi
// interpreter; extension modules are standard library packages. The wasm
// backend ([executor]) runs staged WebAssembly modules on wazero; extension
// modules are libraries fetched from <endpoint>/modules/<name>.wasm.
//
// # Publishing
//
// The [server] package publishes a project directory in the layout a
// bootstrap expects. See the [bootstrap], [manifest], [fetch] and [vfs]
// packages for detailed API documentation.
package mimas
