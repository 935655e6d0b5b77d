// Package executor provides a WebAssembly bootstrap runtime built on
// wazero.
//
// # Overview
//
// The executor manages module compilation, caching and instantiation.
// Staged files live in a private in-memory filesystem that every guest
// sees read-only at "/" through WASI.
//
// # Basic Usage
//
//	exec, err := executor.New(executor.WithModuleSource(client))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	exec.Filesystem().WriteFile("app.wasm", wasm)
//	exec.InstallModule(ctx, "pkgA") // modules/pkgA.wasm
//	exec.Import(ctx, "app")         // app.wasm
//	result, err := exec.Call(ctx, "app", "Main")
//
// # Modules
//
// Libraries installed with InstallModule are instantiated under their own
// name, so a module that imports "pkgA" functions links against the
// installed library. Libraries may only import from WASI and from
// libraries installed before them.
//
// Compiled modules are cached by content for the life of the Executor.
// [WithDiskCache] additionally persists compilation across processes.
package executor
