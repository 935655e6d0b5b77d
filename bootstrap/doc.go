// Package bootstrap stages an application into an embedded interpreter
// and hands control to it.
//
// # Pipeline
//
// A bootstrap runs four stages strictly in order, each gated on the
// previous one completing:
//
//  1. Manifest: GET <root>/ and validate the manifest document.
//  2. Filesystem: GET <root>/<path> for every source path and write the
//     content into the runtime's private filesystem.
//  3. Modules: install every extra module into the runtime.
//  4. Entry: import the entry module and call its [EntryFunction].
//
// Fetches within the filesystem stage and installs within the modules
// stage may run concurrently; every stage waits for all of its work before
// the next stage begins.
//
// # Basic Usage
//
//	rt := gointerp.New(gointerp.WithStdout(os.Stdout))
//	client, _ := fetch.New(fetch.Config{Root: "http://127.0.0.1:8000/mimas"})
//
//	result := bootstrap.New(client, rt).Run(ctx)
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
//
// # Errors
//
// Every failure is an [*Error] naming the failed [Stage] and one of the
// kind sentinels ([ErrFetch], [ErrParse], [ErrWrite], [ErrModuleLoad],
// [ErrImport], [ErrExecution]). Failures are never retried; a new attempt
// starts again from [StateIdle].
package bootstrap
