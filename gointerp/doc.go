// Package gointerp embeds a Go source interpreter (yaegi) as a bootstrap
// runtime.
//
// Staged files form GOPATH-style source packages: a file staged at
// "app/main.go" belongs to the package imported as "app". Source packages
// can only import binary packages that were installed first:
//
//	rt := gointerp.New(gointerp.WithStdout(os.Stdout))
//	rt.Filesystem().EnsureDirectory("app")
//	rt.Filesystem().WriteFile("app/main.go", src)
//
//	rt.InstallModule(ctx, "fmt")
//	rt.Import(ctx, "app")
//	rt.Call(ctx, "app", "Main")
//
// Installable modules are standard library import paths, the StdlibModule
// meta module, and host packages registered with WithModule.
package gointerp
