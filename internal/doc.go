// Package internal contains the core implementation packages for t4go.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules. The only public
// package is pkg/tt, the runtime that generated programs link against.
//
// # Package Organization
//
// The packages form a pipeline, listed in dependency order:
//
//   - source: locations inside templates
//   - errors: diagnostics, error taxonomy and suggestions
//   - logging: structured logging on log/slog
//   - config, validation: configuration loading and value checks
//   - tokenizer, parser: template text to blocks, directives and includes
//   - directive: directive processors, including the parameter processor
//   - settings: directives resolved into the settings of one run
//   - codedom, codegen: the generated program as a tree, then as Go source
//   - runtimes: Go toolchain detection and module references
//   - compiler: external and in-process build backends
//   - loader: running a built program in an isolated child process
//   - engine: the pipeline end to end, batches and compiled templates
//   - watcher: change notification for transform --watch
//   - version: build information
//
// # Execution Model
//
// A template is never evaluated inside the t4go process. The engine builds
// a Go program from it and the loader runs that program in a fresh
// directory as a child process. Requests and responses cross the boundary
// as msgpack. A crash, deadlock or timeout of the child surfaces as a
// fatal error of the run and leaves the caller intact.
package internal
