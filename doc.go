// Package jsonfile provides crash-safe persistence of a JSON document to a
// single file, with automatic recovery to a caller-supplied default when the
// on-disk file is missing or corrupt.
//
// # Overview
//
// The package centers around [File], which pairs one absolute file path with
// one in-memory JSON value. Constructing a File validates the recovery
// material and loads the file, repairing it from the default when needed, so
// a successfully constructed File is always in a loaded, consistent state.
// [Pool] deduplicates Files by absolute path so every caller sharing a path
// shares one instance, one lock, and one save/reload lifecycle.
//
// # Concurrency
//
// Each File owns one mutex. Reload, Save and default materialization hold it
// for their full duration, making them atomic with respect to other calls on
// the same instance. Cross-process safety is bounded by the filesystem: the
// write-temp-then-rename discipline of [WriteFileAtomic] and [CopyFileAtomic]
// guarantees a reader never observes a partial write, but there is no
// coordination between independently constructed Files pointing at the same
// path. Route shared paths through a [Pool].
//
// # Recovery
//
// A missing or unparsable file is rewritten from the default value or default
// file and re-read exactly once. If the retry also fails to parse, the file
// is replaced with an empty object so a recovering reload always terminates
// in a loaded state. The caller can detect this terminal fallback by
// comparing the loaded value against the expected default.
package jsonfile
