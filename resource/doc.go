// Package resource bundles files and arbitrary values into one named
// container that can be written to a single artifact and materialized
// again later.
//
// A Container maps names to entries. Each entry is either file-derived
// (KindFile) or a direct value (KindValue). File payloads are kept as text
// when the file is valid UTF-8 and as raw bytes otherwise, so text stays
// readable and binaries stay byte-exact.
//
// The main operations are:
//   - [Container.AddFile], [Container.AddGlob], [Container.AddValue]: populate
//   - [Container.Serialize], [Deserialize], [Container.SaveToFile], [LoadFromFile]: persist
//   - [Container.ExtractFiles]: write file entries back to disk
//   - [Container.ExportSource]: generate a Go source file embedding the data
//
// Artifacts are a fixed magic header followed by a deterministic CBOR
// document; see [Container.Serialize]. Values of caller-defined types
// survive a round trip only when the type is registered with [Register].
//
// A Container is not safe for concurrent mutation.
package resource
