// Package sqlite implements the index artifact as a single SQLite
// database file. Records live in a plain table, keyword search uses an
// FTS5 virtual table ranked by bm25, and embeddings are stored as
// little-endian float32 blobs scanned brute-force for similarity.
//
// An artifact is written once by a build and is immutable afterwards;
// promotion is a filesystem rename done by the build coordinator.
package sqlite
