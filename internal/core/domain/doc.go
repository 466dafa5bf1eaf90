// Package domain defines the core business entities for Arkiv.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: A normalised unit extracted from an export archive
//   - Fingerprint: A content digest of an archive
//   - IndexManifest: Metadata describing a built index artifact
//   - Dataset: One isolated unit of per-user state
//   - Answer / Citation: A grounded response to a question
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
