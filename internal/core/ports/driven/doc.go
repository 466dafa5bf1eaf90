// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Decoder: Converts one archive file into records
//   - DecoderRegistry: Selects the decoder for a file kind
//   - IndexStore: Opens index writers (staging) and readers (current)
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Embedder: Produces vector embeddings for semantic retrieval.
//     Without it, retrieval is keyword-only.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or decoder package
package driven
