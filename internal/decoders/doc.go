// Package decoders provides implementations of the Decoder interface
// for the file kinds found in personal data export archives. Each
// decoder knows how to extract records from a specific file format.
//
// Decoders are registered with the Registry at startup; the registry
// dispatches by file extension so new export kinds can be added
// without touching the build pipeline.
package decoders
