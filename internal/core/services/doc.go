// Package services contains the core business logic: change
// detection, index building and promotion, per-dataset coordination,
// hybrid retrieval, answer synthesis and connection insights. Services
// depend only on ports and domain types; adapters are injected.
package services
