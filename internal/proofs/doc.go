// Package proofs implements the proof retrieval contract: a Provider resolves
// an opaque secret to a previously generated STARK proof document, and the
// Service shapes provider outcomes into caller facing results while emitting
// one observability record per lookup. The file backed store is the reference
// provider; a real proof generation engine can replace it behind the same
// Provider interface.
package proofs
