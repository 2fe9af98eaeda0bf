// Package knowledge defines the domain model for Archivista's dynamic
// knowledge graph: entities and relationships carrying evolving confidence
// scores, the append-only evidence ledger that justifies every score change,
// and the confidence-update primitives shared by all engines.
//
// # Confidence Model
//
// Every entity and relationship holds a confidence score in [0.0, 1.0].
// New items start at 0.5 (maximally uncertain). Scores move only through
// evidence-weighted updates:
//
//	new = current + learningRate * (strength - current)
//
// This is a bounded exponential moving average, not a literal Bayes rule:
// each update absorbs a fraction of the gap between the current belief and
// the strength of the new evidence. The learning rate is clamped to
// [0.1, 0.8] so beliefs neither oscillate wildly nor stagnate.
//
// # Evidence Ledger
//
// Every confidence change appends exactly one EvidenceRecord to its target.
// Records are immutable and cascade-deleted with their parent. The ledger
// supports audit, uncertainty quantification, and retry deduplication.
//
// # Storage
//
// The Store interface abstracts persistence. Two implementations exist:
// MemoryStore (in-process, for tests and ephemeral runs) and the SQLite
// store in internal/store/sqlite. Both guarantee at-most-one-winner
// semantics for concurrent find-or-create calls on the same
// (user, name, type) key.
package knowledge
