// Package logoann resolves nearest-neighbor logos against frozen vector
// indexes, with an append-only embedding store catching up on logos added
// after an index was built. Lookups for identifiers baked into an index
// resolve by slot; newer identifiers resolve by their stored embedding
// vector against the same index.
package logoann
