// Package cryptoutil holds the small set of primitives used for publish
// tokens: random token generation, SHA-256 digests for at-rest storage and
// constant-time comparison.
//
// Raw tokens are only ever returned to the caller that minted them. Anything
// persisted or compared later is a digest produced by [HashToken].
package cryptoutil
