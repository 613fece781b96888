// Package model defines the entities cached by nostrcache.
//
// The model mirrors the subset of the Nostr protocol that the local store
// persists:
//   - Event: a signed protocol message, identified by its content hash
//   - Author: a public key plus profile metadata
//   - Follow: a directed edge between two authors (from kind 3 contact lists)
//   - EventReference: a typed pointer from one event to another event id
//
// References between entities are soft. An EventReference may point at an
// event that was never fetched, an event may name an author whose profile is
// unknown, and a follow may point at an author we have nothing else about.
// Code resolving these must treat "not found" as a normal outcome.
//
// Event identifiers are computed per NIP-01 (see ComputeEventID). Signature
// verification is not performed here; events handed to the store are assumed
// to be validated already.
package model
