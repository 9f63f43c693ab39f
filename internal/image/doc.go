// Package image models the state of an image under construction and the
// runtime contract extracted from it.
//
// A [State] is a value. Every mutation returns a new State and leaves the
// receiver untouched, so a failed step can never leave a half-applied state
// behind: the caller simply keeps the previous value. Only the transient
// dependency release removes content from a State.
//
// A [RuntimeContract] holds the terminal attributes consumed by a container
// runtime: exposed ports, effective user, entrypoint, environment, and
// working directory. Both types produce content digests over a canonical
// encoding, so identical plans with identical pins always yield identical
// digests.
package image
