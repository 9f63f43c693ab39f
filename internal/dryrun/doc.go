// Package dryrun provides an in-memory build backend.
//
// A [Backend] performs no side effects. It records every collaborator call in
// order so a plan can be checked end to end without a container runtime, and
// it can enforce a package [Index] to surface the version resolution failures
// a real installer would report. Failures can be injected per operation for
// tests.
package dryrun
