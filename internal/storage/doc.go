// Package storage provides implementations of the domain repositories.
//
// The BoltHold repositories are the default backend; a SQLite release store
// and in-memory doubles are available for other deployments and for tests.
// Every operation checks context cancellation first and wraps store errors.
package storage
