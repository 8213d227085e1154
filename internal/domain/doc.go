// Package domain defines the core entities and ports for autopost.
//
// MovieMeta is the parsed form of an uploaded filename, ReleaseRecord is the
// persisted release with its quality variants, and the interfaces in ports.go
// describe the store, poster lookup, publisher and upload source that the
// services depend on. All blocking interfaces accept a context.
package domain
