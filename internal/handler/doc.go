// Package handler exposes the operations HTTP API: health, release and
// queue inspection, manual ingest and flushing.
package handler
