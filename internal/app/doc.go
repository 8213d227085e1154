// Package app provides application initialization and lifecycle management.
//
// The App type wires all dependencies together and manages:
// - Configuration loading
// - Store initialization
// - Telegram upload source and publisher
// - Debounce scheduler and reconciliation
// - HTTP server lifecycle
// - Graceful shutdown
//
// The Orchestrator runs the periodic retry of requeued settles.
package app
