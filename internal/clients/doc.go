// Package clients provides adapters for external services.
//
// This package contains adapters that implement domain interfaces for:
// - TMDB poster search
// - Telegram announcement publishing
// - Telegram channel uploads
//
// All adapters support context for cancellation and timeout handling.
package clients
