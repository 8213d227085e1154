// Package scheduler coalesces uploads of the same release into settle
// batches. Each key has one debounce timer that resets on arrival and is
// capped by a maximum batch age; settles for one key never overlap.
package scheduler
