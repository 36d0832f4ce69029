// Package watch implements the core of pathwatch: per-root watch
// sessions feeding a shared coalescer that merges bursts of native
// filesystem notifications into logical events.
//
// Delivery is best effort. Raw events for the same path and change type
// collapse into one pending entry; the latest payload wins. Order across
// distinct paths is unspecified.
package watch
