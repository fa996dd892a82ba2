// Package async provides panic-safe goroutine helpers for background
// work that must never crash the process.
package async
