// Package watcher reports changes to individual files.
//
// Watches are placed on the parent directory so that editors and atomic
// writers that replace a file by rename are still observed. Events are
// debounced per file: callers should treat them as "reload now" hints.
package watcher
