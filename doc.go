// Package countd assembles the counter service: an HTTP API where
// authenticated users increment a personal counter, backed by a pluggable
// key-value store and a fire-and-forget notification queue.
package countd
