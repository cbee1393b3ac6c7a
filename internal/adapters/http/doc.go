// Package http exposes the coordinator over a local gin API and provides the
// client controllers use to call it.
package http
