// Package rpc implements the typed request/response channel used between
// the coordinator and capture surfaces: one reply per request, an explicit
// timeout, context cancellation, and no pipelining of the same action.
package rpc
