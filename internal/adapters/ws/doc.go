// Package ws carries rpc envelopes between the coordinator and capture agents
// over websockets.
//
// The coordinator side is a [Hub] that accepts one connection per tab and
// implements ports.TabRelay. The agent side is a [Client] that serves
// coordinator commands and implements ports.CaptureNotifier.
package ws
