// Package agent runs the capture side of one meeting tab. It keeps a
// connection to the coordinator, answers its commands with a recorder, and
// mirrors the shared recording state on a local indicator.
package agent
