// Package popup is the interactive recording controller. It renders the
// persisted recording state, follows changes to it, and sends start and stop
// commands to the coordinator.
package popup
