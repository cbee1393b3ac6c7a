// Package domain contains the core entities and value objects for meetrec.
//
// It has no dependencies on infrastructure concerns (websocket, ffmpeg,
// file system, logging).
//
// # Entities
//
//   - [Session]: the single recording session owned by a coordinator
//   - [SharedState]: the persisted projection of a session observed by controllers
//   - [Badge]: the status indicator mirrored while recording
//   - [Action]: the tag of every command and notification exchanged between surfaces
package domain
