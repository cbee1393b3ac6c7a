// Package ffmpeg implements capture, mixing and encoding on top of the ffmpeg
// binary.
//
// Every capture source runs as its own ffmpeg process writing NUT into a
// pipe. Tracks of a source share that process, which stops once all of them
// are stopped and ends every track when it exits on its own. The encoder is
// one more ffmpeg process reading the source pipes as extra file descriptors,
// mixing audio with amix and emitting webm on stdout.
package ffmpeg
