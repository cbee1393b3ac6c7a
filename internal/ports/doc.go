// Package ports defines the interfaces that connect the application layer
// to infrastructure adapters.
//
// # Port Interfaces
//
//   - [DisplayCapturer], [MicrophoneCapturer]: stream acquisition
//   - [AudioMixer], [AudioGraph]: real-time audio mixing
//   - [EncoderFactory], [Encoder]: encoder probing and chunked encoding
//   - [Downloader]: saving a finished recording
//   - [StateRepository], [BadgeWriter]: persisted shared state and badge
//   - [CaptureNotifier], [TabRelay]: message relay between surfaces
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with ffmpeg, websockets and
// the file system.
package ports
