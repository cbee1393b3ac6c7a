// Package media models capture streams and tracks independently of the
// capture backend.
package media
