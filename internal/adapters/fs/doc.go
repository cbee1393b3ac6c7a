// Package fs implements the file-system adapters: the shared state file and
// its watcher, the badge file and the recording downloader.
package fs
