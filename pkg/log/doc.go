// Package log provides the logging abstraction used across meetrec.
//
// The Logger interface is implemented by a zerolog adapter for the
// command-line surfaces and by a no-op logger for tests:
//
//	logger := log.NewZerologAdapter("debug")
//	logger.Info("recording started", log.String("tab", tabID))
//
//	quiet := log.NewNoopLogger()
package log
