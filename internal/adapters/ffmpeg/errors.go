package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bft-labs/meetrec/internal/domain"
)

// permissionMarkers are stderr fragments ffmpeg and its device layers print
// when the OS refuses access to a capture device.
var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"not authorized",
}

// classifyExit turns an early source exit into an error, mapping refused
// device access to domain.ErrPermissionDenied.
func classifyExit(name string, err error, stderr string) error {
	msg := trimSpace(stderr)
	lower := strings.ToLower(msg)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%s capture: %w: %s", name, domain.ErrPermissionDenied, msg)
		}
	}
	if err == nil {
		if msg == "" {
			return fmt.Errorf("%s capture: ffmpeg exited before capture started", name)
		}
		return fmt.Errorf("%s capture: ffmpeg exited before capture started: %s", name, msg)
	}
	if msg == "" {
		return fmt.Errorf("%s capture: ffmpeg exited before capture started: %w", name, err)
	}
	return fmt.Errorf("%s capture: ffmpeg exited before capture started: %w: %s", name, err, msg)
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
