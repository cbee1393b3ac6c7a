package ffmpeg

import (
	"bufio"
	"fmt"
	"mime"
	"strings"
)

// codecEncoders maps mime codec names to ffmpeg encoders.
var codecEncoders = map[string]string{
	"vp9":    "libvpx-vp9",
	"vp8":    "libvpx",
	"opus":   "libopus",
	"vorbis": "libvorbis",
}

// Fallback encoders for a container-only mime type, in preference order.
var (
	defaultVideoEncoders = []string{"libvpx-vp9", "libvpx"}
	defaultAudioEncoders = []string{"libopus", "libvorbis"}
)

// codecPlan is the ffmpeg encoder pair for a mime type.
type codecPlan struct {
	video string
	audio string
}

// resolveCodecs maps mimeType onto available encoders. Only webm is supported.
func resolveCodecs(mimeType string, available map[string]bool) (codecPlan, error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return codecPlan{}, fmt.Errorf("invalid mime type %q: %w", mimeType, err)
	}
	if mediaType != "video/webm" {
		return codecPlan{}, fmt.Errorf("unsupported container %q", mediaType)
	}

	codecs := strings.TrimSpace(params["codecs"])
	if codecs == "" {
		plan := codecPlan{
			video: firstAvailable(defaultVideoEncoders, available),
			audio: firstAvailable(defaultAudioEncoders, available),
		}
		if plan.video == "" {
			return codecPlan{}, fmt.Errorf("no webm video encoder available")
		}
		return plan, nil
	}

	var plan codecPlan
	for _, name := range strings.Split(codecs, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		enc, ok := codecEncoders[name]
		if !ok {
			return codecPlan{}, fmt.Errorf("unsupported codec %q", name)
		}
		if !available[enc] {
			return codecPlan{}, fmt.Errorf("encoder %s not available", enc)
		}
		switch name {
		case "vp8", "vp9":
			plan.video = enc
		default:
			plan.audio = enc
		}
	}
	if plan.video == "" {
		return codecPlan{}, fmt.Errorf("mime type %q names no video codec", mimeType)
	}
	return plan, nil
}

func firstAvailable(candidates []string, available map[string]bool) string {
	for _, c := range candidates {
		if available[c] {
			return c
		}
	}
	return ""
}

// parseEncoders reads the output of "ffmpeg -encoders". Encoder lines start
// with a six character capability field such as " V....D libvpx-vp9 ...".
func parseEncoders(output string) map[string]bool {
	out := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	started := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			started = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		out[fields[1]] = true
	}
	return out
}
