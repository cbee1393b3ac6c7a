package domain

// Badge is the compact status indicator mirrored while recording.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// RecordingBadgeColor is the badge background while recording.
const RecordingBadgeColor = "#FF0000"

// RecordingBadge is shown while a session is recording.
func RecordingBadge() Badge {
	return Badge{Text: "REC", Color: RecordingBadgeColor}
}

// ClearedBadge is shown otherwise.
func ClearedBadge() Badge {
	return Badge{}
}
