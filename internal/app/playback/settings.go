package playback

// Settings are the operator tunable knobs that take effect immediately.
type Settings struct {
	MaxQueueSize    int `json:"max_queue_size"`
	CooldownSeconds int `json:"cooldown_seconds"`
	SkipThreshold   int `json:"skip_threshold"`
}

// SettingsUpdate carries optional replacement values. Nil fields keep
// the current value.
type SettingsUpdate struct {
	MaxQueueSize    *int `json:"max_queue_size"`
	CooldownSeconds *int `json:"cooldown_seconds"`
	SkipThreshold   *int `json:"skip_threshold"`
}

// clamped returns a copy with every knob forced into its valid range.
// Out of range values are clamped, never rejected.
func (s Settings) clamped() Settings {
	s.MaxQueueSize = clampInt(s.MaxQueueSize, 1, 100)
	s.CooldownSeconds = clampInt(s.CooldownSeconds, 0, 3600)
	s.SkipThreshold = clampInt(s.SkipThreshold, 1, 100)
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Blocklist is a snapshot of the blocked artists and track IDs.
type Blocklist struct {
	Artists  []string `json:"artists"`
	TrackIDs []string `json:"track_ids"`
}
