package types

// Model describes one loadable model from the manifest.
type Model struct {
	// Stable model name used in request paths.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Version of the model artifact. Defaults to 1.
	Version int64 `json:"version" yaml:"version" toml:"version"`
	// Absolute path to the compiled model artifact on disk.
	Path string `json:"path" yaml:"path" toml:"path"`
	// Stateful marks the model as carrying hidden state between requests.
	Stateful bool `json:"stateful" yaml:"stateful" toml:"stateful"`
	// MaxSequenceNumber bounds concurrent sequences; 0 selects the default.
	MaxSequenceNumber uint32 `json:"max_sequence_number" yaml:"max_sequence_number" toml:"max_sequence_number"`
	// IdleSequenceCleanup opts this model into the idle-sequence reaper.
	IdleSequenceCleanup *bool `json:"idle_sequence_cleanup" yaml:"idle_sequence_cleanup" toml:"idle_sequence_cleanup"`
	// LowLatencyTransformation applies the runtime's low-latency transform at
	// load time; required for the runtime to expose state slots.
	LowLatencyTransformation bool `json:"low_latency_transformation" yaml:"low_latency_transformation" toml:"low_latency_transformation"`
	// NiReq is the handle pool size; 0 uses the runtime's recommendation.
	NiReq int `json:"nireq" yaml:"nireq" toml:"nireq"`
}

// CleanupEnabled resolves the IdleSequenceCleanup option with its default (on).
func (m Model) CleanupEnabled() bool {
	if m.IdleSequenceCleanup == nil {
		return true
	}
	return *m.IdleSequenceCleanup
}
