package main

import "time"

// EngineConfig holds the tunables of the editing engine. The defaults match
// the behavior of the browser editor this tool grew out of: 8px pointer
// tolerances and a 40% dimming mask.
type EngineConfig struct {
	// HandleTolerance is the pixel distance within which a pointer counts
	// as grabbing a resize handle on the crop rectangle.
	HandleTolerance float64
	// SnapTolerance is the pixel distance within which a moved crop edge
	// snaps flush to the image boundary.
	SnapTolerance float64
	// MaskOpacity is the alpha of the black mask painted outside the
	// selection.
	MaskOpacity uint8
	// FrameInterval is how often coalesced redraw requests are flushed.
	FrameInterval time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HandleTolerance: 8,
		SnapTolerance:   8,
		MaskOpacity:     102,
		FrameInterval:   time.Second / 60,
	}
}
