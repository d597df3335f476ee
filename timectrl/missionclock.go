package timectrl

import (
	"fmt"
	"math"
	"time"
)

// MissionClock derives mission-elapsed time from the universal time captured
// when the mission started. It is used for display only.
type MissionClock struct {
	startUT float64
}

// NewMissionClock anchors a clock at startUT (seconds).
func NewMissionClock(startUT float64) MissionClock {
	return MissionClock{startUT: startUT}
}

// StartUT returns the anchor time.
func (c MissionClock) StartUT() float64 { return c.startUT }

// Elapsed returns the mission-elapsed time at ut, rounded up to whole seconds.
// Times before the anchor report zero.
func (c MissionClock) Elapsed(ut float64) time.Duration {
	secs := math.Ceil(ut - c.startUT)
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}

// Format renders the elapsed time at ut as HH:MM:SS.
func (c MissionClock) Format(ut float64) string {
	return FormatElapsed(c.Elapsed(ut))
}

// FormatElapsed renders d as zero-padded HH:MM:SS. Hours are not wrapped.
func FormatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
