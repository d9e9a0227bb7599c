package utils

import (
	"strings"

	"github.com/mavleo96/h2sync/internal/models"
)

// FramesString formats a frame list for logging
func FramesString(frames []models.FrameSpec) string {
	parts := make([]string, 0, len(frames))
	for _, f := range frames {
		parts = append(parts, f.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
