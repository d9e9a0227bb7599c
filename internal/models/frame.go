package models

import (
	"fmt"
	"strings"
)

// FrameSpec describes one scripted HTTP/2 frame, either to send or to expect.
// Received frames are recorded with the same descriptor.
type FrameSpec struct {
	Type      string        `yaml:"type" json:"type"`
	StreamID  uint32        `yaml:"stream_id,omitempty" json:"stream_id,omitempty"`
	Flags     []string      `yaml:"flags,omitempty" json:"flags,omitempty"`
	Headers   []HeaderField `yaml:"headers,omitempty" json:"headers,omitempty"`
	Payload   string        `yaml:"payload,omitempty" json:"payload,omitempty"`
	Settings  []SettingSpec `yaml:"settings,omitempty" json:"settings,omitempty"`
	ErrorCode string        `yaml:"error_code,omitempty" json:"error_code,omitempty"`
	Increment uint32        `yaml:"increment,omitempty" json:"increment,omitempty"`
	LastID    uint32        `yaml:"last_stream_id,omitempty" json:"last_stream_id,omitempty"`
}

// HeaderField is a single header name/value pair; order is preserved
type HeaderField struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// SettingSpec is a single SETTINGS parameter
type SettingSpec struct {
	ID    string `yaml:"id" json:"id"`
	Value uint32 `yaml:"value" json:"value"`
}

// ScenarioFrameSet is the ordered, read-only list of frames of one phase
type ScenarioFrameSet []FrameSpec

// NormalizedType returns the frame type in upper case, the way HTTP/2 names it
func (f FrameSpec) NormalizedType() string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(f.Type), "-", "_"))
}

// HasFlag reports whether the named flag is set on the descriptor
func (f FrameSpec) HasFlag(flag string) bool {
	for _, fl := range f.Flags {
		if strings.EqualFold(fl, flag) {
			return true
		}
	}
	return false
}

func (f FrameSpec) String() string {
	s := fmt.Sprintf("%s stream=%d", f.NormalizedType(), f.StreamID)
	if len(f.Flags) > 0 {
		s += " flags=" + strings.Join(f.Flags, "|")
	}
	return s
}
