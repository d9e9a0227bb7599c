package h2

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mavleo96/h2sync/internal/models"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

var (
	settingIDs = map[string]http2.SettingID{}
	errCodes   = map[string]http2.ErrCode{}
)

func init() {
	for id := http2.SettingHeaderTableSize; id <= http2.SettingEnableConnectProtocol; id++ {
		settingIDs[id.String()] = id
	}
	for code := http2.ErrCodeNo; code <= http2.ErrCodeHTTP11Required; code++ {
		errCodes[code.String()] = code
	}
}

// ParseSettingID accepts a SETTINGS parameter by name or by number
func ParseSettingID(s string) (http2.SettingID, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "SETTINGS_")
	if id, ok := settingIDs[name]; ok {
		return id, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown setting %q", s)
	}
	return http2.SettingID(n), nil
}

// ParseErrCode accepts an error code by name or by number; empty means NO_ERROR
func ParseErrCode(s string) (http2.ErrCode, error) {
	if strings.TrimSpace(s) == "" {
		return http2.ErrCodeNo, nil
	}
	if code, ok := errCodes[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return code, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown error code %q", s)
	}
	return http2.ErrCode(n), nil
}

// Settings converts scripted settings into framer settings
func Settings(specs []models.SettingSpec) ([]http2.Setting, error) {
	out := make([]http2.Setting, 0, len(specs))
	for _, s := range specs {
		id, err := ParseSettingID(s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, http2.Setting{ID: id, Val: s.Value})
	}
	return out, nil
}

// encodeFrame writes f through the framer; the caller holds the write lock
func (c *Conn) encodeFrame(f models.FrameSpec) error {
	switch f.NormalizedType() {
	case "DATA":
		return c.framer.WriteData(f.StreamID, f.HasFlag("END_STREAM"), []byte(f.Payload))
	case "HEADERS":
		c.hbuf.Reset()
		for _, h := range f.Headers {
			if err := c.henc.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value}); err != nil {
				return err
			}
		}
		return c.framer.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      f.StreamID,
			BlockFragment: c.hbuf.Bytes(),
			EndStream:     f.HasFlag("END_STREAM"),
			EndHeaders:    true,
		})
	case "PRIORITY":
		return c.framer.WritePriority(f.StreamID, http2.PriorityParam{})
	case "RST_STREAM":
		code, err := ParseErrCode(f.ErrorCode)
		if err != nil {
			return err
		}
		return c.framer.WriteRSTStream(f.StreamID, code)
	case "SETTINGS":
		if f.HasFlag("ACK") {
			return c.framer.WriteSettingsAck()
		}
		settings, err := Settings(f.Settings)
		if err != nil {
			return err
		}
		return c.framer.WriteSettings(settings...)
	case "PING":
		var data [8]byte
		copy(data[:], f.Payload)
		return c.framer.WritePing(f.HasFlag("ACK"), data)
	case "GOAWAY":
		code, err := ParseErrCode(f.ErrorCode)
		if err != nil {
			return err
		}
		return c.framer.WriteGoAway(f.LastID, code, []byte(f.Payload))
	case "WINDOW_UPDATE":
		return c.framer.WriteWindowUpdate(f.StreamID, f.Increment)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFrame, f.Type)
	}
}

// decodeFrame copies what a frame carries into a descriptor. It must run before the
// next ReadFrame, which invalidates the frame's buffers.
func decodeFrame(f http2.Frame) models.FrameSpec {
	fh := f.Header()
	spec := models.FrameSpec{
		Type:     fh.Type.String(),
		StreamID: fh.StreamID,
		Flags:    flagNames(fh),
	}
	switch fr := f.(type) {
	case *http2.MetaHeadersFrame:
		for _, hf := range fr.Fields {
			spec.Headers = append(spec.Headers, models.HeaderField{Name: hf.Name, Value: hf.Value})
		}
	case *http2.DataFrame:
		spec.Payload = string(fr.Data())
	case *http2.SettingsFrame:
		_ = fr.ForeachSetting(func(s http2.Setting) error {
			spec.Settings = append(spec.Settings, models.SettingSpec{ID: s.ID.String(), Value: s.Val})
			return nil
		})
	case *http2.PingFrame:
		spec.Payload = string(bytes.TrimRight(fr.Data[:], "\x00"))
	case *http2.RSTStreamFrame:
		spec.ErrorCode = fr.ErrCode.String()
	case *http2.GoAwayFrame:
		spec.ErrorCode = fr.ErrCode.String()
		spec.LastID = fr.LastStreamID
		spec.Payload = string(fr.DebugData())
	case *http2.WindowUpdateFrame:
		spec.Increment = fr.Increment
	}
	return spec
}

func flagNames(fh http2.FrameHeader) []string {
	var names []string
	add := func(flag http2.Flags, name string) {
		if fh.Flags.Has(flag) {
			names = append(names, name)
		}
	}
	switch fh.Type {
	case http2.FrameData:
		add(http2.FlagDataEndStream, "END_STREAM")
		add(http2.FlagDataPadded, "PADDED")
	case http2.FrameHeaders:
		add(http2.FlagHeadersEndStream, "END_STREAM")
		add(http2.FlagHeadersEndHeaders, "END_HEADERS")
		add(http2.FlagHeadersPadded, "PADDED")
		add(http2.FlagHeadersPriority, "PRIORITY")
	case http2.FrameSettings:
		add(http2.FlagSettingsAck, "ACK")
	case http2.FramePing:
		add(http2.FlagPingAck, "ACK")
	case http2.FrameContinuation:
		add(http2.FlagContinuationEndHeaders, "END_HEADERS")
	}
	return names
}

// Matches reports whether a received frame satisfies an expected descriptor.
// The type must match; the stream id only when the expectation names one; the
// ACK flag for SETTINGS and PING.
func Matches(expected, got models.FrameSpec) bool {
	if expected.NormalizedType() != got.NormalizedType() {
		return false
	}
	if expected.StreamID > 0 && expected.StreamID != got.StreamID {
		return false
	}
	switch expected.NormalizedType() {
	case "SETTINGS", "PING":
		return expected.HasFlag("ACK") == got.HasFlag("ACK")
	}
	return true
}
