package control

import (
	"fmt"

	"github.com/mavleo96/h2sync/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	KindHello = "hello"
	KindSync  = "sync"
)

// Message is a single control-channel message
type Message struct {
	Kind    string
	RunID   string
	Role    models.Role
	Phase   models.PhaseLabel
	Outcome models.ResultCode
	Seq     int64
	// Scenario is the scenario digest announced in hello
	Scenario string
	// ComparisonValue is the configured role comparison value announced in hello;
	// empty when the sender negotiates it
	ComparisonValue string
}

// toStruct encodes a message into its wire form
func (m *Message) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":                  m.Kind,
		"run_id":                m.RunID,
		"role":                  string(m.Role),
		"phase":                 string(m.Phase),
		"outcome":               string(m.Outcome),
		"seq":                   m.Seq,
		"scenario":              m.Scenario,
		"role_comparison_value": m.ComparisonValue,
	})
}

// messageFromStruct decodes a wire message; a message without a known kind is malformed
func messageFromStruct(s *structpb.Struct) (*Message, error) {
	fields := s.GetFields()
	kind := fields["kind"].GetStringValue()
	if kind != KindHello && kind != KindSync {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, kind)
	}
	m := &Message{
		Kind:            kind,
		RunID:           fields["run_id"].GetStringValue(),
		Role:            models.Role(fields["role"].GetStringValue()),
		Phase:           models.PhaseLabel(fields["phase"].GetStringValue()),
		Outcome:         models.ResultCode(fields["outcome"].GetStringValue()),
		Seq:             int64(fields["seq"].GetNumberValue()),
		Scenario:        fields["scenario"].GetStringValue(),
		ComparisonValue: fields["role_comparison_value"].GetStringValue(),
	}
	if kind == KindSync && m.Phase == "" {
		return nil, fmt.Errorf("%w: sync message without phase", ErrMalformedMessage)
	}
	return m, nil
}

func (m *Message) String() string {
	if m.Kind == KindHello {
		return fmt.Sprintf("hello(role=%s, run=%s)", m.Role, m.RunID)
	}
	return fmt.Sprintf("sync(phase=%s, role=%s, outcome=%s, seq=%d)", m.Phase, m.Role, m.Outcome, m.Seq)
}
