package domain

import (
	"bytes"
	"encoding/json"
)

// Section is one report field of an AnalysisResult. Value is set when the
// agent's JSON decoded into T; otherwise Raw keeps the value as the agent sent it.
type Section[T any] struct {
	Value *T
	Raw   json.RawMessage
}

func Decoded[T any](v T) Section[T] {
	return Section[T]{Value: &v}
}

func (s Section[T]) Present() bool {
	return s.Value != nil || len(s.Raw) > 0
}

func (s Section[T]) IsZero() bool {
	return !s.Present()
}

// IsRaw reports whether the section carries an undecoded value.
func (s Section[T]) IsRaw() bool {
	return s.Value == nil && len(s.Raw) > 0
}

// RawText returns a raw section as text: the string itself when the agent
// sent a JSON string, the compact JSON otherwise.
func (s Section[T]) RawText() string {
	if len(s.Raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.Raw, &str); err == nil {
		return str
	}
	return string(s.Raw)
}

func (s Section[T]) MarshalJSON() ([]byte, error) {
	switch {
	case s.Value != nil:
		return json.Marshal(s.Value)
	case len(s.Raw) > 0:
		return s.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails: objects that do not fit T and non-object values
// are kept in Raw.
func (s *Section[T]) UnmarshalJSON(data []byte) error {
	*s = Section[T]{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		var v T
		if err := json.Unmarshal(trimmed, &v); err == nil {
			s.Value = &v
			return nil
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		s.Raw = append(json.RawMessage(nil), trimmed...)
		return nil
	}
	s.Raw = json.RawMessage(compact.Bytes())
	return nil
}

func (s Section[T]) MarshalYAML() (any, error) {
	switch {
	case s.Value != nil:
		return s.Value, nil
	case len(s.Raw) > 0:
		var v any
		if err := json.Unmarshal(s.Raw, &v); err != nil {
			return s.RawText(), nil
		}
		return v, nil
	default:
		return nil, nil
	}
}
