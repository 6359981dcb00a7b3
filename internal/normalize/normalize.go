// Package normalize turns an agent response envelope into an AnalysisResult.
//
// The agent's output shape is not fixed. The payload sits at response.result
// and may be a JSON-encoded string, may wrap itself once more under "result",
// and its bug_report and test_report fields may each be strings holding JSON.
// Response tolerates exactly those variations and rejects anything deeper.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"testpilot/internal/domain"

	"github.com/tidwall/gjson"
)

// ErrRejected is returned for any envelope that carries no usable analysis.
var ErrRejected = errors.New("could not parse agent response")

const payloadPath = "response.result"

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// Response normalizes a full agent envelope. Every failure wraps ErrRejected.
func Response(raw []byte) (domain.AnalysisResult, error) {
	if !gjson.ValidBytes(raw) {
		return domain.AnalysisResult{}, rejectf("envelope is not valid JSON")
	}
	payload, err := Payload(gjson.GetBytes(raw, payloadPath))
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return Result(payload)
}

// Payload applies the string decode and the single "result" unwrap to the
// value found at response.result.
func Payload(candidate gjson.Result) (gjson.Result, error) {
	if !candidate.Exists() || candidate.Type == gjson.Null {
		return gjson.Result{}, rejectf("%s is missing", payloadPath)
	}
	payload := candidate
	if candidate.Type == gjson.String {
		if !gjson.Valid(candidate.Str) {
			return gjson.Result{}, rejectf("%s is a string that is not JSON", payloadPath)
		}
		payload = gjson.Parse(candidate.Str)
	}
	if !payload.IsObject() {
		return gjson.Result{}, rejectf("payload is %s, want object", kind(payload))
	}
	if inner := payload.Get("result"); inner.IsObject() {
		payload = inner
	}
	return payload, nil
}

// Result builds an AnalysisResult from an unwrapped payload object.
func Result(payload gjson.Result) (domain.AnalysisResult, error) {
	out := domain.AnalysisResult{
		BugReport:    section[domain.BugReport](payload.Get("bug_report"), true),
		TestReport:   section[domain.TestReport](payload.Get("test_report"), true),
		Notification: section[domain.Notification](payload.Get("notification"), false),
	}
	if !out.BugReport.Present() && !out.TestReport.Present() {
		return domain.AnalysisResult{}, rejectf("payload has neither bug_report nor test_report")
	}
	payload.ForEach(func(key, value gjson.Result) bool {
		switch k := key.String(); k {
		case "bug_report", "test_report", "notification":
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[k] = compact(value.Raw)
		}
		return true
	})
	return out, nil
}

func compact(raw string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(buf.Bytes())
}

// section decodes one report field. When decodeString is set, a string whose
// contents are JSON is decoded first; any other string is kept as sent.
func section[T any](v gjson.Result, decodeString bool) domain.Section[T] {
	var s domain.Section[T]
	if !v.Exists() {
		return s
	}
	data := v.Raw
	if decodeString && v.Type == gjson.String && gjson.Valid(v.Str) {
		data = v.Str
	}
	// Section.UnmarshalJSON keeps whatever does not fit T in Raw.
	_ = s.UnmarshalJSON([]byte(data))
	return s
}

func kind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.Type == gjson.String:
		return "string"
	case r.Type == gjson.Number:
		return "number"
	case r.Type == gjson.True, r.Type == gjson.False:
		return "bool"
	case r.Type == gjson.Null:
		return "null"
	default:
		return r.Type.String()
	}
}
