package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Agents are loose with JSON types: counts arrive as strings or as whole
// floats, text fields arrive as numbers. The decoders in this file accept
// those forms and fail only on a value that has no faithful typed form,
// which leaves the enclosing Section raw.

var errMisfit = errors.New("value does not fit")

type fieldReader struct {
	obj gjson.Result
	err error
}

// readObject accepts a JSON object. null reads as an empty object.
func readObject(data []byte) (*fieldReader, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return &fieldReader{}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("%w: invalid JSON", errMisfit)
	}
	obj := gjson.ParseBytes(trimmed)
	if !obj.IsObject() {
		return nil, fmt.Errorf("%w: want object, got %s", errMisfit, obj.Type)
	}
	return &fieldReader{obj: obj}, nil
}

func (f *fieldReader) get(key string) gjson.Result {
	return f.obj.Get(key)
}

func (f *fieldReader) fail(key string, v gjson.Result) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: %s=%s", errMisfit, key, v.Raw)
	}
}

func (f *fieldReader) text(key string) string {
	v := f.get(key)
	s, ok := textValue(v)
	if !ok {
		f.fail(key, v)
	}
	return s
}

func (f *fieldReader) count(key string) *int {
	v := f.get(key)
	if v.Type == gjson.Null {
		return nil
	}
	n, ok := countValue(v)
	if !ok {
		if v.Type == gjson.String && strings.TrimSpace(v.Str) == "" {
			return nil
		}
		f.fail(key, v)
		return nil
	}
	return Int(n)
}

func (f *fieldReader) flag(key string) bool {
	v := f.get(key)
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.True, gjson.False:
		return v.Bool()
	case gjson.String:
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Str)); err == nil {
			return b
		}
	}
	f.fail(key, v)
	return false
}

// texts reads a list of strings. A single string reads as a one-item list.
func (f *fieldReader) texts(key string) []string {
	v := f.get(key)
	switch {
	case v.Type == gjson.Null:
		return nil
	case v.IsArray():
		var out []string
		for _, el := range v.Array() {
			s, ok := textValue(el)
			if !ok {
				f.fail(key, v)
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		s, ok := textValue(v)
		if !ok {
			f.fail(key, v)
			return nil
		}
		return []string{s}
	}
}

func decodeField[T any](f *fieldReader, key string) *T {
	v := f.get(key)
	if v.Type == gjson.Null {
		return nil
	}
	var out T
	if err := json.Unmarshal([]byte(v.Raw), &out); err != nil {
		f.fail(key, v)
		return nil
	}
	return &out
}

func decodeList[T any](f *fieldReader, key string) []T {
	v := f.get(key)
	if v.Type == gjson.Null {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(v.Raw), &out); err != nil {
		f.fail(key, v)
		return nil
	}
	return out
}

// textValue reads strings as-is and numbers or booleans as their JSON text.
func textValue(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.Null:
		return "", true
	case gjson.String:
		return v.Str, true
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw, true
	default:
		return "", false
	}
}

// countValue reads a whole number given as a JSON number or a numeric string.
func countValue(v gjson.Result) (int, bool) {
	var n float64
	switch v.Type {
	case gjson.Number:
		n = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func (b *Bug) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*b = Bug{
		Title:        f.text("title"),
		Severity:     ParseSeverity(f.text("severity")),
		Description:  f.text("description"),
		RootCause:    f.text("root_cause"),
		SuggestedFix: f.text("suggested_fix"),
	}
	return f.err
}

func (r *BugReport) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*r = BugReport{
		Bugs:          decodeList[Bug](f, "bugs"),
		TotalBugs:     f.count("total_bugs"),
		CriticalCount: f.count("critical_count"),
		HighCount:     f.count("high_count"),
		MediumCount:   f.count("medium_count"),
		LowCount:      f.count("low_count"),
		Summary:       f.text("summary"),
	}
	return f.err
}

func (s *TestSummary) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*s = TestSummary{
		TotalTests: f.count("total_tests"),
		Passed:     f.count("passed"),
		Failed:     f.count("failed"),
		PassRate:   f.text("pass_rate"),
	}
	return f.err
}

func (s *SeverityBreakdown) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*s = SeverityBreakdown{
		Severity: f.text("severity"),
		Count:    f.count("count"),
		Details:  f.text("details"),
	}
	return f.err
}

func (a *RecommendedAction) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*a = RecommendedAction{
		Action:   f.text("action"),
		Priority: f.text("priority"),
		Reason:   f.text("reason"),
	}
	return f.err
}

// UnmarshalJSON also accepts a bare status string.
func (v *CIVerdict) UnmarshalJSON(data []byte) error {
	if r := gjson.ParseBytes(bytes.TrimSpace(data)); r.Type == gjson.String {
		*v = CIVerdict{Status: r.Str}
		return nil
	}
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*v = CIVerdict{
		Status:    f.text("status"),
		Reasoning: f.text("reasoning"),
	}
	return f.err
}

func (r *TestReport) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*r = TestReport{
		TestSummary:          decodeField[TestSummary](f, "test_summary"),
		SeverityBreakdown:    decodeList[SeverityBreakdown](f, "severity_breakdown"),
		CoverageObservations: f.text("coverage_observations"),
		RecommendedActions:   decodeList[RecommendedAction](f, "recommended_actions"),
		CIVerdict:            decodeField[CIVerdict](f, "ci_verdict"),
	}
	return f.err
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return err
	}
	*n = Notification{
		EmailSent:  f.flag("email_sent"),
		Recipients: f.texts("recipients"),
		Subject:    f.text("subject"),
		Reason:     f.text("reason"),
	}
	return f.err
}
