package domain

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// Severities lists the known severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev
	default:
		return SeverityUnknown
	}
}

// Canonical CI verdict keys. Agents may send other values; those pass through.
const (
	VerdictSafeToDeploy   = "safe_to_deploy"
	VerdictNeedsAttention = "needs_attention"
	VerdictDeployBlocked  = "deploy_blocked"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// VerdictKey lowercases a verdict status and turns whitespace runs into "_".
func VerdictKey(status string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(status), "_")
}

type Bug struct {
	Title        string   `json:"title,omitempty" yaml:"title,omitempty"`
	Severity     Severity `json:"severity" yaml:"severity"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	RootCause    string   `json:"root_cause,omitempty" yaml:"root_cause,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty" yaml:"suggested_fix,omitempty"`
}

// BugReport counts are whatever the agent reported; they are not derived from Bugs.
type BugReport struct {
	Bugs          []Bug  `json:"bugs,omitempty" yaml:"bugs,omitempty"`
	TotalBugs     *int   `json:"total_bugs,omitempty" yaml:"total_bugs,omitempty"`
	CriticalCount *int   `json:"critical_count,omitempty" yaml:"critical_count,omitempty"`
	HighCount     *int   `json:"high_count,omitempty" yaml:"high_count,omitempty"`
	MediumCount   *int   `json:"medium_count,omitempty" yaml:"medium_count,omitempty"`
	LowCount      *int   `json:"low_count,omitempty" yaml:"low_count,omitempty"`
	Summary       string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// CountFor returns the reported count for a severity, 0 when absent.
func (r BugReport) CountFor(sev Severity) int {
	var p *int
	switch sev {
	case SeverityCritical:
		p = r.CriticalCount
	case SeverityHigh:
		p = r.HighCount
	case SeverityMedium:
		p = r.MediumCount
	case SeverityLow:
		p = r.LowCount
	}
	return IntOr(p, 0)
}

type TestSummary struct {
	TotalTests *int   `json:"total_tests,omitempty" yaml:"total_tests,omitempty"`
	Passed     *int   `json:"passed,omitempty" yaml:"passed,omitempty"`
	Failed     *int   `json:"failed,omitempty" yaml:"failed,omitempty"`
	PassRate   string `json:"pass_rate,omitempty" yaml:"pass_rate,omitempty"`
}

type SeverityBreakdown struct {
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Count    *int   `json:"count,omitempty" yaml:"count,omitempty"`
	Details  string `json:"details,omitempty" yaml:"details,omitempty"`
}

type RecommendedAction struct {
	Action   string `json:"action,omitempty" yaml:"action,omitempty"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

type CIVerdict struct {
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

type TestReport struct {
	TestSummary          *TestSummary        `json:"test_summary,omitempty" yaml:"test_summary,omitempty"`
	SeverityBreakdown    []SeverityBreakdown `json:"severity_breakdown,omitempty" yaml:"severity_breakdown,omitempty"`
	CoverageObservations string              `json:"coverage_observations,omitempty" yaml:"coverage_observations,omitempty"`
	RecommendedActions   []RecommendedAction `json:"recommended_actions,omitempty" yaml:"recommended_actions,omitempty"`
	CIVerdict            *CIVerdict          `json:"ci_verdict,omitempty" yaml:"ci_verdict,omitempty"`
}

type Notification struct {
	EmailSent  bool     `json:"email_sent" yaml:"email_sent"`
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Reason     string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// AnalysisResult is one normalized agent analysis.
type AnalysisResult struct {
	BugReport    Section[BugReport]    `json:"bug_report,omitzero" yaml:"bug_report,omitempty"`
	TestReport   Section[TestReport]   `json:"test_report,omitzero" yaml:"test_report,omitempty"`
	Notification Section[Notification] `json:"notification,omitzero" yaml:"notification,omitempty"`

	// Extra holds the other payload keys as sent. JSON carries them inline.
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

func isReportKey(key string) bool {
	switch key {
	case "bug_report", "test_report", "notification":
		return true
	}
	return false
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type plain AnalysisResult
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}
	fields := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		if !isReportKey(k) {
			fields[k] = v
		}
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	type plain AnalysisResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		if isReportKey(k) {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	*r = AnalysisResult(p)
	return nil
}

// VerdictStatus returns the CI verdict status, or "" when there is none.
// A raw test report is searched for ci_verdict.status as sent.
func (r AnalysisResult) VerdictStatus() string {
	if tr := r.TestReport.Value; tr != nil {
		if tr.CIVerdict == nil {
			return ""
		}
		return tr.CIVerdict.Status
	}
	if len(r.TestReport.Raw) == 0 {
		return ""
	}
	if v := gjson.GetBytes(r.TestReport.Raw, "ci_verdict.status"); v.Type == gjson.String {
		return v.Str
	}
	return ""
}

// TotalBugs returns the reported bug count and whether one was reported.
// A raw bug report is searched for total_bugs as sent.
func (r AnalysisResult) TotalBugs() (int, bool) {
	if br := r.BugReport.Value; br != nil {
		if br.TotalBugs == nil {
			return 0, false
		}
		return *br.TotalBugs, true
	}
	if len(r.BugReport.Raw) == 0 {
		return 0, false
	}
	return countValue(gjson.GetBytes(r.BugReport.Raw, "total_bugs"))
}

// FilterBugs keeps bugs whose severity is not switched off in enabled.
// Severities missing from enabled stay visible.
func FilterBugs(bugs []Bug, enabled map[Severity]bool) []Bug {
	out := make([]Bug, 0, len(bugs))
	for _, b := range bugs {
		if on, ok := enabled[b.Severity]; ok && !on {
			continue
		}
		out = append(out, b)
	}
	return out
}

func Int(v int) *int {
	return &v
}

func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
