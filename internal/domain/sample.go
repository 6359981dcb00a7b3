package domain

import "encoding/json"

// SampleInput is a canned test run used by `analyze --sample` and demos.
const SampleInput = `--- FAIL: TestSessionRefresh (0.02s)
    session_test.go:88: refresh with expired token: panic: runtime error: invalid memory address or nil pointer dereference
        at auth.(*Validator).Claims (internal/auth/jwt.go:42)
        at auth.RefreshSession (internal/auth/session.go:67)
--- FAIL: TestListUsersRequiresAdmin (0.01s)
    users_test.go:23: GET /api/users as viewer: got status 200, want 403
--- FAIL: TestCreateUserRejectsBadEmail (0.01s)
    users_test.go:45: POST /api/users with "not-an-email": got status 201, want 400
ok  	example.com/app/internal/health	0.004s
ok  	example.com/app/internal/format	0.006s
ok  	example.com/app/internal/ui	0.011s
FAIL	example.com/app/internal/auth	0.031s
FAIL	example.com/app/internal/api	0.042s

Tests: 3 failed, 16 passed, 19 total`

const sampleResultJSON = `{
  "bug_report": {
    "bugs": [
      {
        "title": "Nil claims dereference when refreshing an expired session",
        "severity": "critical",
        "description": "RefreshSession panics when the token is expired because Claims returns a nil map that is indexed without a check.",
        "root_cause": "Validator.Claims returns (nil, nil) for expired tokens and the caller reads claims[\"exp\"] directly.",
        "suggested_fix": "Return a typed ErrTokenExpired from Claims and handle it in RefreshSession before touching the claims map."
      },
      {
        "title": "Viewer role can list all users",
        "severity": "high",
        "description": "GET /api/users returns 200 for a viewer token instead of 403.",
        "root_cause": "The admin middleware is registered on the POST route only.",
        "suggested_fix": "Mount the admin middleware on the /api/users route group instead of individual handlers."
      },
      {
        "title": "User creation accepts malformed email",
        "severity": "medium",
        "description": "POST /api/users stores \"not-an-email\" and returns 201.",
        "root_cause": "CreateUserRequest has no validation tag on Email.",
        "suggested_fix": "Validate Email with net/mail.ParseAddress in the request decoder."
      }
    ],
    "total_bugs": 3,
    "critical_count": 1,
    "high_count": 1,
    "medium_count": 1,
    "low_count": 0,
    "summary": "3 bugs across 2 failing packages: a critical panic in session refresh, an authorization gap on the user list, and missing email validation."
  },
  "test_report": {
    "test_summary": {
      "total_tests": 19,
      "passed": 16,
      "failed": 3,
      "pass_rate": "84.2%"
    },
    "severity_breakdown": [
      {"severity": "critical", "count": 1, "details": "Panic in session refresh for expired tokens"},
      {"severity": "high", "count": 1, "details": "Authorization gap on user listing"},
      {"severity": "medium", "count": 1, "details": "Missing email validation on user creation"}
    ],
    "coverage_observations": "Failures cluster in auth and api; health, format and ui packages pass. Both failing packages sit on security-sensitive paths.",
    "recommended_actions": [
      {"action": "Handle expired tokens in internal/auth/jwt.go", "priority": "critical", "reason": "Every refresh with an expired token crashes the handler"},
      {"action": "Mount admin middleware on the users route group", "priority": "high", "reason": "Viewer accounts can read the full user list"},
      {"action": "Validate email on user creation", "priority": "medium", "reason": "Malformed addresses reach the database"},
      {"action": "Add table tests for token expiry edge cases", "priority": "low", "reason": "Expiry handling has no direct coverage"}
    ],
    "ci_verdict": {
      "status": "deploy_blocked",
      "reasoning": "A critical panic and a high-severity authorization gap on security-sensitive paths must be fixed before deploying."
    }
  }
}`

// SampleResult returns the analysis that pairs with SampleInput.
func SampleResult() AnalysisResult {
	var r AnalysisResult
	if err := json.Unmarshal([]byte(sampleResultJSON), &r); err != nil {
		panic("domain: invalid sample result: " + err.Error())
	}
	return r
}
