package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"testpilot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultWith(total *int, verdict string) domain.AnalysisResult {
	r := domain.AnalysisResult{BugReport: domain.Decoded(domain.BugReport{TotalBugs: total})}
	if verdict != "" {
		r.TestReport = domain.Decoded(domain.TestReport{CIVerdict: &domain.CIVerdict{Status: verdict}})
	}
	return r
}

func entry(id, summary string, total *int, verdict string) Entry {
	return Entry{ID: id, Date: "2026-10-19T08:00:00.000Z", InputSummary: summary, FullInput: summary, Result: resultWith(total, verdict)}
}

func TestNewEntry(t *testing.T) {
	input := strings.Repeat("é", 130)
	now := time.Date(2026, 10, 19, 10, 30, 0, 123456789, time.FixedZone("CEST", 2*3600))
	e := NewEntry(input, resultWith(domain.Int(1), ""), now)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "2026-10-19T08:30:00.123Z", e.Date)
	assert.Equal(t, 120, len([]rune(e.InputSummary)))
	assert.Equal(t, input, e.FullInput)
	assert.True(t, now.Truncate(time.Millisecond).Equal(e.Time()))

	other := NewEntry(input, domain.AnalysisResult{}, now)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestSummarizeShortInput(t *testing.T) {
	assert.Equal(t, "short", Summarize("short"))
	exact := strings.Repeat("a", SummaryRunes)
	assert.Equal(t, exact, Summarize(exact))
}

func TestAppendNewestFirstAndCapped(t *testing.T) {
	var s Store
	for i := 0; i < 60; i++ {
		s = s.Append(entry(fmt.Sprint(i), "run", domain.Int(i), ""))
		require.LessOrEqual(t, s.Len(), MaxEntries)
	}
	entries := s.Entries()
	require.Len(t, entries, MaxEntries)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprint(59-i), e.ID)
	}
}

func TestAppendDoesNotMutateReceiver(t *testing.T) {
	base := New(entry("a", "a", nil, ""), entry("b", "b", nil, ""))
	next := base.Append(entry("c", "c", nil, ""))

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, "a", base.Entries()[0].ID)
	assert.Equal(t, "c", next.Entries()[0].ID)

	full := Store{}
	for i := 0; i < MaxEntries; i++ {
		full = full.Append(entry(fmt.Sprint(i), "x", nil, ""))
	}
	before := full.Entries()
	_ = full.Append(entry("new", "x", nil, ""))
	assert.Equal(t, before, full.Entries())
}

func TestEntriesReturnsCopy(t *testing.T) {
	s := New(entry("a", "a", nil, ""))
	got := s.Entries()
	got[0].ID = "mutated"
	assert.Equal(t, "a", s.Entries()[0].ID)
}

func TestRemove(t *testing.T) {
	s := New(entry("a", "a", nil, ""), entry("b", "b", nil, ""), entry("c", "c", nil, ""))

	removed := s.Remove("b")
	require.Equal(t, 2, removed.Len())
	assert.Equal(t, "a", removed.Entries()[0].ID)
	assert.Equal(t, "c", removed.Entries()[1].ID)
	assert.Equal(t, 3, s.Len())

	same := s.Remove("missing")
	assert.Equal(t, s.Entries(), same.Entries())

	_, ok := removed.Get("b")
	assert.False(t, ok)
	got, ok := removed.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "c", got.ID)
}

func TestLookup(t *testing.T) {
	s := New(entry("3f2a9c1e-aaaa", "a", nil, ""), entry("3f2a0000-bbbb", "b", nil, ""), entry("77", "c", nil, ""))

	got, err := s.Lookup("3f2a9")
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c1e-aaaa", got.ID)

	got, err = s.Lookup("77")
	require.NoError(t, err)
	assert.Equal(t, "77", got.ID)

	_, err = s.Lookup("3f2a")
	assert.ErrorIs(t, err, ErrAmbiguous)
	_, err = s.Lookup("zz")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Lookup("  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	s := New(entry("a", "a", nil, ""))
	assert.Equal(t, 0, s.Clear().Len())
	assert.Equal(t, 1, s.Len())
}

func TestQuery(t *testing.T) {
	s := New(
		entry("1", "Login FAILS on expired token", domain.Int(3), "Deploy Blocked"),
		entry("2", "checkout flow green", domain.Int(0), "safe_to_deploy"),
		entry("3", "login redirect loop", domain.Int(1), ""),
		entry("4", "flaky search", domain.Int(2), "needs  attention"),
	)

	assert.Equal(t, s.Entries(), s.Query("", VerdictAll))
	assert.Equal(t, s.Entries(), s.Query("", ""))

	ids := func(es []Entry) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "3"}, ids(s.Query("LOGIN", VerdictAll)))
	assert.Equal(t, []string{"1"}, ids(s.Query("", "deploy_blocked")))
	assert.Equal(t, []string{"4"}, ids(s.Query("", "needs_attention")))
	assert.Equal(t, []string{"1"}, ids(s.Query("login", "deploy_blocked")))
	assert.Empty(t, s.Query("checkout", "deploy_blocked"))
	assert.Empty(t, s.Query("nothing matches", VerdictAll))
}

func TestQueryIgnoresRawTestReport(t *testing.T) {
	e := entry("raw", "raw report", nil, "")
	e.Result.TestReport = domain.Section[domain.TestReport]{Raw: []byte(`"plain text verdict"`)}
	s := New(e)
	assert.Empty(t, s.Query("", "plain_text_verdict"))
	assert.Len(t, s.Query("", VerdictAll), 1)
}

func TestTrendAt(t *testing.T) {
	view := []Entry{
		entry("a", "a", domain.Int(5), ""),
		entry("b", "b", domain.Int(3), ""),
		entry("c", "c", domain.Int(3), ""),
		entry("d", "d", domain.Int(4), ""),
		entry("e", "e", nil, ""),
		entry("f", "f", domain.Int(1), ""),
	}
	assert.Equal(t, TrendIncreasing, TrendAt(view, 0))
	assert.Equal(t, TrendFlat, TrendAt(view, 1))
	assert.Equal(t, TrendDecreasing, TrendAt(view, 2))
	assert.Equal(t, TrendUndefined, TrendAt(view, 3))
	assert.Equal(t, TrendUndefined, TrendAt(view, 4))
	assert.Equal(t, TrendUndefined, TrendAt(view, 5))
	assert.Equal(t, TrendUndefined, TrendAt(view, -1))
	assert.Equal(t, TrendUndefined, TrendAt(nil, 0))
	assert.Equal(t, "increasing", TrendIncreasing.String())
}

func TestMarshalParseRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, MaxEntries} {
		var s Store
		for i := 0; i < n; i++ {
			e := NewEntry(fmt.Sprintf("input %d", i), resultWith(domain.Int(i), "needs_attention"), time.Now())
			if i%3 == 0 {
				e.Result.BugReport = domain.Section[domain.BugReport]{Raw: []byte(`"unparsed text"`)}
			}
			s = s.Append(e)
		}
		data, err := s.Marshal()
		require.NoError(t, err)
		assert.Equal(t, s.Entries(), Parse(data).Entries(), "n=%d", n)
	}
}

func TestMarshalUsesStoredKeys(t *testing.T) {
	data, err := New(entry("a", "sum", domain.Int(1), "")).Marshal()
	require.NoError(t, err)
	for _, key := range []string{`"id"`, `"date"`, `"inputSummary"`, `"fullInput"`, `"result"`} {
		assert.Contains(t, string(data), key)
	}

	empty, err := Store{}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestParseRecoversSilently(t *testing.T) {
	for _, data := range []string{"", "not json", `{"id":"a"}`, `"text"`, "42", "null"} {
		assert.Equal(t, 0, Parse([]byte(data)).Len(), "data %q", data)
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	raw := `[
		{"id":1729,"date":"2026-10-19T09:00:00.000Z","inputSummary":"bad","fullInput":"bad","result":{}},
		{"id":"keep","date":"2026-10-19T08:00:00.000Z","inputSummary":"x","fullInput":"x","result":{}},
		null,
		"junk",
		{"id":"","date":"2026-10-19T07:00:00.000Z","result":{}}
	]`
	s := Parse([]byte(raw))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "keep", s.Entries()[0].ID)
}

func TestLooselyTypedReportsKeepVerdictAndTrend(t *testing.T) {
	raw := `[
		{"id":"new","date":"2026-10-19T09:00:00.000Z","inputSummary":"checkout","fullInput":"checkout",
		 "result":{"bug_report":{"total_bugs":"4","high_count":1.0},
		           "test_report":{"test_summary":{"pass_rate":84.2},"ci_verdict":{"status":"deploy_blocked"}}}},
		{"id":"old","date":"2026-10-18T09:00:00.000Z","inputSummary":"login","fullInput":"login",
		 "result":{"bug_report":{"total_bugs":3.0,"critical_count":"n/a"},
		           "test_report":{"ci_verdict":"needs_attention"}}}
	]`
	s := Parse([]byte(raw))
	require.Equal(t, 2, s.Len())

	blocked := s.Query("", "deploy_blocked")
	require.Len(t, blocked, 1)
	assert.Equal(t, "new", blocked[0].ID)
	assert.Len(t, s.Query("", "needs_attention"), 1)

	// "n/a" has no count form, so the older bug report stays raw; its total still reads.
	assert.True(t, s.Entries()[1].Result.BugReport.IsRaw())
	assert.Equal(t, TrendIncreasing, TrendAt(s.Entries(), 0))
}

func TestParseTruncates(t *testing.T) {
	entries := make([]Entry, 0, 70)
	for i := 0; i < 70; i++ {
		entries = append(entries, entry(fmt.Sprint(i), "x", nil, ""))
	}
	raw := "["
	for i, e := range entries {
		if i > 0 {
			raw += ","
		}
		raw += fmt.Sprintf(`{"id":%q,"date":%q,"inputSummary":"x","fullInput":"x","result":{}}`, e.ID, e.Date)
	}
	raw += "]"
	s := Parse([]byte(raw))
	require.Equal(t, MaxEntries, s.Len())
	assert.Equal(t, "0", s.Entries()[0].ID)
	assert.Equal(t, "49", s.Entries()[MaxEntries-1].ID)
}

type failingSlot struct{}

func (failingSlot) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}

func (failingSlot) Set(context.Context, string, []byte) error {
	return errors.New("disk gone")
}

func TestLoadSave(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot()

	assert.Equal(t, 0, Load(ctx, slot, DefaultKey).Len())

	s := New(entry("a", "a", domain.Int(2), "safe_to_deploy"))
	Save(ctx, slot, DefaultKey, s)
	assert.Equal(t, s.Entries(), Load(ctx, slot, DefaultKey).Entries())

	require.NoError(t, slot.Set(ctx, DefaultKey, []byte(`{"not":"an array"}`)))
	assert.Equal(t, 0, Load(ctx, slot, DefaultKey).Len())
}

func TestLoadSaveSwallowFailures(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, Load(ctx, failingSlot{}, DefaultKey).Len())
	assert.NotPanics(t, func() {
		Save(ctx, failingSlot{}, DefaultKey, New(entry("a", "a", nil, "")))
	})
}
