// Package history keeps the bounded, newest-first list of past analyses.
//
// Store is a value: every mutation returns a new Store and leaves the
// receiver untouched. Persisting the result is the caller's job (see Save).
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"testpilot/internal/domain"

	"github.com/google/uuid"
)

// MaxEntries is the hard cap on stored analyses.
const MaxEntries = 50

// SummaryRunes bounds Entry.InputSummary.
const SummaryRunes = 120

// VerdictAll disables the verdict filter in Query.
const VerdictAll = "all"

// DateLayout is ISO-8601 in UTC with millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one recorded analysis. The JSON keys match the stored format.
type Entry struct {
	ID           string                `json:"id" yaml:"id"`
	Date         string                `json:"date" yaml:"date"`
	InputSummary string                `json:"inputSummary" yaml:"input_summary"`
	FullInput    string                `json:"fullInput" yaml:"full_input"`
	Result       domain.AnalysisResult `json:"result" yaml:"result"`
}

// NewEntry records an accepted analysis of input at now.
func NewEntry(input string, result domain.AnalysisResult, now time.Time) Entry {
	return Entry{
		ID:           uuid.NewString(),
		Date:         now.UTC().Format(DateLayout),
		InputSummary: Summarize(input),
		FullInput:    input,
		Result:       result,
	}
}

// Summarize truncates input to SummaryRunes runes.
func Summarize(input string) string {
	runes := []rune(input)
	if len(runes) <= SummaryRunes {
		return input
	}
	return string(runes[:SummaryRunes])
}

// Time parses Date, returning the zero time when it is malformed.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

type Store struct {
	entries []Entry
}

// New builds a store from entries already in newest-first order.
func New(entries ...Entry) Store {
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return Store{entries: append([]Entry(nil), entries...)}
}

// Append puts e first and evicts the oldest entries beyond MaxEntries.
func (s Store) Append(e Entry) Store {
	n := len(s.entries) + 1
	if n > MaxEntries {
		n = MaxEntries
	}
	next := make([]Entry, 0, n)
	next = append(next, e)
	next = append(next, s.entries[:n-1]...)
	return Store{entries: next}
}

// Remove drops the entry with id. Unknown ids leave the store unchanged.
func (s Store) Remove(id string) Store {
	next := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if len(next) == len(s.entries) {
		return s
	}
	return Store{entries: next}
}

func (s Store) Clear() Store {
	return Store{}
}

// Entries returns a copy of the entries, newest first.
func (s Store) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

func (s Store) Len() int {
	return len(s.entries)
}

// Get returns the entry with id.
func (s Store) Get(id string) (Entry, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

var (
	ErrNotFound  = errors.New("no analysis with that id")
	ErrAmbiguous = errors.New("id prefix matches more than one analysis")
)

// Lookup resolves an exact id or a unique id prefix, as shown in short listings.
func (s Store) Lookup(prefix string) (Entry, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Entry{}, ErrNotFound
	}
	if e, ok := s.Get(prefix); ok {
		return e, nil
	}
	var found []Entry
	for _, e := range s.entries {
		if strings.HasPrefix(e.ID, prefix) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return Entry{}, fmt.Errorf("%w: %s (%d matches)", ErrAmbiguous, prefix, len(found))
	}
}

// Query filters by a case-insensitive substring of InputSummary and by
// verdict key. An empty term and VerdictAll match everything. Entries without
// a verdict never match a specific verdict.
func (s Store) Query(term, verdict string) []Entry {
	term = strings.ToLower(term)
	if verdict == "" {
		verdict = VerdictAll
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if term != "" && !strings.Contains(strings.ToLower(e.InputSummary), term) {
			continue
		}
		if verdict != VerdictAll {
			status := e.Result.VerdictStatus()
			if status == "" || domain.VerdictKey(status) != verdict {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Marshal encodes the entries as the JSON array kept in the persistence slot.
func (s Store) Marshal() ([]byte, error) {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

// Parse decodes a persisted array. Data that is not an array yields an empty
// store, elements that do not decode as entries are skipped, and arrays longer
// than MaxEntries are truncated.
func Parse(data []byte) Store {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Store{}
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil || e.ID == "" {
			continue
		}
		entries = append(entries, e)
	}
	return New(entries...)
}
