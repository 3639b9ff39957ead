package matching

import (
	"testing"

	"participation-tracker/internal/domain"
)

func TestMatchesCommand(t *testing.T) {
	cases := []struct {
		transcript string
		want       bool
	}{
		{"  Please START Tracking now ", true},
		{"okay begin monitoring", true},
		{"start the recording", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := MatchesCommand(tc.transcript, domain.StartCommands); got != tc.want {
			t.Fatalf("MatchesCommand(%q) = %v, want %v", tc.transcript, got, tc.want)
		}
	}
}

func TestResolveStudentModes(t *testing.T) {
	roster := []domain.Student{{ID: "s1", FirstName: "John", LastName: "Smith"}}

	if s, ok := ResolveStudent("john answers", roster, domain.NameModeFirst); !ok || s.ID != "s1" {
		t.Fatalf("expected first-name match, got %+v ok=%v", s, ok)
	}
	if _, ok := ResolveStudent("john answers", roster, domain.NameModeLast); ok {
		t.Fatalf("expected no last-name match")
	}
	if _, ok := ResolveStudent("john answers", roster, domain.NameModeBoth); ok {
		t.Fatalf("expected no full-name match")
	}
	if _, ok := ResolveStudent("well smith john answers", roster, domain.NameModeBoth); !ok {
		t.Fatalf("expected reversed full-name match")
	}
	if _, ok := ResolveStudent("xjohn smithy answers", roster, domain.NameModeBoth); !ok {
		t.Fatalf("expected substring full-name match")
	}
}

func TestResolveStudentRequiresWholeToken(t *testing.T) {
	roster := []domain.Student{{ID: "al", FirstName: "Al", LastName: "Jones"}}

	if _, ok := ResolveStudent("alice answers", roster, domain.NameModeFirst); ok {
		t.Fatalf("partial word must not match")
	}
	if _, ok := ResolveStudent("thanks, al. you answered", roster, domain.NameModeFirst); !ok {
		t.Fatalf("expected punctuation-trimmed token match")
	}
}

func TestResolveStudentFirstRosterMatchWins(t *testing.T) {
	roster := []domain.Student{
		{ID: "first", FirstName: "Sam", LastName: "Lee"},
		{ID: "second", FirstName: "Sam", LastName: "Kim"},
	}
	s, ok := ResolveStudent("sam answers", roster, domain.NameModeFirst)
	if !ok || s.ID != "first" {
		t.Fatalf("expected first roster entry, got %+v", s)
	}
}

func TestClassifyQualityCatalogPriority(t *testing.T) {
	// "thoughtful" belongs to Good Analysis, "brilliant" to Excellent; Excellent is earlier.
	for i := 0; i < 3; i++ {
		q, ok := ClassifyQuality("a thoughtful and brilliant answer")
		if !ok || q.Keyword != "Excellent" {
			t.Fatalf("expected Excellent, got %+v ok=%v", q, ok)
		}
	}

	q, ok := ClassifyQuality("that was off topic")
	if !ok || q.Keyword != "Off Topic" {
		t.Fatalf("expected Off Topic, got %+v", q)
	}
	q, ok = ClassifyQuality("Critical Thinking shown")
	if !ok || q.Score != 4 {
		t.Fatalf("expected keyword label match, got %+v", q)
	}
	if _, ok := ClassifyQuality("nothing to see"); ok {
		t.Fatalf("expected no quality")
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("  john   answers well ")
	want := []string{"john", "answers", "well"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
