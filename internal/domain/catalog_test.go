package domain

import "testing"

func TestQualitiesReturnsCopy(t *testing.T) {
	qs := Qualities()
	qs[0].Score = 100
	qs[0].VoiceCommands[0] = "changed"

	fresh := Qualities()
	if fresh[0].Score != 5 {
		t.Fatalf("expected catalog score 5, got %d", fresh[0].Score)
	}
	if fresh[0].VoiceCommands[0] != "excellent" {
		t.Fatalf("expected catalog phrases untouched, got %q", fresh[0].VoiceCommands[0])
	}
}

func TestQualityByKeyword(t *testing.T) {
	q, err := QualityByKeyword("good analysis")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if q.Score != 4 {
		t.Fatalf("expected score 4, got %d", q.Score)
	}
	if _, err := QualityByKeyword("nope"); err != ErrUnknownQuality {
		t.Fatalf("expected unknown quality error, got %v", err)
	}
}

func TestParseNameMode(t *testing.T) {
	for _, raw := range []string{"firstName", "lastName", "both"} {
		if _, err := ParseNameMode(raw); err != nil {
			t.Fatalf("mode %q rejected: %v", raw, err)
		}
	}
	if _, err := ParseNameMode("middle"); err != ErrInvalidNameMode {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestStudentCloneDoesNotAlias(t *testing.T) {
	section := "s1"
	s := Student{ID: "a", SectionID: &section, ClassRecords: map[string]ClassRecord{"c1": {TotalScore: 3}}}
	c := s.Clone()
	c.ClassRecords["c1"] = ClassRecord{TotalScore: 9}
	*c.SectionID = "s2"

	if s.ClassRecords["c1"].TotalScore != 3 {
		t.Fatalf("clone aliased class records")
	}
	if *s.SectionID != "s1" {
		t.Fatalf("clone aliased section id")
	}
}
