// Package matching turns a finalized transcript into commands, students and
// participation qualities. Every function is pure and reports "no match"
// instead of failing.
package matching

import (
	"strings"
	"unicode"

	"participation-tracker/internal/domain"
)

// MatchesCommand reports whether transcript contains any phrase as a literal,
// case-insensitive substring.
func MatchesCommand(transcript string, phrases []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(transcript))
	for _, phrase := range phrases {
		if strings.Contains(normalized, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// ResolveStudent returns the first roster entry named in transcript.
// Duplicate names are not disambiguated: roster order decides.
func ResolveStudent(transcript string, roster []domain.Student, mode domain.NameMode) (domain.Student, bool) {
	lowered := strings.ToLower(transcript)
	words := tokens(lowered)

	for _, student := range roster {
		first := strings.ToLower(student.FirstName)
		last := strings.ToLower(student.LastName)

		switch mode {
		case domain.NameModeFirst:
			if first != "" && words[first] {
				return student, true
			}
		case domain.NameModeLast:
			if last != "" && words[last] {
				return student, true
			}
		case domain.NameModeBoth:
			if strings.Contains(lowered, first+" "+last) || strings.Contains(lowered, last+" "+first) {
				return student, true
			}
		}
	}
	return domain.Student{}, false
}

// ClassifyQuality returns the first catalog quality whose keyword or any voice
// command occurs in transcript.
func ClassifyQuality(transcript string) (domain.ParticipationQuality, bool) {
	lowered := strings.ToLower(transcript)
	for _, quality := range domain.Qualities() {
		if strings.Contains(lowered, strings.ToLower(quality.Keyword)) {
			return quality, true
		}
		for _, phrase := range quality.VoiceCommands {
			if strings.Contains(lowered, strings.ToLower(phrase)) {
				return quality, true
			}
		}
	}
	return domain.ParticipationQuality{}, false
}

// Keywords splits a transcript into its words in spoken order.
func Keywords(transcript string) []string {
	return strings.Fields(transcript)
}

// tokens builds a set of whitespace-separated words with surrounding
// punctuation trimmed, so "john," still matches "john" exactly.
func tokens(lowered string) map[string]bool {
	fields := strings.Fields(lowered)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f != "" {
			set[f] = true
		}
	}
	return set
}
