package domain

import "strings"

// ParticipationQuality is a catalog entry. Records hold a copy, so later catalog
// edits never rewrite history.
type ParticipationQuality struct {
	Keyword       string   `json:"keyword"`
	Color         string   `json:"color"`
	Score         int      `json:"score"`
	Description   string   `json:"description"`
	VoiceCommands []string `json:"voiceCommands"`
}

// Catalog order is match priority: the first entry matching a transcript wins.
var qualityCatalog = []ParticipationQuality{
	{
		Keyword:       "Excellent",
		Color:         "emerald",
		Score:         5,
		Description:   "Outstanding contribution",
		VoiceCommands: []string{"excellent", "outstanding", "perfect", "brilliant", "amazing"},
	},
	{
		Keyword:       "Good Analysis",
		Color:         "blue",
		Score:         4,
		Description:   "Well-reasoned response",
		VoiceCommands: []string{"good analysis", "well reasoned", "analytical", "thoughtful", "insightful"},
	},
	{
		Keyword:       "Critical Thinking",
		Color:         "purple",
		Score:         4,
		Description:   "Deep analytical insight",
		VoiceCommands: []string{"critical thinking", "critical", "deep analysis", "complex", "thorough"},
	},
	{
		Keyword:       "Creative Input",
		Color:         "indigo",
		Score:         4,
		Description:   "Innovative perspective",
		VoiceCommands: []string{"creative", "innovative", "original", "unique", "imaginative"},
	},
	{
		Keyword:       "Basic Response",
		Color:         "amber",
		Score:         2,
		Description:   "Simple contribution",
		VoiceCommands: []string{"basic", "simple", "standard", "okay", "fair"},
	},
	{
		Keyword:       "Off Topic",
		Color:         "red",
		Score:         1,
		Description:   "Unrelated to discussion",
		VoiceCommands: []string{"off topic", "unrelated", "irrelevant", "distracted", "unfocused"},
	},
}

// Qualities returns a copy of the catalog in priority order.
func Qualities() []ParticipationQuality {
	out := make([]ParticipationQuality, len(qualityCatalog))
	for i, q := range qualityCatalog {
		q.VoiceCommands = append([]string(nil), q.VoiceCommands...)
		out[i] = q
	}
	return out
}

// DefaultQuality is the fallback when a transcript names no quality.
func DefaultQuality() ParticipationQuality {
	return Qualities()[0]
}

// QualityByKeyword looks up a catalog entry by its label, ignoring case.
func QualityByKeyword(keyword string) (ParticipationQuality, error) {
	for _, q := range Qualities() {
		if strings.EqualFold(q.Keyword, keyword) {
			return q, nil
		}
	}
	return ParticipationQuality{}, ErrUnknownQuality
}

var (
	// StartCommands switch participation tracking on.
	StartCommands = []string{
		"start recording",
		"begin recording",
		"start tracking",
		"begin tracking",
		"start monitoring",
		"begin monitoring",
	}
	// StopCommands switch participation tracking off.
	StopCommands = []string{
		"stop recording",
		"end recording",
		"stop tracking",
		"end tracking",
		"stop monitoring",
		"end monitoring",
	}
	// ParticipationTriggers are verbs that mark a transcript as describing participation.
	ParticipationTriggers = []string{
		"participates",
		"answers",
		"responds",
		"contributes",
		"shares",
		"asks",
		"comments",
		"explains",
		"discusses",
		"presents",
	}
)
