// Package detector classifies transcript text and provider audio signals
// into distress results. The detector is pure: it reads the session's prior
// keyword set but never mutates session state — all mutation happens in the
// session package after the result comes back.
package detector

import (
	"sort"
	"strings"
)

// Trigger types attached to distress results and the alerts they raise.
const (
	TriggerKeyword = "explicit-distress-phrase"
	TriggerScream  = "scream"
	TriggerDropout = "silence-then-dropout"
)

// Result is the outcome of evaluating a single transcript event or audio
// window.
type Result struct {
	Confidence  float64
	NewKeywords []string
	TriggerType string
}

// Detector matches configured distress phrases against transcript text.
// Matching is case-insensitive and phrase/substring based.
type Detector struct {
	table   map[string]float64 // lowercased phrase -> confidence
	phrases []string           // sorted, so match order is deterministic
}

// defaultTable is the built-in phrase scoring table, used when no keyword
// list is configured. Scores reflect how unambiguous the phrase is on a
// safety call.
var defaultTable = map[string]float64{
	"help me":         0.9,
	"help":            0.75,
	"call the police": 0.95,
	"call 911":        0.95,
	"i'm scared":      0.8,
	"leave me alone":  0.8,
	"stop following":  0.85,
	"let me go":       0.85,
	"don't hurt me":   0.95,
}

// New builds a detector from a configured keyword list, assigning each
// phrase the given confidence. An empty list falls back to the built-in
// scoring table.
func New(keywords []string, confidence float64) *Detector {
	table := defaultTable
	if len(keywords) > 0 {
		table = make(map[string]float64, len(keywords))
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				table[kw] = confidence
			}
		}
	}

	phrases := make([]string, 0, len(table))
	for p := range table {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)

	return &Detector{table: table, phrases: phrases}
}

// Evaluate scans text for configured distress phrases. prior is the
// session's already-matched keyword set; phrases in it still contribute
// confidence but are not reported as new. Confidence is the maximum score
// across all matched phrases, zero when nothing matches.
func (d *Detector) Evaluate(text string, prior map[string]bool) Result {
	lowered := strings.ToLower(text)

	res := Result{TriggerType: TriggerKeyword}
	for _, phrase := range d.phrases {
		if !strings.Contains(lowered, phrase) {
			continue
		}
		if score := d.table[phrase]; score > res.Confidence {
			res.Confidence = score
		}
		if !prior[phrase] {
			res.NewKeywords = append(res.NewKeywords, phrase)
		}
	}
	if res.Confidence == 0 {
		return Result{}
	}
	return res
}

// EvaluateAudio passes through a provider-scored audio signal (scream
// classifier, dropout detection). The confidence comes from upstream
// unchanged apart from clamping into [0, 1].
func (d *Detector) EvaluateAudio(triggerType string, confidence float64) Result {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence == 0 {
		return Result{}
	}
	return Result{Confidence: confidence, TriggerType: triggerType}
}
