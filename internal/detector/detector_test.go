package detector

import (
	"reflect"
	"testing"
)

func TestEvaluate_KeywordMatch(t *testing.T) {
	det := New([]string{"help me", "call the police"}, 0.9)

	res := det.Evaluate("Help me please", nil)
	if res.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %f", res.Confidence)
	}
	if !reflect.DeepEqual(res.NewKeywords, []string{"help me"}) {
		t.Errorf("expected [help me], got %v", res.NewKeywords)
	}
	if res.TriggerType != TriggerKeyword {
		t.Errorf("expected trigger type %s, got %s", TriggerKeyword, res.TriggerType)
	}
}

func TestEvaluate_CaseInsensitive(t *testing.T) {
	det := New([]string{"call the police"}, 0.95)

	res := det.Evaluate("CALL THE POLICE right now", nil)
	if res.Confidence != 0.95 {
		t.Errorf("expected match regardless of case, got confidence %f", res.Confidence)
	}
}

func TestEvaluate_NoMatch(t *testing.T) {
	det := New([]string{"help me"}, 0.9)

	res := det.Evaluate("lovely weather today", nil)
	if res.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", res.Confidence)
	}
	if len(res.NewKeywords) != 0 {
		t.Errorf("expected no keywords, got %v", res.NewKeywords)
	}
	if res.TriggerType != "" {
		t.Errorf("expected empty trigger type on no match, got %s", res.TriggerType)
	}
}

func TestEvaluate_PriorKeywordsNotReportedAsNew(t *testing.T) {
	det := New([]string{"help me"}, 0.9)
	prior := map[string]bool{"help me": true}

	res := det.Evaluate("help me again", prior)
	if res.Confidence != 0.9 {
		t.Errorf("repeated phrase should still carry confidence, got %f", res.Confidence)
	}
	if len(res.NewKeywords) != 0 {
		t.Errorf("already-matched phrase reported as new: %v", res.NewKeywords)
	}
}

func TestEvaluate_MultipleMatches(t *testing.T) {
	det := New(nil, 0) // built-in table

	res := det.Evaluate("HELP ME, call the police", nil)
	if res.Confidence != 0.95 {
		t.Errorf("expected max score 0.95 across matches, got %f", res.Confidence)
	}
	// Sorted phrase order keeps the report deterministic.
	want := []string{"call the police", "help", "help me"}
	if !reflect.DeepEqual(res.NewKeywords, want) {
		t.Errorf("expected %v, got %v", want, res.NewKeywords)
	}
}

func TestEvaluate_TrimsAndLowersConfiguredKeywords(t *testing.T) {
	det := New([]string{"  Let Me GO  ", ""}, 0.8)

	res := det.Evaluate("please let me go", nil)
	if res.Confidence != 0.8 {
		t.Errorf("expected configured phrase to match, got confidence %f", res.Confidence)
	}
	if !reflect.DeepEqual(res.NewKeywords, []string{"let me go"}) {
		t.Errorf("expected normalized phrase, got %v", res.NewKeywords)
	}
}

func TestEvaluateAudio_Passthrough(t *testing.T) {
	det := New(nil, 0)

	res := det.EvaluateAudio(TriggerScream, 0.85)
	if res.Confidence != 0.85 {
		t.Errorf("expected passthrough confidence 0.85, got %f", res.Confidence)
	}
	if res.TriggerType != TriggerScream {
		t.Errorf("expected trigger %s, got %s", TriggerScream, res.TriggerType)
	}
	if len(res.NewKeywords) != 0 {
		t.Errorf("audio signal should carry no keywords, got %v", res.NewKeywords)
	}
}

func TestEvaluateAudio_Clamps(t *testing.T) {
	det := New(nil, 0)

	if res := det.EvaluateAudio(TriggerScream, 1.7); res.Confidence != 1 {
		t.Errorf("expected clamp to 1, got %f", res.Confidence)
	}
	if res := det.EvaluateAudio(TriggerScream, -0.2); res.Confidence != 0 {
		t.Errorf("expected clamp to 0, got %f", res.Confidence)
	}
	if res := det.EvaluateAudio(TriggerScream, 0); res.TriggerType != "" {
		t.Errorf("zero-confidence signal should be empty, got %+v", res)
	}
}
