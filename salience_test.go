package cortex

import "testing"

func TestAnalyzeDetectsExplicitRequest(t *testing.T) {
	f := Analyze("", "Please remember this: always run tests before pushing.")
	if !f.ExplicitRequest {
		t.Error("expected ExplicitRequest to be true")
	}
}

func TestAnalyzeMentionCountAlwaysPositive(t *testing.T) {
	f := Analyze("", "nothing notable here")
	if f.MentionCount < 1 {
		t.Errorf("expected MentionCount >= 1, got %d", f.MentionCount)
	}
}

func TestAnalyzeDetectsCodeReference(t *testing.T) {
	f := Analyze("", "the bug was in `store.go:42` inside InsertMemory()")
	if !f.HasCodeReference {
		t.Error("expected HasCodeReference to be true")
	}
}

func TestCalculateBaseline(t *testing.T) {
	f := SalienceFactors{MentionCount: 1}
	score := Calculate(f)
	// 0.25 base + 0.03*log2(1+1) for the minimum mention count of 1
	if score < 0.27 || score > 0.29 {
		t.Errorf("expected baseline ~0.28, got %f", score)
	}
}

func TestCalculateClampedToOne(t *testing.T) {
	f := SalienceFactors{
		ExplicitRequest: true, IsArchitectureDecision: true, IsErrorResolution: true,
		IsCodePattern: true, IsUserPreference: true, MentionCount: 1000,
		HasCodeReference: true, EmotionalMarkers: true,
	}
	if score := Calculate(f); score > 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", score)
	}
}

func TestExplainReportsSignals(t *testing.T) {
	f := SalienceFactors{IsArchitectureDecision: true}
	if got := Explain(f); got != "architecture decision" {
		t.Errorf("expected single-reason explanation, got %q", got)
	}
}

func TestExplainNoSignals(t *testing.T) {
	if got := Explain(SalienceFactors{}); got != "baseline salience, no strong signals" {
		t.Errorf("unexpected explanation: %q", got)
	}
}

func TestDetectCategoryArchitecture(t *testing.T) {
	f := Analyze("", "we decided to use a single SQLite connection for writes")
	if cat := detectCategory("", "we decided to use a single SQLite connection", f); cat != CategoryArchitecture {
		t.Errorf("expected architecture, got %s", cat)
	}
}

func TestDetectCategoryFallsBackToNote(t *testing.T) {
	f := Analyze("", "the sky is blue today")
	if cat := detectCategory("", "the sky is blue today", f); cat != CategoryNote {
		t.Errorf("expected note, got %s", cat)
	}
}
