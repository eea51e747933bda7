package cortex

import (
	"math"
	"regexp"
	"strings"
)

// SalienceFactors are the boolean/numeric cues analyze() extracts from a
// memory's title and content. calculate() turns these into a salience score.
type SalienceFactors struct {
	ExplicitRequest        bool
	IsArchitectureDecision bool
	IsErrorResolution      bool
	IsCodePattern          bool
	IsUserPreference       bool
	MentionCount           int // always >= 1
	HasCodeReference       bool
	EmotionalMarkers       bool
}

// keywordBag is the fixed keyword/phrase set analyze() matches against.
// Held in a package variable (not a literal embedded in analyze) so it can
// be changed in one place; it is unexported, so code outside this package
// cannot override it.
var keywordBag = struct {
	explicitRequest []string
	architecture    []string
	errorResolution []string
	codePattern     []string
	userPreference  []string
}{
	explicitRequest: []string{
		"remember this", "remember that", "please remember", "make a note",
		"note this", "keep in mind", "don't forget", "important:", "for future reference",
	},
	architecture: []string{
		"architecture", "design decision", "we decided to", "chose to use",
		"tradeoff", "trade-off", "the reason we", "decided against", "system design",
	},
	errorResolution: []string{
		"fixed", "bug", "error", "root cause", "resolved by", "the fix was",
		"turned out to be", "was caused by", "workaround",
	},
	codePattern: []string{
		"pattern", "convention", "always use", "should use", "best practice",
		"the way we", "idiom", "helper function", "utility",
	},
	userPreference: []string{
		"i prefer", "i like", "i want", "please use", "from now on",
		"my preference", "i don't like", "avoid using",
	},
}

var (
	codeReferenceRe = regexp.MustCompile("`[^`]+`|\\.go:\\d+|\\b[A-Za-z_][A-Za-z0-9_]*\\([^)]*\\)|\\b[a-z0-9_]+\\.[a-z0-9_]+\\(")
	emotionalRe     = regexp.MustCompile(`(?i)\b(frustrat\w*|annoying|great|love|hate|awesome|terrible|finally|ugh|nice|painful)\b`)
)

// Analyze derives SalienceFactors from a memory's title and content.
func Analyze(title, content string) SalienceFactors {
	text := strings.ToLower(title + " " + content)

	var f SalienceFactors
	f.ExplicitRequest = containsAny(text, keywordBag.explicitRequest)
	f.IsArchitectureDecision = containsAny(text, keywordBag.architecture)
	f.IsErrorResolution = containsAny(text, keywordBag.errorResolution)
	f.IsCodePattern = containsAny(text, keywordBag.codePattern)
	f.IsUserPreference = containsAny(text, keywordBag.userPreference)

	count := countAny(text, keywordBag.explicitRequest) +
		countAny(text, keywordBag.architecture) +
		countAny(text, keywordBag.errorResolution) +
		countAny(text, keywordBag.codePattern) +
		countAny(text, keywordBag.userPreference)
	f.MentionCount = count + 1 // always >= 1

	f.HasCodeReference = codeReferenceRe.MatchString(title + " " + content)
	f.EmotionalMarkers = emotionalRe.MatchString(text)

	return f
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func countAny(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(text, p)
	}
	return n
}

// Calculate turns SalienceFactors into a salience score in [0, 1], per the
// weighted formula below.
func Calculate(f SalienceFactors) float64 {
	s := 0.25
	if f.ExplicitRequest {
		s += 0.3
	}
	if f.IsArchitectureDecision {
		s += 0.2
	}
	if f.IsErrorResolution {
		s += 0.15
	}
	if f.IsCodePattern {
		s += 0.1
	}
	if f.IsUserPreference {
		s += 0.1
	}
	s += math.Min(0.15, 0.03*math.Log2(float64(f.MentionCount)+1))
	if f.HasCodeReference {
		s += 0.05
	}
	if f.EmotionalMarkers {
		s += 0.05
	}
	return clamp01(s)
}

// Explain renders a one-line human-readable reason for calculate()'s score,
// used only in the caller-facing response.
func Explain(f SalienceFactors) string {
	var reasons []string
	if f.ExplicitRequest {
		reasons = append(reasons, "explicit remember request")
	}
	if f.IsArchitectureDecision {
		reasons = append(reasons, "architecture decision")
	}
	if f.IsErrorResolution {
		reasons = append(reasons, "error resolution")
	}
	if f.IsCodePattern {
		reasons = append(reasons, "code pattern")
	}
	if f.IsUserPreference {
		reasons = append(reasons, "user preference")
	}
	if f.HasCodeReference {
		reasons = append(reasons, "references code")
	}
	if f.EmotionalMarkers {
		reasons = append(reasons, "emotional emphasis")
	}
	if len(reasons) == 0 {
		return "baseline salience, no strong signals"
	}
	return strings.Join(reasons, ", ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// detectCategory infers a Category from title/content when the caller does
// not supply one explicitly. Mirrors the same keyword bag analyze() uses.
func detectCategory(title, content string, f SalienceFactors) Category {
	text := strings.ToLower(title + " " + content)
	switch {
	case f.IsArchitectureDecision:
		return CategoryArchitecture
	case f.IsErrorResolution:
		return CategoryError
	case f.IsCodePattern:
		return CategoryPattern
	case f.IsUserPreference:
		return CategoryPreference
	case strings.Contains(text, "todo") || strings.Contains(text, "to-do") || strings.Contains(text, "need to"):
		return CategoryTodo
	case strings.Contains(text, "learned") || strings.Contains(text, "turns out") || strings.Contains(text, "realized"):
		return CategoryLearning
	default:
		return CategoryNote
	}
}
