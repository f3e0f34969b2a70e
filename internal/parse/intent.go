package parse

import (
	"regexp"
	"sync"
)

// IntentKind distinguishes a claim from a voluntary pass.
type IntentKind string

const (
	IntentClaim IntentKind = "claim"
	IntentPass  IntentKind = "pass"
)

// Intent is the parsed meaning of a comment.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	SlotNumber string     `json:"slotNumber"`
}

// keywordPatterns are checked in order: "<word> <digits>", "<word><digits>", "<digits> <word>".
type keywordPatterns [3]*regexp.Regexp

var patternCache sync.Map // normalized keyword -> *keywordPatterns

func patternsFor(word string) *keywordPatterns {
	if p, ok := patternCache.Load(word); ok {
		return p.(*keywordPatterns)
	}

	q := regexp.QuoteMeta(word)
	p := &keywordPatterns{
		regexp.MustCompile(`\b` + q + ` (\d+)\b`),
		regexp.MustCompile(`\b` + q + `(\d+)\b`),
		regexp.MustCompile(`\b(\d+) ` + q + `\b`),
	}
	actual, _ := patternCache.LoadOrStore(word, p)
	return actual.(*keywordPatterns)
}

func match(text, word string) (string, bool) {
	if word == "" {
		return "", false
	}
	for _, re := range patternsFor(word) {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseIntent scans normalized text for the claim word or pass word adjacent to a number.
// The claim word is checked first, so a comment matching both resolves as a claim.
// It returns nil when no intent is present.
func ParseIntent(normalized, claimWord, passWord string) *Intent {
	if normalized == "" {
		return nil
	}
	if n, ok := match(normalized, Normalize(claimWord)); ok {
		return &Intent{Kind: IntentClaim, SlotNumber: n}
	}
	if n, ok := match(normalized, Normalize(passWord)); ok {
		return &Intent{Kind: IntentPass, SlotNumber: n}
	}
	return nil
}

// ParseComment normalizes raw text and parses it, returning both.
func ParseComment(raw, claimWord, passWord string) (string, *Intent) {
	normalized := Normalize(raw)
	return normalized, ParseIntent(normalized, claimWord, passWord)
}
