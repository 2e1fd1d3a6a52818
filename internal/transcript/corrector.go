// Package transcript corrects recognised speech against a configured hotword
// vocabulary before it re-enters the conversation.
//
// Speech models reliably mishear proper nouns that never appeared in their
// training data: product names, personal names, invented terms. When the
// operator configures such a vocabulary, every transcript is scanned for
// tokens (and multi-word token windows) that sound like a configured entry,
// and the closest entry is substituted in its canonical spelling.
//
// Matching runs in two stages:
//
//  1. Double Metaphone codes are computed for the input window and for each
//     vocabulary entry. Entries sharing at least one code become phonetic
//     candidates and are ranked by Jaro-Winkler similarity against the
//     original strings, accepted above the phonetic threshold (default 0.70).
//  2. When no phonetic candidate qualifies, a pure Jaro-Winkler pass runs
//     with a stricter fuzzy threshold (default 0.85) to catch spelling-close
//     misses that encode to different phonemes.
//
// Everything is in-process and allocation-light; the corrector sits on the
// capture path between the transcriber and the response engine.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Correction records a single substitution applied to a transcript.
type Correction struct {
	// Heard is the token window as produced by the transcriber,
	// edge punctuation removed.
	Heard string

	// Applied is the vocabulary entry substituted for it, in its
	// configured spelling.
	Applied string

	// Score is the Jaro-Winkler similarity between the two, in [0, 1].
	Score float64
}

// Corrector rewrites transcript text before it re-enters the text path.
// Implementations must be safe for concurrent use.
type Corrector interface {
	// Correct returns the corrected text and the substitutions applied,
	// in textual order. When nothing matches, the text is returned
	// unchanged and the slice is nil.
	Correct(text string) (string, []Correction)
}

// Option is a functional option for configuring a [HotwordCorrector].
type Option func(*HotwordCorrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *HotwordCorrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate qualifies and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *HotwordCorrector) {
		c.fuzzyThreshold = threshold
	}
}

// hotword is one vocabulary entry with its phonetic codes precomputed at
// construction time.
type hotword struct {
	display string
	lower   string
	tokens  []string
	codes   map[string]struct{}
}

// HotwordCorrector is the phonetic [Corrector] implementation. It is
// read-only after construction and therefore safe for concurrent use.
//
// A corrector built from an empty vocabulary passes text through untouched.
type HotwordCorrector struct {
	words             []hotword
	maxTokens         int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

var _ Corrector = (*HotwordCorrector)(nil)

// New returns a [HotwordCorrector] over the given vocabulary. Blank entries
// are dropped; the remaining entries keep their configured spelling, which is
// what gets substituted into transcripts.
func New(vocabulary []string, opts ...Option) *HotwordCorrector {
	c := &HotwordCorrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		display := strings.TrimSpace(v)
		if display == "" {
			continue
		}
		lower := strings.ToLower(display)
		tokens := strings.Fields(lower)
		c.words = append(c.words, hotword{
			display: display,
			lower:   lower,
			tokens:  tokens,
			codes:   metaphoneCodes(tokens),
		})
		if len(tokens) > c.maxTokens {
			c.maxTokens = len(tokens)
		}
	}
	return c
}

// Vocabulary returns the configured entries in their canonical spelling.
func (c *HotwordCorrector) Vocabulary() []string {
	out := make([]string, len(c.words))
	for i, hw := range c.words {
		out[i] = hw.display
	}
	return out
}

// Correct scans text token by token, trying windows of up to the longest
// vocabulary entry's word count at each position. Longer windows win over
// shorter ones so that multi-word entries take precedence over partial
// single-word matches. Edge punctuation survives around a substitution;
// windows never span punctuation between words.
func (c *HotwordCorrector) Correct(text string) (string, []Correction) {
	if len(c.words) == 0 || strings.TrimSpace(text) == "" {
		return text, nil
	}

	tokens := strings.Fields(text)
	output := make([]string, 0, len(tokens))
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxTokens
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		consumed := 0
		for n := maxN; n >= 1; n-- {
			lead, core, trail, ok := windowParts(tokens[i : i+n])
			if !ok {
				continue
			}
			hw, score, matched := c.match(core)
			if !matched {
				continue
			}
			if hw.display == core {
				// Already canonical; emit unchanged without recording.
				output = append(output, tokens[i:i+n]...)
			} else {
				output = append(output, lead+hw.display+trail)
				corrections = append(corrections, Correction{
					Heard:   core,
					Applied: hw.display,
					Score:   score,
				})
			}
			consumed = n
			break
		}

		if consumed == 0 {
			output = append(output, tokens[i])
			i++
		} else {
			i += consumed
		}
	}

	if len(corrections) == 0 {
		// Nothing changed; hand back the original text with its
		// whitespace intact.
		return text, nil
	}
	return strings.Join(output, " "), corrections
}

// match finds the vocabulary entry closest to phrase. Phonetic candidates
// outrank fuzzy ones regardless of score.
func (c *HotwordCorrector) match(phrase string) (hotword, float64, bool) {
	lower := strings.ToLower(phrase)
	tokens := strings.Fields(lower)
	codes := metaphoneCodes(tokens)

	var (
		best         hotword
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, hw := range c.words {
		score := similarity(tokens, hw.tokens, lower, hw.lower)
		if codesOverlap(codes, hw.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore = hw, score
				bestPhonetic, found = true, true
			}
		} else if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			best, bestScore, found = hw, score, true
		}
	}

	return best, bestScore, found
}

// windowParts extracts the matchable core of a token window, keeping any
// leading punctuation of the first token and trailing punctuation of the
// last so they can be reattached around a substitution.
//
// Multi-token windows are rejected when punctuation separates the tokens:
// "Lan," followed by "Phương" is two mentions, not one phrase.
func windowParts(tokens []string) (lead, core, trail string, ok bool) {
	if len(tokens) == 1 {
		lead, core, trail = splitPunct(tokens[0])
		return lead, core, trail, core != ""
	}

	cores := make([]string, len(tokens))
	for k, tok := range tokens {
		l, c, t := splitPunct(tok)
		if c == "" {
			return "", "", "", false
		}
		switch k {
		case 0:
			if t != "" {
				return "", "", "", false
			}
			lead = l
		case len(tokens) - 1:
			if l != "" {
				return "", "", "", false
			}
			trail = t
		default:
			if l != "" || t != "" {
				return "", "", "", false
			}
		}
		cores[k] = c
	}
	return lead, strings.Join(cores, " "), trail, true
}

// splitPunct splits edge punctuation off a token. Interior punctuation
// (apostrophes, hyphens) stays in the core.
func splitPunct(tok string) (lead, core, trail string) {
	core = strings.TrimFunc(tok, unicode.IsPunct)
	if core == "" {
		return "", "", ""
	}
	i := strings.Index(tok, core)
	return tok[:i], core, tok[i+len(core):]
}

// metaphoneCodes returns the union of Double Metaphone codes for the given
// tokens. Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity computes the highest Jaro-Winkler score between the input and a
// vocabulary entry using three strategies: the full strings, the strings with
// spaces removed, and the best pairwise token score. The latter two keep
// multi-word entries reachable when the transcriber splits or merges words.
func similarity(inputTokens, entryTokens []string, inputFull, entryFull string) float64 {
	score := matchr.JaroWinkler(inputFull, entryFull, false)

	if len(inputTokens) > 1 || len(entryTokens) > 1 {
		concatIn := strings.Join(inputTokens, "")
		concatEntry := strings.Join(entryTokens, "")
		if s := matchr.JaroWinkler(concatIn, concatEntry, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, et := range entryTokens {
			if s := matchr.JaroWinkler(it, et, false); s > score {
				score = s
			}
		}
	}

	return score
}
