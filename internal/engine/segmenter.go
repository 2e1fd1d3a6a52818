package engine

import "strings"

// terminalMarkers are the characters that close a speakable unit. The
// fullwidth forms show up alongside ASCII punctuation in Vietnamese and CJK
// model output.
const terminalMarkers = ".!?\n。！？"

// Unit is one segment of response text ready for synthesis. Ordinals are
// assigned at segmentation time, start at 0 for every response, and increase
// monotonically; delivery order downstream is defined entirely by them.
type Unit struct {
	Ordinal int
	Text    string
}

// Segmenter accumulates streamed text fragments and cuts them into speakable
// units. The boundary rule is per-fragment: a fragment containing any
// terminal marker closes the accumulated text as one unit, wherever in the
// fragment the marker sits. Finer per-character splitting is deliberately not
// attempted; model fragments are small enough that a unit ends within a few
// tokens of its closing punctuation.
//
// A Segmenter is not safe for concurrent use. Use one per response cycle.
type Segmenter struct {
	acc     strings.Builder
	ordinal int
}

// NewSegmenter returns an empty Segmenter with ordinals starting at 0.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Feed appends fragment to the accumulator and returns the unit it closed,
// if any. Units are trimmed of surrounding whitespace; a unit that trims to
// nothing is suppressed and consumes no ordinal.
func (s *Segmenter) Feed(fragment string) []Unit {
	if fragment == "" {
		return nil
	}
	s.acc.WriteString(fragment)
	if !strings.ContainsAny(fragment, terminalMarkers) {
		return nil
	}
	return s.emit()
}

// Flush emits any remaining accumulated text as a final unit. Call once at
// stream end; the remainder has no closing punctuation but still needs a
// voice.
func (s *Segmenter) Flush() (Unit, bool) {
	units := s.emit()
	if len(units) == 0 {
		return Unit{}, false
	}
	return units[0], true
}

func (s *Segmenter) emit() []Unit {
	text := strings.TrimSpace(s.acc.String())
	s.acc.Reset()
	if text == "" {
		return nil
	}
	u := Unit{Ordinal: s.ordinal, Text: text}
	s.ordinal++
	return []Unit{u}
}
