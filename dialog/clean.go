package dialog

import (
	"regexp"
	"strings"
)

// MaxUtteranceLen is the rune cutoff beyond which a dialogue's intake stops:
// transcripts past this length tend to be monologues rather than exchanges.
const MaxUtteranceLen = 300

var (
	spaceBeforePunct = regexp.MustCompile(`\s([?,.!’](?:\s|$))`)
	spaceAfterApos   = regexp.MustCompile(`([’])\s+`)
)

// CleanUtterance normalizes one raw utterance: detached punctuation is
// re-attached, apostrophe spacing collapsed, and the result trimmed and
// lowercased.
func CleanUtterance(s string) string {
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = spaceAfterApos.ReplaceAllString(s, "$1")
	return strings.ToLower(strings.TrimSpace(s))
}

// PairTurns converts an ordered dialogue into overlapping utterance/response
// pairs: every turn answers the one before it, so a dialogue of n turns
// yields n-1 examples. Even-indexed openers come first, then odd-indexed
// ones, preserving the corpus ordering the rest of the pipeline expects.
func PairTurns(turns []string) []Example {
	if len(turns) < 2 {
		return nil
	}

	var pairs []Example
	for i := 0; i+1 < len(turns); i += 2 {
		pairs = append(pairs, Example{Uttr: turns[i], Resp: turns[i+1]})
	}
	for i := 1; i+1 < len(turns); i += 2 {
		pairs = append(pairs, Example{Uttr: turns[i], Resp: turns[i+1]})
	}
	return pairs
}

// DefaultSkipSpeakers are speaker tags whose lines are off-dialogue in the
// transcripts we scrape (narration, voice-over, flash-forward characters).
var DefaultSkipSpeakers = []string{"narrator", "son", "daughter", "2030", "voix", "from"}

// CleanScript filters raw transcript lines down to spoken dialogue. Scene
// markers in square brackets survive untouched, stage directions and lines
// from skipped speakers are dropped, and inline parentheticals are stripped.
func CleanScript(lines []string, skipSpeakers []string) []string {
	var cleaned []string
	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, "(") {
			continue
		}

		if strings.HasPrefix(line, "[") || !strings.Contains(line, ":") {
			cleaned = append(cleaned, line)
			continue
		}

		speaker := strings.ToLower(strings.SplitN(line, ":", 2)[0])
		if skippedSpeaker(speaker, skipSpeakers) {
			continue
		}

		line = stripParentheticals(line)

		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 && parts[1] != "" {
			cleaned = append(cleaned, line)
		}
	}
	return cleaned
}

func skippedSpeaker(speaker string, skip []string) bool {
	for _, s := range skip {
		if strings.Contains(speaker, s) {
			return true
		}
	}
	return false
}

func stripParentheticals(line string) string {
	for {
		start := strings.Index(line, "(")
		if start < 0 {
			return line
		}
		end := strings.Index(line, ")")
		if end < start {
			return line
		}
		// the character before the paren is whitespace in these transcripts
		if start > 0 {
			start--
		}
		line = line[:start] + line[end+1:]
	}
}
