// Package speech contains the text-to-speech core: the normalizer that
// sanitises raw chat text, the per-room speech queue with its drain worker,
// and the manager that routes submissions to room queues.
package speech

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxUtteranceLen is the longest text (in runes, after trimming) that will be
// read aloud. Longer messages are suppressed rather than truncated.
const maxUtteranceLen = 200

// Replacement rules are applied in a fixed order; the whitespace collapse at
// the end assumes the earlier rules have already substituted their tokens.
var (
	urlPattern = regexp.MustCompile(`(?:https?://\S+|www\.\S+|\b[\w-]+(?:\.[\w-]+)+/\S*)`)
	// Adjacent URL tokens left behind by consecutive links collapse to one.
	urlRunPattern = regexp.MustCompile(`URL(?:\s+URL)+`)

	userMentionPattern = regexp.MustCompile(`<@!?\d+>`)
	channelRefPattern  = regexp.MustCompile(`<#\d+>`)
	roleRefPattern     = regexp.MustCompile(`<@&\d+>`)
	emojiPattern       = regexp.MustCompile(`<a?:\w+:\d+>`)

	newlinePattern    = regexp.MustCompile(`\n+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize sanitises raw user text for synthesis. It returns the text to
// speak and a suppressed flag; suppressed text must not be enqueued. The
// output depends only on the input.
//
// Suppression applies to text that, after trimming, is empty, longer than
// 200 runes, starts with ';' (the conventional "don't read this" prefix) or
// contains a spoiler marker.
func Normalize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)

	if text == "" {
		return "", true
	}
	if utf8.RuneCountInString(text) > maxUtteranceLen {
		return "", true
	}
	if strings.HasPrefix(text, ";") {
		return "", true
	}
	if strings.Contains(text, "||") {
		return "", true
	}

	text = urlPattern.ReplaceAllString(text, "URL")
	text = urlRunPattern.ReplaceAllString(text, "URL")

	text = roleRefPattern.ReplaceAllString(text, "role")
	text = userMentionPattern.ReplaceAllString(text, "mention")
	text = channelRefPattern.ReplaceAllString(text, "channel")
	text = emojiPattern.ReplaceAllString(text, "emoji")

	// Speak line breaks as a sentence boundary.
	text = newlinePattern.ReplaceAllString(text, "。")

	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if text == "" {
		return "", true
	}
	return text, false
}
