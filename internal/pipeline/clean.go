package pipeline

import (
	"regexp"
	"strings"
)

var colonAsteriskRe = regexp.MustCompile(`:\*\s*`)

// cleanReport normalizes the formatting glitches the generation model leaves
// behind: a stray unpaired trailing asterisk, and asterisks stuck after
// colons ("Difficulty:* Medium").
func cleanReport(content string) string {
	content = stripTrailingAsterisk(content)
	return colonAsteriskRe.ReplaceAllString(content, ": ")
}

// stripTrailingAsterisk removes the final asterisk in the text when it is
// isolated: not adjacent to another asterisk, so it cannot be part of bold
// or a matched italic pair.
func stripTrailingAsterisk(s string) string {
	idx := strings.LastIndex(s, "*")
	if idx < 0 {
		return s
	}
	if idx > 0 && s[idx-1] == '*' {
		return s
	}
	if idx+1 < len(s) && s[idx+1] == '*' {
		return s
	}
	return s[:idx] + s[idx+1:]
}
