package syntax

import "strings"

// Span is a half-open byte range [Start, Start+Length) within a snapshot.
type Span struct {
	Start  int
	Length int
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Start + s.Length
}

// Slice returns the text covered by s, clamped to text.
func (s Span) Slice(text string) string {
	start, end := s.Start, s.End()
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return ""
	}
	return text[start:end]
}

// ExtendSpan widens [start, start+length) backwards over the spaces and tabs
// that immediately precede it. It stops at the first other byte, so a line
// break or comment before the indentation is never included.
func ExtendSpan(src []byte, start, length int) Span {
	i := start
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	return Span{Start: i, Length: length + (start - i)}
}

// Dedent removes blank leading and trailing lines, strips the indentation
// common to every non-blank line, and trims trailing whitespace.
func Dedent(text string) string {
	lines := splitLines(text)
	lines = trimBlankLines(lines)
	if len(lines) == 0 {
		return ""
	}
	n := commonIndent(lines)
	for i, line := range lines {
		if len(line) >= n {
			line = line[n:]
		} else {
			line = ""
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// BodyText normalizes the interior of a body (the text between its braces).
// A statement sharing the line with the opening brace is trimmed on its own
// and does not take part in computing the common indentation.
func BodyText(inner string) string {
	lines := splitLines(inner)
	if len(lines) == 0 {
		return ""
	}
	first := strings.TrimSpace(lines[0])
	rest := Dedent(strings.Join(lines[1:], "\n"))
	switch {
	case first == "":
		return rest
	case rest == "":
		return first
	}
	return first + "\n" + rest
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func trimBlankLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func commonIndent(lines []string) int {
	least := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if least < 0 || n < least {
			least = n
		}
	}
	if least < 0 {
		return 0
	}
	return least
}
