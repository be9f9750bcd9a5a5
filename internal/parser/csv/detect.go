package csv

import (
	"bytes"
	"strings"
)

// separatorCandidates is the fixed detection priority.
var separatorCandidates = []rune{';', ',', '\t'}

// DetectSeparator returns the first candidate (';', ',', '\t') present in
// line, or ',' when none is.
//
// Semicolon wins over comma so European exports with decimal commas
// ("1,5;2,25") are split correctly.
func DetectSeparator(line string) rune {
	for _, c := range separatorCandidates {
		if strings.ContainsRune(line, c) {
			return c
		}
	}
	return ','
}

// firstNonEmptyLine returns the first line of head containing anything other
// than whitespace. A trailing partial line is accepted.
func firstNonEmptyLine(head []byte) string {
	for len(head) > 0 {
		line := head
		if i := bytes.IndexByte(head, '\n'); i >= 0 {
			line, head = head[:i], head[i+1:]
		} else {
			head = nil
		}
		if len(bytes.TrimSpace(line)) > 0 {
			return string(bytes.TrimRight(line, "\r"))
		}
	}
	return ""
}
