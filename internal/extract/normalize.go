// Package extract recovers structured shipment records from the loosely
// structured text dumps produced by manifest document text extraction.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

const softHyphen = '\u00ad'

var (
	reCRLF    = regexp.MustCompile(`\r\n?`)
	reHorizWS = regexp.MustCompile(`[ \t\x{00A0}]+`)
	// zero-width space/joiners and the BOM, all seen in scanned-manifest dumps
	reZeroWidth = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}]`)
)

// NormalizedText is the canonical line-oriented form of a manifest dump.
// Line positions are load-bearing: several layout strategies distinguish
// "four values on one line" from "one value per line" renderings.
type NormalizedText struct {
	Lines []string
}

// Join returns the text as a single newline-joined string for whole-document
// pattern scans.
func (t NormalizedText) Join() string {
	return strings.Join(t.Lines, "\n")
}

// NonEmptyLines returns the lines that survived normalization with content.
func (t NormalizedText) NonEmptyLines() []string {
	out := make([]string, 0, len(t.Lines))
	for _, line := range t.Lines {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Normalize canonicalizes raw extracted text. Soft hyphens between two
// digits become literal hyphens (manifest package ids legitimately contain
// them, so "710371844<U+00AD>1" reads back as "710371844-1"); elsewhere they are
// line-wrap artifacts and are deleted. Zero-width codepoints are deleted,
// non-breaking spaces become plain spaces, and runs of horizontal
// whitespace collapse to one space per line. Line breaks are preserved.
func Normalize(raw string) NormalizedText {
	if raw == "" {
		return NormalizedText{}
	}
	s := reCRLF.ReplaceAllString(raw, "\n")
	s = replaceSoftHyphens(s)
	s = reZeroWidth.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(reHorizWS.ReplaceAllString(lines[i], " "))
	}
	return NormalizedText{Lines: lines}
}

func replaceSoftHyphens(s string) string {
	if !strings.ContainsRune(s, softHyphen) {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if r != softHyphen {
			b.WriteRune(r)
			continue
		}
		if i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			b.WriteRune('-')
		}
	}
	return b.String()
}
