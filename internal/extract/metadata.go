package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nurkhatq/qrcode/internal/entity"
)

var (
	// day.month.year, optionally followed by hour:minute:second
	reTransferTS = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})(?:\s+(\d{1,2}):(\d{2}):(\d{2}))?`)

	// labeled submitter field, terminated by the next labeled line, a blank
	// line, or end of text
	reSubmitterLabel = regexp.MustCompile(`(?s)Сдал:\s*(.*?)(?:\n[^\n]*:|\n\n|$)`)
)

const pickupSuffix = "PickUp Point"

// ExtractTransferTimestamp returns the document's transfer timestamp: the
// first day.month.year token in document order, with a missing time-of-day
// defaulting to midnight. Documents carry exactly one transfer timestamp
// near the top, so the first plausible match wins.
func ExtractTransferTimestamp(text NormalizedText) (time.Time, bool) {
	ts, _, ok := findTransferTimestamp(text)
	return ts, ok
}

func findTransferTimestamp(text NormalizedText) (time.Time, int, bool) {
	for i, line := range text.Lines {
		for _, m := range reTransferTS.FindAllStringSubmatch(line, -1) {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if day < 1 || day > 31 || month < 1 || month > 12 {
				continue
			}
			var hour, min, sec int
			if m[4] != "" {
				hour, _ = strconv.Atoi(m[4])
				min, _ = strconv.Atoi(m[5])
				sec, _ = strconv.Atoi(m[6])
			}
			ts := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
			return ts, i, true
		}
	}
	return time.Time{}, 0, false
}

// ExtractSubmitter recovers the submitting-party name, best effort. It tries
// the labeled "Сдал:" field first, then the first non-empty line below the
// transfer timestamp (the two are vertically adjacent in the source layout).
// Returns "" when neither hypothesis matches; that is never fatal.
func ExtractSubmitter(text NormalizedText) string {
	joined := text.Join()
	if m := reSubmitterLabel.FindStringSubmatch(joined); m != nil {
		if v := cleanSubmitter(m[1]); v != "" {
			return v
		}
	}

	if _, tsLine, ok := findTransferTimestamp(text); ok {
		for _, line := range text.Lines[tsLine+1:] {
			if line == "" {
				continue
			}
			return cleanSubmitter(line)
		}
	}
	return ""
}

// cleanSubmitter drops the trailing "PickUp Point" suffix plus anything
// after it, and collapses internal whitespace.
func cleanSubmitter(s string) string {
	if i := strings.Index(s, pickupSuffix); i >= 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

// ExtractMetadata bundles both document-level fields. The second return
// value is false when no transfer timestamp could be recovered, which makes
// the whole document unusable.
func ExtractMetadata(text NormalizedText) (entity.DocumentMetadata, bool) {
	ts, ok := ExtractTransferTimestamp(text)
	if !ok {
		return entity.DocumentMetadata{}, false
	}
	return entity.DocumentMetadata{
		TransferTimestamp: ts,
		SubmittedBy:       ExtractSubmitter(text),
	}, true
}
