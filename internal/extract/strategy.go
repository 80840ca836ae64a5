package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nurkhatq/qrcode/internal/entity"
)

// Strategy is one hypothesis about how the manifest renderer laid out the
// shipment table in raw text. Each strategy scans the whole normalized
// document and recovers zero or more raw row tuples; it never fails on a
// single malformed candidate, it skips it and keeps scanning.
type Strategy interface {
	Name() string
	Extract(text NormalizedText) []entity.RawRowTuple
}

// DefaultStrategies returns the layout hypotheses in priority order, most
// specific first. The pipeline runs them until one produces usable rows.
func DefaultStrategies() []Strategy {
	return []Strategy{
		singleLineStrategy{},
		splitOrderStrategy{},
		blockStrategy{withWeight: true},
		blockStrategy{withWeight: false},
		looseLineStrategy{},
	}
}

var (
	// desktop renderer: one logical row per physical line
	reSingleLine = regexp.MustCompile(`(?m)^(\d+) ([A-Za-z0-9-]+) (\d+(?:[.,]\d+)?)(?: ?(?:кг|kg|KG))? ([A-Za-z0-9-]+)$`)
	reSplitOrder = regexp.MustCompile(`(?m)^(\d+) (\d+-\d+) (\d+(?:[.,]\d+)?) (\d+) (\d+)$`)

	// block renderer building blocks: one field value per physical line
	reBareDecimal = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
	reBareInt     = regexp.MustCompile(`^\d+$`)
	reOrderParts  = regexp.MustCompile(`^(\d+) (\d+)$`)
	reHyphenPkg   = regexp.MustCompile(`^\d+-\d+$`)

	// loose fallback tokens
	reLoosePkg   = regexp.MustCompile(`[A-Za-z]{2,}\d+(?:-\d+)?`)
	reLooseDec   = regexp.MustCompile(`\d+[.,]\d+`)
	reLeadingInt = regexp.MustCompile(`^(\d+)\b`)
)

// parseDecimal parses a weight-like token, accepting either '.' or ',' as
// the fractional separator.
func parseDecimal(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// singleLineStrategy matches rows that survived rendering as one physical
// line: sequence number, alphanumeric package id, decimal weight with an
// optional unit suffix, alphanumeric order id.
type singleLineStrategy struct{}

func (singleLineStrategy) Name() string { return "single-line" }

func (singleLineStrategy) Extract(text NormalizedText) []entity.RawRowTuple {
	var out []entity.RawRowTuple
	for _, m := range reSingleLine.FindAllStringSubmatch(text.Join(), -1) {
		weight, ok := parseDecimal(m[3])
		if !ok || weight <= 0 {
			continue
		}
		seq, _ := strconv.Atoi(m[1])
		out = append(out, entity.RawRowTuple{
			SequenceNumber: seq,
			PackageID:      m[2],
			WeightKg:       weight,
			OrderID:        m[4],
		})
	}
	return out
}

// splitOrderStrategy matches the desktop layout variant where the order id
// is rendered as two space-separated numeric groups after the weight; the
// groups concatenate into the order id with no separator.
type splitOrderStrategy struct{}

func (splitOrderStrategy) Name() string { return "single-line-split-order" }

func (splitOrderStrategy) Extract(text NormalizedText) []entity.RawRowTuple {
	var out []entity.RawRowTuple
	for _, m := range reSplitOrder.FindAllStringSubmatch(text.Join(), -1) {
		weight, ok := parseDecimal(m[3])
		if !ok || weight <= 0 {
			continue
		}
		seq, _ := strconv.Atoi(m[1])
		out = append(out, entity.RawRowTuple{
			SequenceNumber: seq,
			PackageID:      m[2],
			WeightKg:       weight,
			OrderID:        m[4] + m[5],
		})
	}
	return out
}

// blockStrategy matches mobile-style renderings that emit one field value
// per physical line, in weight → sequence → order-parts → package order.
// It slides a window over the non-empty lines: an accepted window is
// consumed whole, a rejected one advances the scan by a single line.
//
// With withWeight false the weight line is absent from the block and every
// row borrows the first bare decimal token found anywhere in the document.
// Rows recovered that way carry an approximate weight and are tagged so
// downstream consumers can flag them for review.
type blockStrategy struct {
	withWeight bool
}

func (s blockStrategy) Name() string {
	if s.withWeight {
		return "block-4"
	}
	return "block-3-default-weight"
}

func (s blockStrategy) Extract(text NormalizedText) []entity.RawRowTuple {
	lines := text.NonEmptyLines()
	window := 3
	defaultWeight := 0.0
	if s.withWeight {
		window = 4
	} else {
		w, ok := documentWeight(text)
		if !ok {
			return nil
		}
		defaultWeight = w
	}

	var out []entity.RawRowTuple
	for i := 0; i+window <= len(lines); {
		tuple, ok := s.matchWindow(lines[i:i+window], defaultWeight)
		if !ok {
			i++
			continue
		}
		i += window
		if tuple.WeightKg <= 0 {
			continue
		}
		out = append(out, tuple)
	}
	return out
}

func (s blockStrategy) matchWindow(w []string, defaultWeight float64) (entity.RawRowTuple, bool) {
	var tuple entity.RawRowTuple
	if s.withWeight {
		if !reBareDecimal.MatchString(w[0]) {
			return tuple, false
		}
		weight, _ := parseDecimal(w[0])
		tuple.WeightKg = weight
		w = w[1:]
	} else {
		tuple.WeightKg = defaultWeight
		tuple.WeightApprox = true
	}

	if !reBareInt.MatchString(w[0]) {
		return tuple, false
	}
	parts := reOrderParts.FindStringSubmatch(w[1])
	if parts == nil {
		return tuple, false
	}
	if !reHyphenPkg.MatchString(w[2]) {
		return tuple, false
	}

	tuple.SequenceNumber, _ = strconv.Atoi(w[0])
	tuple.OrderID = parts[1] + parts[2]
	tuple.PackageID = w[2]
	return tuple, true
}

// documentWeight scans the whole document for the first bare decimal token,
// the degraded weight used when the block renderer dropped the weight line.
func documentWeight(text NormalizedText) (float64, bool) {
	for _, line := range text.Lines {
		for _, tok := range strings.Fields(line) {
			if !reBareDecimal.MatchString(tok) {
				continue
			}
			if w, ok := parseDecimal(tok); ok && w > 0 {
				return w, true
			}
		}
	}
	return 0, false
}

// looseLineStrategy is the last-resort hypothesis: per non-empty line it
// takes the first letters-then-digits token as package id, the first token
// with a fractional part as weight, and the first letters-then-digits token
// different from the package id as order id. A leading bare integer becomes
// the sequence number; rows without one get their 1-based position in the
// strategy's own output.
type looseLineStrategy struct{}

func (looseLineStrategy) Name() string { return "loose-line" }

func (looseLineStrategy) Extract(text NormalizedText) []entity.RawRowTuple {
	var out []entity.RawRowTuple
	for _, line := range text.NonEmptyLines() {
		ids := reLoosePkg.FindAllString(line, -1)
		if len(ids) == 0 {
			continue
		}
		pkg := ids[0]
		order := ""
		for _, id := range ids {
			if id != pkg {
				order = id
				break
			}
		}
		if order == "" {
			continue
		}

		weight := 0.0
		if tok := reLooseDec.FindString(line); tok != "" {
			weight, _ = parseDecimal(tok)
		}
		if weight <= 0 {
			continue
		}

		seq := len(out) + 1
		if m := reLeadingInt.FindStringSubmatch(line); m != nil {
			seq, _ = strconv.Atoi(m[1])
		}
		out = append(out, entity.RawRowTuple{
			SequenceNumber: seq,
			PackageID:      pkg,
			WeightKg:       weight,
			OrderID:        order,
		})
	}
	return out
}
