// Package matching decides which bucket a recognized page belongs to.
//
// Rules are applied in strict precedence, first hit wins:
//  1. an existing bucket code appears in the text (verbatim or without spaces)
//  2. at least two significant words of an existing bucket name appear in the text
//  3. a new subject code is detected in the text
//  4. the page continues the previously matched bucket (sticky fallback)
//
// Classify is pure: it never mutates the buckets it is given.
package matching

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// StickyPolicy controls when an unmatched page falls back to the previous bucket.
type StickyPolicy string

const (
	// StickyAfterFirst attaches any page after the first one, markers or not.
	StickyAfterFirst StickyPolicy = "after-first"
	// StickyMarkersOnly requires a continuation marker such as "Question" or "Page 2".
	StickyMarkersOnly StickyPolicy = "markers-only"
)

const (
	minSignificantWordLen = 4
	minNameWordHits       = 2
	minDetectedTitleLen   = 6
	detectedSubjectSuffix = "Detected Subject"
)

var (
	subjectCodePattern = regexp.MustCompile(`\b[A-Z]{3}[\s-]?:?\s?\d{3,4}\b`)
	continuationMarker = regexp.MustCompile(`(?i)PAGE\s+\d+|QUESTION|MARKS|SECTION`)
)

// Context is the state threaded between consecutive Classify calls.
type Context struct {
	// Buckets in registry order.
	Buckets []domain.Bucket
	// Sticky is the bucket of the previous page; zero when unset.
	Sticky domain.BucketID
	// Position is the zero-based index of the page in the run.
	Position int
}

type Engine struct {
	policy StickyPolicy
}

func NewEngine(policy StickyPolicy) *Engine {
	if policy != StickyMarkersOnly {
		policy = StickyAfterFirst
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() StickyPolicy { return e.policy }

func (e *Engine) Classify(text string, ctx Context) domain.MatchResult {
	upper := normalize(text)

	if id, ok := matchCode(upper, ctx.Buckets); ok {
		return domain.Existing(id)
	}
	if id, ok := matchName(upper, ctx.Buckets); ok {
		return domain.Existing(id)
	}
	if res, ok := detectSubject(text, upper, ctx.Buckets); ok {
		return res
	}
	if ctx.Sticky != 0 && e.attachesToPrevious(upper, ctx.Position) {
		return domain.Sticky(ctx.Sticky)
	}
	return domain.Unmatched()
}

func (e *Engine) attachesToPrevious(upper string, position int) bool {
	if continuationMarker.MatchString(upper) {
		return true
	}
	return e.policy == StickyAfterFirst && position > 0
}

func normalize(text string) string {
	return cases.Upper(language.Und).String(text)
}

func matchCode(upper string, buckets []domain.Bucket) (domain.BucketID, bool) {
	for _, b := range buckets {
		code := normalize(strings.TrimSpace(b.Code))
		if code == "" {
			continue
		}
		if strings.Contains(upper, code) || strings.Contains(upper, strings.Join(strings.Fields(code), "")) {
			return b.ID, true
		}
	}
	return 0, false
}

func matchName(upper string, buckets []domain.Bucket) (domain.BucketID, bool) {
	for _, b := range buckets {
		hits := 0
		for _, w := range significantWords(b.DisplayName) {
			if strings.Contains(upper, w) {
				hits++
			}
		}
		if hits >= minNameWordHits {
			return b.ID, true
		}
	}
	return 0, false
}

// significantWords returns the upper-cased words longer than three characters
// of the part of name after its first colon.
func significantWords(name string) []string {
	part := name
	if _, after, ok := strings.Cut(name, ":"); ok && strings.TrimSpace(after) != "" {
		part = after
	}
	var out []string
	for _, w := range strings.Fields(normalize(part)) {
		if utf8.RuneCountInString(w) >= minSignificantWordLen {
			out = append(out, w)
		}
	}
	return out
}

func detectSubject(text, upper string, buckets []domain.Bucket) (domain.MatchResult, bool) {
	raw := subjectCodePattern.FindString(upper)
	if raw == "" {
		return domain.MatchResult{}, false
	}
	code := NormalizeCode(raw)
	for _, b := range buckets {
		if strings.EqualFold(strings.TrimSpace(b.Code), code) {
			return domain.Existing(b.ID), true
		}
	}
	return domain.NewBucket(code, detectTitle(text, raw, code)), true
}

// NormalizeCode turns a raw code match such as "CIT-417" or "CIT: 417" into "CIT 417".
func NormalizeCode(raw string) string {
	code := strings.Replace(raw, ":", "", 1)
	code = strings.Replace(code, "-", " ", 1)
	return strings.Join(strings.Fields(code), " ")
}

func detectTitle(text, raw, code string) string {
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(raw))
	for _, line := range strings.Split(text, "\n") {
		loc := pattern.FindStringIndex(line)
		if loc == nil {
			continue
		}
		rest := strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
		if utf8.RuneCountInString(rest) >= minDetectedTitleLen {
			return code + ": " + rest
		}
		break
	}
	return code + ": " + detectedSubjectSuffix
}
