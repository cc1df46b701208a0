package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxValueChars caps a snippet or page excerpt returned as a value.
	MaxValueChars = 800
	// pageWindow is the number of bytes kept around a keyword on a page.
	pageWindow = 400
)

var (
	unPattern           = regexp.MustCompile(`(?i)\b(?:UN|ONU)(?:\s*(?:number|no\.?|n[º°]))?[\s#:;]{0,3}(\d{4})\b`)
	casPattern          = regexp.MustCompile(`\b(\d{2,7}-\d{2}-\d)\b`)
	hazardClassPattern  = regexp.MustCompile(`(?i)\b(?:hazard\s+class|class|classe(?:\s+de\s+risco)?)\s*[:\-]?\s*(\d(?:\.\d)?)\b`)
	packingGroupPattern = regexp.MustCompile(`(?i)\b(?:packing\s+group|grupo\s+(?:de\s+)?embalagem|PG)\s*[:\-]?\s*(III|II|I|1|2|3)\b`)
)

var fieldKeywords = map[string][]string{
	FieldProductName:       {"product name", "trade name", "nome do produto"},
	FieldCASNumber:         {"cas no", "cas number", "cas"},
	FieldUNNumber:          {"un number", "un no", "onu"},
	FieldManufacturer:      {"manufacturer", "supplier", "fabricante"},
	FieldHazardClass:       {"hazard class", "transport hazard", "classe"},
	FieldPackingGroup:      {"packing group", "grupo de embalagem"},
	FieldIncompatibilities: {"incompatible materials", "incompatibilit", "incompatibilidade"},
}

// Keywords returns the lower-case phrases that locate a field inside free text.
func Keywords(field string) []string {
	if kw, ok := fieldKeywords[field]; ok {
		return kw
	}
	return []string{strings.ReplaceAll(strings.ToLower(field), "_", " ")}
}

// ExtractToken pulls a field-specific token (UN number, CAS number, class,
// packing group) out of text. ok is false when the field has no pattern or
// nothing matched.
func ExtractToken(field, text string) (string, bool) {
	switch field {
	case FieldUNNumber:
		if m := unPattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	case FieldCASNumber:
		for _, m := range casPattern.FindAllStringSubmatch(text, -1) {
			if ValidCAS(m[1]) {
				return m[1], true
			}
		}
	case FieldHazardClass:
		if m := hazardClassPattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	case FieldPackingGroup:
		if m := packingGroupPattern.FindStringSubmatch(text); m != nil {
			return romanGroup(m[1]), true
		}
	}
	return "", false
}

// ValidCAS verifies the CAS registry check digit.
func ValidCAS(cas string) bool {
	m := casPattern.FindStringSubmatch(cas)
	if m == nil || m[1] != cas {
		return false
	}
	digits := strings.ReplaceAll(cas[:len(cas)-2], "-", "")
	check := int(cas[len(cas)-1] - '0')
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[len(digits)-1-i]-'0') * (i + 1)
	}
	return sum%10 == check
}

func romanGroup(v string) string {
	switch strings.ToUpper(v) {
	case "1", "I":
		return "I"
	case "2", "II":
		return "II"
	default:
		return "III"
	}
}

// GuessFromHits derives a field value from search hits. A backend answer wins
// over snippets. ok is false when no hit carried usable text.
func GuessFromHits(field string, hits []Hit) (FieldResult, bool) {
	for _, h := range hits {
		answer := strings.TrimSpace(h.Answer)
		if answer == "" {
			continue
		}
		value := answer
		if tok, ok := ExtractToken(field, answer); ok {
			value = tok
		}
		return FieldResult{
			FieldName:  field,
			Value:      Truncate(value, MaxValueChars),
			Confidence: ConfidenceAnswer,
			SourceURL:  h.URL,
			Origin:     OriginAnswer,
		}, true
	}

	var (
		best      Hit
		bestScore float64
		bestToken string
	)
	for _, h := range hits {
		snippet := strings.TrimSpace(h.Snippet)
		if snippet == "" {
			continue
		}
		score := float64(len(snippet))
		if containsAny(strings.ToLower(snippet), Keywords(field)) {
			score *= 1.1
		}
		tok, matched := ExtractToken(field, snippet)
		if matched {
			score += 1e6
		}
		if score > bestScore {
			best, bestScore, bestToken = h, score, tok
		}
	}
	if bestScore == 0 {
		return Unresolved(field, ""), false
	}
	value := bestToken
	if value == "" {
		value = strings.TrimSpace(best.Snippet)
	}
	return FieldResult{
		FieldName:  field,
		Value:      Truncate(value, MaxValueChars),
		Confidence: ConfidenceSnippet,
		SourceURL:  best.URL,
		Origin:     OriginSnippet,
	}, true
}

// GuessFromText derives a field value from fetched page text. A pattern match
// scores above a plain keyword window.
func GuessFromText(field, text, url string) (FieldResult, bool) {
	if tok, ok := ExtractToken(field, text); ok {
		return FieldResult{
			FieldName:  field,
			Value:      tok,
			Confidence: ConfidencePageMatch,
			SourceURL:  url,
			Origin:     OriginPage,
		}, true
	}

	lowered := strings.ToLower(text)
	if len(lowered) != len(text) {
		// case folding changed byte offsets; slice the folded copy instead
		text = lowered
	}
	for _, kw := range Keywords(field) {
		idx := strings.Index(lowered, kw)
		if idx < 0 {
			continue
		}
		focused := strings.TrimSpace(clip(text, idx-pageWindow, idx+len(kw)+pageWindow))
		if focused == "" {
			continue
		}
		return FieldResult{
			FieldName:  field,
			Value:      Truncate(focused, MaxValueChars),
			Confidence: ConfidencePageWindow,
			SourceURL:  url,
			Origin:     OriginPage,
		}, true
	}
	return Unresolved(field, ""), false
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// clip returns s[start:end] with bounds clamped and moved to rune starts.
func clip(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	for start > 0 && start < len(s) && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	if start >= end {
		return ""
	}
	return s[start:end]
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
