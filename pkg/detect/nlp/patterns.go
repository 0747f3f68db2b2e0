package nlp

import (
	"regexp"
	"strings"
	"time"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// match is one regex hit within a line of text.
type match struct {
	typ        pii.Type
	text       string
	start, end int // rune offsets within the line
	confidence float64
	metadata   map[string]any
}

// matcher scans one line for a single PII family.
type matcher func(line string) []match

var (
	// Local part must start and end on an alphanumeric so stray dots around
	// an address are not swallowed.
	emailRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._%+\-]*@[A-Za-z0-9][A-Za-z0-9.\-]*\.[A-Za-z]{2,}`)

	phoneUSRe     = regexp.MustCompile(`\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}`)
	phoneIntlRe   = regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{2,4}(?:[-.\s]?\d{2,4}){2,3}`)
	phoneIndiaRe  = regexp.MustCompile(`(?:\+91[-.\s]?)?[6-9]\d{4}[-.\s]?\d{5}`)
	ssnDashedRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ssnSpacedRe   = regexp.MustCompile(`\b\d{3} \d{2} \d{4}\b`)
	ssnBareRe     = regexp.MustCompile(`\b\d{9}\b`)
	creditCardRe  = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)
	dobSlashRe    = regexp.MustCompile(`\b(0?[1-9]|1[0-2])[/\-](0?[1-9]|[12]\d|3[01])[/\-]((?:19|20)\d{2})\b`)
	dobISORe      = regexp.MustCompile(`\b((?:19|20)\d{2})-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])\b`)
	ipv4Re        = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)
	indicScriptRe = regexp.MustCompile(`[\p{Devanagari}]{3,}(?:\s+[\p{Devanagari}]{2,})*|[\p{Bengali}]{3,}(?:\s+[\p{Bengali}]{2,})*|[\p{Tamil}]{3,}(?:\s+[\p{Tamil}]{2,})*|[\p{Telugu}]{3,}(?:\s+[\p{Telugu}]{2,})*`)

	commonTLDs = map[string]bool{"com": true, "org": true, "net": true, "edu": true, "gov": true}
)

// allMatchers runs in order; later duplicate-overlap removal resolves
// families that fire on the same span.
var allMatchers = []matcher{
	matchEmails,
	matchPhones,
	matchSSNs,
	matchCreditCards,
	matchDatesOfBirth,
	matchIPv4,
	matchIndicNames,
}

func matchEmails(line string) []match {
	var out []match
	for _, loc := range emailRe.FindAllStringIndex(line, -1) {
		text := line[loc[0]:loc[1]]
		conf := 0.90

		at := strings.LastIndex(text, "@")
		local, domain := text[:at], text[at+1:]
		if dot := strings.LastIndex(domain, "."); dot >= 0 && commonTLDs[strings.ToLower(domain[dot+1:])] {
			conf += 0.05
		}
		if !strings.ContainsFunc(local, isLetter) {
			// All-digit or symbol-only local parts are usually IDs, not
			// personal addresses.
			conf -= 0.20
		}
		if strings.Contains(local, "..") || strings.Contains(domain, "..") {
			// Consecutive dots point at OCR noise rather than a real address.
			conf -= 0.15
		}
		out = append(out, match{
			typ: pii.TypeEmail, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: conf,
		})
	}
	return out
}

func matchPhones(line string) []match {
	var out []match
	add := func(loc []int, conf float64, region string) {
		text := line[loc[0]:loc[1]]
		out = append(out, match{
			typ: pii.TypePhone, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: conf,
			metadata: map[string]any{
				"normalized":      formatPhone(normalizeDigits(text), region),
				"original_format": text,
				"region":          region,
			},
		})
	}
	for _, loc := range phoneUSRe.FindAllStringIndex(line, -1) {
		add(loc, 0.85, "us")
	}
	for _, loc := range phoneIntlRe.FindAllStringIndex(line, -1) {
		if !overlapsAny(out, loc, line) {
			add(loc, 0.80, "international")
		}
	}
	for _, loc := range phoneIndiaRe.FindAllStringIndex(line, -1) {
		if !overlapsAny(out, loc, line) {
			add(loc, 0.80, "in")
		}
	}
	return out
}

func matchSSNs(line string) []match {
	var out []match
	add := func(loc []int, conf float64, form string) {
		text := line[loc[0]:loc[1]]
		out = append(out, match{
			typ: pii.TypeSSN, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: conf,
			metadata:   map[string]any{"form": form},
		})
	}
	for _, loc := range ssnDashedRe.FindAllStringIndex(line, -1) {
		add(loc, 0.92, "dashed")
	}
	for _, loc := range ssnSpacedRe.FindAllStringIndex(line, -1) {
		add(loc, 0.85, "spaced")
	}
	// A bare 9-digit run is ambiguous without context.
	for _, loc := range ssnBareRe.FindAllStringIndex(line, -1) {
		if !overlapsAny(out, loc, line) {
			add(loc, 0.60, "bare")
		}
	}
	return out
}

func matchCreditCards(line string) []match {
	var out []match
	for _, loc := range creditCardRe.FindAllStringIndex(line, -1) {
		text := line[loc[0]:loc[1]]
		digits := normalizeDigits(text)
		if len(digits) < 13 || len(digits) > 19 || !luhnValid(digits) {
			continue
		}
		out = append(out, match{
			typ: pii.TypeCreditCard, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: 0.90,
			metadata:   map[string]any{"luhn_valid": true},
		})
	}
	return out
}

func matchDatesOfBirth(line string) []match {
	maxYear := time.Now().Year() - 5
	var out []match
	add := func(loc []int, year int) {
		if year < 1900 || year > maxYear {
			return
		}
		text := line[loc[0]:loc[1]]
		out = append(out, match{
			typ: pii.TypeDateOfBirth, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: 0.70,
			metadata:   map[string]any{"year": year},
		})
	}
	for _, loc := range dobSlashRe.FindAllStringSubmatchIndex(line, -1) {
		add(loc[:2], atoiSafe(line[loc[6]:loc[7]]))
	}
	for _, loc := range dobISORe.FindAllStringSubmatchIndex(line, -1) {
		add(loc[:2], atoiSafe(line[loc[2]:loc[3]]))
	}
	return out
}

func matchIPv4(line string) []match {
	var out []match
	for _, loc := range ipv4Re.FindAllStringSubmatchIndex(line, -1) {
		valid := true
		for g := 1; g <= 4; g++ {
			if atoiSafe(line[loc[2*g]:loc[2*g+1]]) > 255 {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		text := line[loc[0]:loc[1]]
		out = append(out, match{
			typ: pii.TypeIPAddress, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: 0.85,
		})
	}
	return out
}

// matchIndicNames flags word runs in Indic scripts as probable personal
// names; Latin-trained NER misses these entirely.
func matchIndicNames(line string) []match {
	var out []match
	for _, loc := range indicScriptRe.FindAllStringIndex(line, -1) {
		text := line[loc[0]:loc[1]]
		out = append(out, match{
			typ: pii.TypeName, text: text,
			start: runeOffset(line, loc[0]), end: runeOffset(line, loc[1]),
			confidence: 0.70,
			metadata:   map[string]any{"script": scriptOf(text)},
		})
	}
	return out
}

func scriptOf(s string) string {
	for _, r := range s {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			return "devanagari"
		case r >= 0x0980 && r <= 0x09FF:
			return "bengali"
		case r >= 0x0B80 && r <= 0x0BFF:
			return "tamil"
		case r >= 0x0C00 && r <= 0x0C7F:
			return "telugu"
		}
	}
	return "unknown"
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// formatPhone renders a digit run in canonical presentation: a US national
// number as (NNN) NNN-NNNN, everything else as +CC followed by the national
// number.
func formatPhone(digits, region string) string {
	switch region {
	case "us":
		if len(digits) == 10 {
			return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
		}
	case "in":
		if len(digits) == 10 {
			return "+91 " + digits
		}
	}
	if len(digits) > 10 {
		return "+" + digits[:len(digits)-10] + " " + digits[len(digits)-10:]
	}
	return "+" + digits
}

func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// runeOffset converts a byte offset into a rune offset.
func runeOffset(s string, byteOff int) int {
	return len([]rune(s[:byteOff]))
}

// overlapsAny reports whether loc overlaps an existing match span.
func overlapsAny(existing []match, loc []int, line string) bool {
	start, end := runeOffset(line, loc[0]), runeOffset(line, loc[1])
	for _, m := range existing {
		if start < m.end && m.start < end {
			return true
		}
	}
	return false
}
