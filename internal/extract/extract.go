package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// authorityTail is how many runes after the keyword are kept as the
// issuing-authority description.
const authorityTail = 100

var (
	// Hyphenated double names count as one word.
	namePattern = regexp.MustCompile(`[А-ЯЁ][а-яё]+(?:-[А-ЯЁ][а-яё]+)*(?: [А-ЯЁ][а-яё]+(?:-[А-ЯЁ][а-яё]+)*){2,}`)

	// Passport number layouts in priority order. Series and number may be
	// split by "№".
	passportPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{2})[ -]?(\d{2})(?: ?№ ?|[ -])(\d{6})`),
		regexp.MustCompile(`(\d{4})(?: ?№ ?|[ -])(\d{6})`),
		regexp.MustCompile(`(\d{10})`),
	}

	// OCR frequently reads the dots as spaces.
	datePattern = regexp.MustCompile(`(\d{1,2})(?:\. ?| )(\d{1,2})(?:\. ?| )(\d{4})`)

	divisionPattern = regexp.MustCompile(`(\d{3}) ?[-‐‑–—] ?(\d{3})`)

	// Longer keywords come first so "ГУ МВД" wins over "МВД" at the same offset.
	authorityPattern = regexp.MustCompile(`(?i)(?:ГУ МВД|ОУФМС|УФМС|ФМС|МВД|УВД|ОВД|ОВИР|отделением|отделом)`)

	whitespace = regexp.MustCompile(`\s+`)
)

// Extract recovers identity fields from raw OCR text. Each field is
// matched independently; fields that do not match are absent from the
// result. Extract never fails.
func Extract(rawText string) Fields {
	text := Normalize(rawText)
	fields := Fields{}
	if text == "" {
		return fields
	}

	if v, ok := extractFullName(text); ok {
		fields[FullName] = v
	}
	if v, ok := extractPassportNumber(text); ok {
		fields[PassportNumber] = v
	}
	if v, ok := extractIssueDate(text); ok {
		fields[IssueDate] = v
	}
	if v, ok := extractDivisionCode(text); ok {
		fields[DivisionCode] = v
	}
	if v, ok := extractIssuingAuthority(text); ok {
		fields[IssuingAuthority] = v
	}
	return fields
}

// Normalize collapses whitespace runs, line breaks included, into single
// spaces and trims the ends.
func Normalize(rawText string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(rawText, " "))
}

// extractFullName picks the longest run of three or more capitalized
// Cyrillic words that stands on word boundaries. Ties keep the earliest
// run.
func extractFullName(text string) (string, bool) {
	best, bestLen := "", 0
	eachMatch(namePattern, text, wordBounded, func(m match) bool {
		if n := utf8.RuneCountInString(m.groups[0]); n > bestLen {
			best, bestLen = m.groups[0], n
		}
		return false
	})
	return best, bestLen > 0
}

func extractPassportNumber(text string) (string, bool) {
	for _, re := range passportPatterns {
		v, ok := firstMatch(re, text, digitBounded, func(m match) (string, bool) {
			digits := strings.Join(m.groups[1:], "")
			if len(digits) != 10 {
				return "", false
			}
			return digits[:4] + " " + digits[4:], true
		})
		if ok {
			return v, true
		}
	}
	return "", false
}

func extractIssueDate(text string) (string, bool) {
	return firstMatch(datePattern, text, digitBounded, func(m match) (string, bool) {
		day, _ := strconv.Atoi(m.groups[1])
		month, _ := strconv.Atoi(m.groups[2])
		year, _ := strconv.Atoi(m.groups[3])
		if len(m.groups[3]) != 4 || year <= 1900 {
			return "", false
		}
		if month < 1 || month > 12 || day < 1 {
			return "", false
		}
		if t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC); t.Day() != day {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	})
}

func extractDivisionCode(text string) (string, bool) {
	return firstMatch(divisionPattern, text, digitBounded, func(m match) (string, bool) {
		return m.groups[1] + "-" + m.groups[2], true
	})
}

func extractIssuingAuthority(text string) (string, bool) {
	return firstMatch(authorityPattern, text, letterBounded, func(m match) (string, bool) {
		tail := []rune(text[m.end:])
		if len(tail) > authorityTail {
			tail = tail[:authorityTail]
		}
		return strings.TrimSpace(m.groups[0] + string(tail)), true
	})
}

type match struct {
	groups     []string
	start, end int
}

// firstMatch returns the first match in reading order that sits on valid
// boundaries and passes accept.
func firstMatch(re *regexp.Regexp, text string, bounded func(text string, start, end int) bool,
	accept func(m match) (string, bool)) (string, bool) {
	var value string
	found := eachMatch(re, text, bounded, func(m match) bool {
		v, ok := accept(m)
		value = v
		return ok
	})
	return value, found
}

// eachMatch walks re matches in reading order and calls fn for those that
// sit on valid boundaries until fn returns true. Unlike FindAll it resumes
// one rune after every match start, so overlapping candidates are still
// considered.
func eachMatch(re *regexp.Regexp, text string, bounded func(text string, start, end int) bool,
	fn func(m match) bool) bool {
	offset := 0
	for offset < len(text) {
		loc := re.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return false
		}
		m := match{start: offset + loc[0], end: offset + loc[1]}

		if bounded(text, m.start, m.end) {
			m.groups = make([]string, len(loc)/2)
			for i := range m.groups {
				if loc[2*i] >= 0 {
					m.groups[i] = text[offset+loc[2*i] : offset+loc[2*i+1]]
				}
			}
			if fn(m) {
				return true
			}
		}

		_, size := utf8.DecodeRuneInString(text[m.start:])
		if size == 0 {
			size = 1
		}
		offset = m.start + size
	}
	return false
}

// digitBounded rejects matches glued to further digits.
func digitBounded(text string, start, end int) bool {
	if start > 0 && isDigit(text[start-1]) {
		return false
	}
	if end < len(text) && isDigit(text[end]) {
		return false
	}
	return true
}

// letterBounded rejects keyword matches that start inside a word.
func letterBounded(text string, start, _ int) bool {
	if start == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return !unicode.IsLetter(prev)
}

// wordBounded rejects runs that start or end inside a word. A hyphen
// before the start means the run is the tail of a double name.
func wordBounded(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) || prev == '-' {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
