package ticket

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold reduces s to printable ASCII so one byte is one printed column.
// Accents are stripped, anything else outside ASCII becomes '?', and control
// bytes in order data never reach the printer.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
		case r < 0x80:
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func Rule(width int, ch byte) string {
	return strings.Repeat(string(ch), width)
}

func Center(width int, s string) string {
	s = truncate(s, width)
	return strings.Repeat(" ", (width-len(s))/2) + s
}

func Banner(width int, title string) []string {
	return []string{Rule(width, '='), Center(width, title), Rule(width, '=')}
}

// LabelValue pads between label and value so the value ends on the last
// column. The value is truncated when both do not fit.
func LabelValue(width int, label, value string) string {
	pad := width - len(label) - len(value)
	if pad < 1 {
		room := width - len(label) - 1
		if room < 0 {
			return truncate(label, width)
		}
		value = truncate(value, room)
		pad = width - len(label) - len(value)
	}
	return label + strings.Repeat(" ", pad) + value
}

// DotLeader renders "<qty>x <name>....<price>" exactly width columns wide.
// When the name does not fit it is truncated before the price is touched.
func DotLeader(width, qty int, name, price string) string {
	left := strconv.Itoa(qty) + "x " + name
	n := width - len(left) - len(price)
	if n < 0 {
		left = truncate(left, len(left)+n)
		if len(price) > width {
			price = truncate(price, width)
		}
		n = width - len(left) - len(price)
	}
	return left + strings.Repeat(".", n) + price
}

// Wrap splits text into lines of at most width columns on word boundaries.
// Words longer than width are split hard.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return nil
	}

	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		for len(word) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case word == "":
		case cur == "":
			cur = word
		case len(cur)+1+len(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// FormatMoney renders minor units with two decimals and an optional prefix.
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := amount % 100
	whole := amount / 100
	frac := strconv.FormatInt(cents, 10)
	if cents < 10 {
		frac = "0" + frac
	}
	return sign + currency + strconv.FormatInt(whole, 10) + "." + frac
}
