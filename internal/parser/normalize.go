package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

var (
	numericDate = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4}|\d{2})$`)
	isoDate     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dayMonth    = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-]+([A-Za-z]{3,9})\.?[\s\-,]+('?\d{4}|'?\d{2})$`)
	monthDay    = regexp.MustCompile(`^([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+('?\d{4}|'?\d{2})$`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate reads the day-first date layouts found in bank statements:
// dd/mm/yy, dd/mm/yyyy, dd-mm-yy, dd-mm-yyyy, d MMM yyyy, d MMM 'yy,
// d-MMM-yyyy, d Month yyyy, Month d, yyyy and ISO yyyy-mm-dd.
// Two-digit years pivot at 50: 00-49 map to 20xx, 50-99 to 19xx.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return civil.Date{}, false
	}

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], monthFromNumber(m[2]), m[3])
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], monthFromNumber(m[2]), m[1])
	}
	if m := dayMonth.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], monthFromName(m[2]), m[1])
	}
	if m := monthDay.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], monthFromName(m[1]), m[2])
	}
	return civil.Date{}, false
}

func monthFromNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func monthFromName(s string) time.Month {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0
	}
	return months[s[:3]]
}

func makeDate(year string, month time.Month, day string) (civil.Date, bool) {
	if month == 0 {
		return civil.Date{}, false
	}
	y, ok := expandYear(year)
	if !ok {
		return civil.Date{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return civil.Date{}, false
	}
	date := civil.Date{Year: y, Month: month, Day: d}
	if !date.IsValid() {
		return civil.Date{}, false
	}
	return date, true
}

func expandYear(s string) (int, bool) {
	s = strings.TrimPrefix(s, "'")
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	switch len(s) {
	case 2:
		if y < 50 {
			return 2000 + y, true
		}
		return 1900 + y, true
	case 4:
		return y, true
	}
	return 0, false
}

var amountNoise = strings.NewReplacer(
	",", "",
	`"`, "",
	"'", "",
	"₹", "",
	"$", "",
	"€", "",
	"£", "",
	" ", "",
	"\u00a0", "",
)

// ParseAmount normalizes a statement amount cell. Currency symbols and
// codes, thousands separators and quotes are stripped; a parenthesized value
// is returned negative. Empty cells and placeholders ("-", "--") report
// ok=false, as does anything that is not a number after cleanup.
func ParseAmount(s string) (float64, bool) {
	d, ok := parseDecimal(s)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, code := range []string{"INR", "RS.", "RS", "USD", "GBP", "EUR"} {
		if strings.HasPrefix(upper, code) {
			s = s[len(code):]
			upper = upper[len(code):]
		}
		if strings.HasSuffix(upper, code) {
			s = s[:len(s)-len(code)]
			upper = upper[:len(upper)-len(code)]
		}
	}
	s = amountNoise.Replace(s)
	if s == "" || strings.Trim(s, "-") == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// TransactionID builds the deterministic row identifier
// {userID}#{yyyymmdd}#{seq}. seq is the zero-based position of the row among
// the rows emitted by one parse.
func TransactionID(userID string, date civil.Date, seq int) string {
	return fmt.Sprintf("%s#%04d%02d%02d#%d", userID, date.Year, int(date.Month), date.Day, seq)
}
