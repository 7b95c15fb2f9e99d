package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// normalizeText applies Unicode NFC, trims, and collapses internal whitespace
// (including non-breaking spaces) to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

var currencySuffixes = []string{"kč", "czk", "kc", ",-", ".-"}

// parseAmount reads upstream amounts such as "1 234,50", "1234.50",
// "1.234.567,00 Kč" or "250000 CZK".
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(normalizeText(raw))
	for trimmed := true; trimmed; {
		trimmed = false
		for _, suffix := range currencySuffixes {
			if strings.HasSuffix(s, suffix) {
				s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
				trimmed = true
			}
		}
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}

	comma := strings.Count(s, ",")
	dot := strings.Count(s, ".")
	switch {
	case comma > 0 && dot > 0:
		// the separator that appears last is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma == 1:
		s = strings.Replace(s, ",", ".", 1)
	case comma > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dot > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", strings.TrimSpace(raw))
	}
	return d, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"2.1.2006",
}

// parseDate accepts ISO dates and timestamps and Czech "dd.mm.yyyy" dates,
// returning midnight UTC of the calendar day.
func parseDate(raw string) (time.Time, error) {
	s := strings.ReplaceAll(normalizeText(raw), ". ", ".")
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q is not in a known format", strings.TrimSpace(raw))
}

// parseCoordinate returns nil for empty or out-of-range values; coordinates
// are optional, so a bad value never fails the record.
func parseCoordinate(raw string, limit float64) *float64 {
	s := strings.Replace(normalizeText(raw), ",", ".", 1)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < -limit || v > limit {
		return nil
	}
	return &v
}

// naturalKey hashes the composite dedup key of a contract without an external id.
func naturalKey(title string, amount decimal.Decimal, date time.Time, supplier, authority string) string {
	parts := []string{
		strings.ToLower(normalizeText(title)),
		amount.StringFixed(2),
		date.Format("2006-01-02"),
		strings.ToLower(normalizeText(supplier)),
		strings.ToLower(normalizeText(authority)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// sameName compares supplier names ignoring case and spacing.
func sameName(a, b string) bool {
	return strings.EqualFold(normalizeText(a), normalizeText(b))
}
