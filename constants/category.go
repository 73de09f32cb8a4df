package constants

import (
	"strconv"
	"strings"
)

// DefaultCategory is assumed when a record carries no usable category code.
const DefaultCategory = "0"

// categoryLabels maps the ten Taiwanese voucher category codes to their
// display labels, as used on the 401 business tax return.
var categoryLabels = map[string]string{
	"0": "電子發票",
	"1": "三聯式手開發票",
	"2": "三聯式收銀機發票",
	"3": "二聯式收銀機發票(含機票,車票,水電費收據...等)",
	"4": "進貨折讓證明單",
	"5": "海關進出口貨物稅費繳納證",
	"6": "三聯式零稅率發票",
	"7": "進貨零稅率折讓證明單",
	"8": "海關進口代徵退還溢繳營業稅",
	"9": "境外電商及不得扣抵之電子發票(僅勾稽使用)",
}

// CategoryLabel returns the display label for a known category code.
func CategoryLabel(code string) (string, bool) {
	label, ok := categoryLabels[code]
	return label, ok
}

// CategoryCodes returns the known codes in ascending order.
func CategoryCodes() []string {
	codes := make([]string, 0, len(categoryLabels))
	for i := 0; i <= 9; i++ {
		codes = append(codes, strconv.Itoa(i))
	}
	return codes
}

// CanonicalizeCategory normalizes a raw model-supplied category to a code.
// Numeric inputs ("3", "3.0") collapse to their single-digit code; known
// label text maps back to its code; anything else passes through trimmed so
// the caller can still display it. Empty input falls back to DefaultCategory.
func CanonicalizeCategory(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return DefaultCategory
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n := int(f)
		if float64(n) == f && n >= 0 && n <= 9 {
			return strconv.Itoa(n)
		}
	}
	if _, ok := categoryLabels[s]; ok {
		return s
	}
	for code, label := range categoryLabels {
		if s == label {
			return code
		}
	}
	return s
}

// IsZeroRated reports whether a category code denotes a zero-rated voucher,
// for which input tax must never be derived.
func IsZeroRated(code string) bool {
	return code == "6" || code == "7"
}
