// Package normalize coerces the untrusted fields of a parsed invoice record
// into validated, typed values. Everything here is pure and never fails: an
// ambiguous or missing field becomes its documented default, because a
// partially-correct line item beats dropped data when a human reviews every
// item downstream.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"invoicescan/constants"
	"invoicescan/internal/llm"
)

// vatRate is the Taiwanese business tax rate used when deriving a missing
// input tax from a tax-inclusive total.
const vatRate = 0.05

var (
	reDigits        = regexp.MustCompile(`[0-9]`)
	reInvoiceNumber = regexp.MustCompile(`^[A-Z]{2}\d{8}$`)
	reISODate       = regexp.MustCompile(`^(\d{3,4})-(\d{1,2})(?:-(\d{1,2}))?$`)
	reCJKDate       = regexp.MustCompile(`(\d{1,4})\s*年(?:\s*(\d{1,2})\s*月)?(?:\s*(\d{1,2})\s*日)?`)
	reNonAlnum      = regexp.MustCompile(`[^0-9A-Za-z]`)
)

// Header holds the validated invoice-level fields shared by every line item
// reconciled from one record.
type Header struct {
	Vendor        string
	TaxID         *string
	Date          *string
	InvoiceNumber *string
	TotalWithTax  *float64
	TaxAmount     float64
	Category      string
	ZeroRated     bool
}

// Invoice validates and defaults every invoice-level field of rec.
//
// Tax policy: an explicit tax figure is used verbatim. A missing tax on a
// non-exempt invoice is derived as round(total - total/1.05); zero-rated and
// exempt records always get 0. The two policies are never blended.
func Invoice(rec llm.ParsedInvoiceRecord) Header {
	h := Header{
		Vendor:        strings.TrimSpace(rec.SupplierName),
		TaxID:         TaxID(rec.SupplierTaxID),
		Date:          Date(rec.InvoiceDate),
		InvoiceNumber: InvoiceNumber(rec.InvoiceNumber),
		Category:      constants.CanonicalizeCategory(rec.Category),
	}
	h.ZeroRated = rec.TaxExempt || constants.IsZeroRated(h.Category)

	if rec.TotalAmount != nil && *rec.TotalAmount >= 0 {
		total := *rec.TotalAmount
		h.TotalWithTax = &total
	}

	switch {
	case h.ZeroRated:
		h.TaxAmount = 0
	case rec.TaxAmount != nil && *rec.TaxAmount >= 0:
		h.TaxAmount = *rec.TaxAmount
	case h.TotalWithTax != nil:
		h.TaxAmount = DeriveTax(*h.TotalWithTax)
	}
	if h.TotalWithTax != nil && h.TaxAmount > *h.TotalWithTax {
		h.TaxAmount = *h.TotalWithTax
	}
	return h
}

// TaxID keeps only ASCII digits and accepts the result only when it is
// exactly 8 of them. Anything else is nil, never a guessed value.
func TaxID(raw string) *string {
	digits := strings.Join(reDigits.FindAllString(raw, -1), "")
	if len(digits) != 8 {
		return nil
	}
	return &digits
}

// InvoiceNumber uppercases, strips separators, and revalidates against the
// two-letters-plus-eight-digits track format. A residual string that does not
// match is rejected rather than coerced: we never guess which characters were
// meant to be the letter prefix.
func InvoiceNumber(raw string) *string {
	s := reNonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
	if !reInvoiceNumber.MatchString(s) {
		return nil
	}
	return &s
}

// Date normalizes a date token to YYYY-MM-DD, converting Republic-of-China
// years (+1911) when the token carries a 年 marker or a 3-digit year in a
// dash-separated form. A bare 1–2 digit year without 年 is ambiguous with a
// short Gregorian year and is never converted; with no usable date at all the
// result is nil. Applying Date to its own output is a no-op.
func Date(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if m := reCJKDate.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year <= 200 {
			year += 1911
		}
		month, day := 1, 1
		if m[2] != "" {
			month, _ = strconv.Atoi(m[2])
		}
		if m[3] != "" {
			day, _ = strconv.Atoi(m[3])
		}
		return formatDate(year, month, day)
	}

	s = strings.NewReplacer("/", "-", ".", "-", "年", "-", "月", "-", "日", "").Replace(s)
	m := reISODate.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	year, _ := strconv.Atoi(m[1])
	if len(m[1]) == 3 {
		if year > 200 {
			return nil
		}
		year += 1911
	}
	month, _ := strconv.Atoi(m[2])
	day := 1 // day unknown within a stated month defaults to the first
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
	}
	return formatDate(year, month, day)
}

func formatDate(year, month, day int) *string {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date silently rolls over out-of-range components; treat that as
	// an unusable date rather than emit a shifted one.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	s := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	return &s
}

// DeriveTax computes the 5% input tax embedded in a tax-inclusive total.
func DeriveTax(totalWithTax float64) float64 {
	if totalWithTax <= 0 {
		return 0
	}
	return math.Round(totalWithTax - totalWithTax/(1+vatRate))
}
