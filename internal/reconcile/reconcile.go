// Package reconcile expands normalized invoice records into flat line items
// and checks amount consistency.
package reconcile

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"invoicescan/internal/entity"
	"invoicescan/internal/llm"
	"invoicescan/internal/normalize"
)

// sumTolerance is the allowed absolute difference per item between the stated
// invoice total and the sum of its line amounts, to absorb integer rounding.
const sumTolerance = 1.0

// Invoice expands one record into line items that all inherit the normalized
// header. Warnings are advisory: a mismatched total never rejects the
// invoice, since the user reviews every item regardless.
func Invoice(rec llm.ParsedInvoiceRecord, h normalize.Header, sourceFileName string) ([]entity.LineItem, []string) {
	var warnings []string

	newItem := func(amount, tax float64, blockIDs []string) entity.LineItem {
		if tax < 0 {
			tax = 0
		}
		if amount < 0 {
			amount = 0
		}
		if tax > amount {
			// invariant: the implied untaxed base is never negative
			tax = amount
		}
		if blockIDs == nil {
			blockIDs = rec.SourceBlockIDs
		}
		return entity.LineItem{
			ID:             uuid.NewString(),
			Category:       h.Category,
			Vendor:         h.Vendor,
			TaxID:          h.TaxID,
			Date:           h.Date,
			InvoiceNumber:  h.InvoiceNumber,
			AmountWithTax:  amount,
			InputTax:       tax,
			SourceFileName: sourceFileName,
			SourceBlockIDs: blockIDs,
		}
	}

	if len(rec.Items) == 0 {
		if h.TotalWithTax == nil {
			warnings = append(warnings, fmt.Sprintf("%s: invoice has no items and no total, nothing to reconcile", sourceFileName))
			return nil, warnings
		}
		return []entity.LineItem{newItem(*h.TotalWithTax, h.TaxAmount, nil)}, nil
	}

	items := make([]entity.LineItem, 0, len(rec.Items))
	var sum float64
	for i, sub := range rec.Items {
		var amount float64
		if sub.Amount != nil {
			amount = *sub.Amount
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: item %d has no amount, defaulted to 0", sourceFileName, i+1))
		}

		// Invoice-level tax goes to the first item only; splitting it
		// would fabricate precision the source data does not have.
		var tax float64
		switch {
		case sub.Tax != nil:
			tax = *sub.Tax
		case i == 0:
			tax = h.TaxAmount
		}

		items = append(items, newItem(amount, tax, sub.BlockIDs))
		sum += amount
	}

	if h.TotalWithTax != nil {
		if diff := math.Abs(sum - *h.TotalWithTax); diff > sumTolerance*float64(len(items)) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: item amounts sum to %.0f but invoice total is %.0f", sourceFileName, sum, *h.TotalWithTax))
		}
	}
	return items, warnings
}

// Records normalizes and reconciles every record of one file, concatenating
// results in input order. A single photographed page may carry several
// receipts; each is processed independently.
func Records(recs []llm.ParsedInvoiceRecord, sourceFileName string) ([]entity.LineItem, []string) {
	var items []entity.LineItem
	var warnings []string
	for _, rec := range recs {
		lineItems, w := Invoice(rec, normalize.Invoice(rec), sourceFileName)
		items = append(items, lineItems...)
		warnings = append(warnings, w...)
	}
	return items, warnings
}
