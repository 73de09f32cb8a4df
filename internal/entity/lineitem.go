package entity

// LineItem is the atomic output unit of the pipeline: one expense row ready
// for accounting review.
type LineItem struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Vendor         string   `json:"vendor"`
	TaxID          *string  `json:"tax_id"`         // exactly 8 digits when set
	Date           *string  `json:"date"`           // YYYY-MM-DD
	InvoiceNumber  *string  `json:"invoice_number"` // two letters + 8 digits
	AmountWithTax  float64  `json:"amount_with_tax"`
	InputTax       float64  `json:"input_tax"`
	Confirmed      bool     `json:"confirmed"`
	SourceFileName string   `json:"sourceFileName"`
	SourceBlockIDs []string `json:"sourceBlockIds"`
}

// AmountWithoutTax is the implied untaxed base. The reconciler guarantees it
// is never negative.
func (li LineItem) AmountWithoutTax() float64 {
	return li.AmountWithTax - li.InputTax
}
