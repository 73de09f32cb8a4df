package entity

import "time"

// ExportedLineItem is the flattened, UI-agnostic record handed to downstream
// accounting tools. Internal-only fields (block references, confirmation
// state) are deliberately absent.
type ExportedLineItem struct {
	Category         string  `json:"category"`
	Vendor           string  `json:"vendor"`
	TaxID            *string `json:"tax_id"`
	Date             *string `json:"date"`
	InvoiceNumber    *string `json:"invoice_number"`
	AmountWithoutTax float64 `json:"amount_without_tax"`
	TaxAmount        float64 `json:"tax_amount"`
	AmountWithTax    float64 `json:"amount_with_tax"`
	SourceFile       string  `json:"source_file"`
}

// ExportBundle is a read-only projection over the successful files of a
// batch, derived on demand and never independently mutated.
type ExportBundle struct {
	ExportedAt time.Time          `json:"exportedAt"`
	TotalItems int                `json:"totalItems"`
	Items      []ExportedLineItem `json:"items"`
}
