package llm

import (
	"strconv"
	"strings"
)

// ParsedItem is one untrusted sub-item of an invoice record.
type ParsedItem struct {
	Description string
	Amount      *float64
	Tax         *float64
	BlockIDs    []string
}

// ParsedInvoiceRecord is the untrusted, loosely-typed invoice shape produced
// by decoding model output. Field names and types in the wild are
// inconsistent; DecodeRecords folds the known synonyms into this one struct
// and nothing loosely typed escapes this package.
type ParsedInvoiceRecord struct {
	SupplierName   string
	SupplierTaxID  string
	InvoiceNumber  string
	InvoiceDate    string
	Category       string
	TotalAmount    *float64
	TaxAmount      *float64
	TaxExempt      bool
	Items          []ParsedItem
	SourceBlockIDs []string
}

// DecodeRecords turns an extracted JSON object into zero or more invoice
// records, preserving input order. Three response shapes are understood:
//
//   - {"invoices": [...]}                 one record per element
//   - {"lineItems": [...], "metadata": …} one record per line item, with
//     invoice-level fields backfilled from metadata and block references
//     validated against the returned ocrBlocks
//   - a single invoice object
func DecodeRecords(obj map[string]any) []ParsedInvoiceRecord {
	if obj == nil {
		return nil
	}

	if arr, ok := obj["invoices"].([]any); ok {
		records := make([]ParsedInvoiceRecord, 0, len(arr))
		for _, el := range arr {
			if m, ok := el.(map[string]any); ok {
				records = append(records, decodeRecord(m, nil))
			}
		}
		return records
	}

	if arr, ok := obj["lineItems"].([]any); ok {
		meta, _ := obj["metadata"].(map[string]any)
		known := blockIDSet(obj["ocrBlocks"])
		records := make([]ParsedInvoiceRecord, 0, len(arr))
		for _, el := range arr {
			m, ok := el.(map[string]any)
			if !ok {
				continue
			}
			rec := decodeRecord(m, meta)
			rec.SourceBlockIDs = filterBlockIDs(rec.SourceBlockIDs, known)
			records = append(records, rec)
		}
		if len(records) == 0 && meta != nil {
			if total := asNumber(meta["total_amount"], meta["total"]); total != nil {
				rec := decodeRecord(meta, nil)
				rec.TotalAmount = total
				records = append(records, rec)
			}
		}
		return records
	}

	return []ParsedInvoiceRecord{decodeRecord(obj, nil)}
}

func decodeRecord(m, meta map[string]any) ParsedInvoiceRecord {
	rec := ParsedInvoiceRecord{
		SupplierName:   firstString(m, "supplier_name", "vendor", "vendor_name", "merchant_name", "seller_name"),
		SupplierTaxID:  firstString(m, "supplier_tax_id", "tax_id", "seller_tax_id"),
		InvoiceNumber:  firstString(m, "invoice_number", "invoice_no"),
		InvoiceDate:    firstString(m, "invoice_date", "date", "tx_date"),
		Category:       firstString(m, "category", "invoice_type"),
		TotalAmount:    asNumber(m["total_amount"], m["amount_with_tax"], m["amount_inclusive_tax"], m["total"], m["amount"]),
		TaxAmount:      asNumber(m["tax_amount"], m["input_tax"], m["tax"]),
		SourceBlockIDs: asStringSlice(m["sourceBlockIds"]),
	}

	if b, ok := m["tax_exempt"].(bool); ok {
		rec.TaxExempt = b
	}
	for _, hint := range []string{rec.Category, firstString(m, "tax_type")} {
		if strings.Contains(hint, "免稅") || strings.Contains(hint, "零稅率") {
			rec.TaxExempt = true
		}
	}

	if arr, ok := m["items"].([]any); ok {
		for _, el := range arr {
			im, ok := el.(map[string]any)
			if !ok {
				continue
			}
			rec.Items = append(rec.Items, ParsedItem{
				Description: firstString(im, "description", "item_description", "name"),
				Amount:      asNumber(im["amount"], im["amount_with_tax"], im["total"]),
				Tax:         asNumber(im["tax"], im["input_tax"], im["tax_amount"]),
				BlockIDs:    asStringSlice(im["sourceBlockIds"]),
			})
		}
	}

	// Invoice-level fallbacks from response metadata.
	if meta != nil {
		if rec.SupplierName == "" {
			rec.SupplierName = firstString(meta, "vendor", "vendor_name", "supplier_name")
		}
		if rec.SupplierTaxID == "" {
			rec.SupplierTaxID = firstString(meta, "tax_id", "supplier_tax_id")
		}
		if rec.InvoiceDate == "" {
			rec.InvoiceDate = firstString(meta, "date", "invoice_date")
		}
	}
	return rec
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// asNumber returns the first usable numeric value. Strings are accepted after
// stripping currency decorations the models habitually include.
func asNumber(vals ...any) *float64 {
	for _, v := range vals {
		switch t := v.(type) {
		case float64:
			f := t
			return &f
		case string:
			s := strings.TrimSpace(t)
			for _, junk := range []string{"NT$", "NTD", "TWD", "$", ",", "元", " "} {
				s = strings.ReplaceAll(s, junk, "")
			}
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func blockIDSet(v any) map[string]struct{} {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	set := make(map[string]struct{}, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			if id, ok := m["id"].(string); ok && id != "" {
				set[id] = struct{}{}
			}
		}
	}
	return set
}

// filterBlockIDs drops references to blocks the response never returned.
// With no block inventory at all the references pass through opaquely.
func filterBlockIDs(ids []string, known map[string]struct{}) []string {
	if known == nil {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
