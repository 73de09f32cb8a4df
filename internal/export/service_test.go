package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicescan/constants"
	"invoicescan/internal/entity"
)

func strp(s string) *string { return &s }

func sampleResults() []entity.FileProcessingResult {
	return []entity.FileProcessingResult{
		{
			FileName: "a.jpg",
			Status:   constants.FileStatusSuccess,
			LineItems: []entity.LineItem{{
				ID:             "li-1",
				Category:       "1",
				Vendor:         "大同公司",
				TaxID:          strp("12345678"),
				Date:           strp("2024-05-03"),
				InvoiceNumber:  strp("AB12345678"),
				AmountWithTax:  1050,
				InputTax:       50,
				SourceFileName: "a.jpg",
			}},
		},
		{
			FileName: "b.jpg",
			Status:   constants.FileStatusError,
			Error:    "rate limited",
		},
		{
			FileName: "c.jpg",
			Status:   constants.FileStatusSuccess,
			LineItems: []entity.LineItem{
				{ID: "li-2", Category: "0", Vendor: `引号"商店`, AmountWithTax: 100, InputTax: 5, SourceFileName: "c.jpg"},
				{ID: "li-3", Category: "0", Vendor: "全聯", AmountWithTax: 200.5, InputTax: 9.55, SourceFileName: "c.jpg"},
			},
		},
	}
}

func TestToExportBundle_OnlySuccessfulFilesContribute(t *testing.T) {
	before := time.Now().UTC()
	bundle := ToExportBundle(sampleResults())

	assert.Equal(t, 3, bundle.TotalItems)
	require.Len(t, bundle.Items, 3)
	assert.False(t, bundle.ExportedAt.Before(before))

	first := bundle.Items[0]
	assert.Equal(t, "大同公司", first.Vendor)
	assert.Equal(t, 1000.0, first.AmountWithoutTax)
	assert.Equal(t, 50.0, first.TaxAmount)
	assert.Equal(t, 1050.0, first.AmountWithTax)
	assert.Equal(t, "a.jpg", first.SourceFile)

	// batch order is preserved across files
	assert.Equal(t, "c.jpg", bundle.Items[1].SourceFile)
	assert.Equal(t, "c.jpg", bundle.Items[2].SourceFile)
}

func TestToExportBundle_EmptyResults(t *testing.T) {
	bundle := ToExportBundle(nil)
	assert.Equal(t, 0, bundle.TotalItems)
	assert.NotNil(t, bundle.Items)
}

func TestSerializeCSV(t *testing.T) {
	out := SerializeCSV(ToExportBundle(sampleResults()))

	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}))

	lines := strings.Split(strings.TrimSuffix(string(out[3:]), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `"category","vendor","tax_id","date","invoice_number","amount_without_tax","tax_amount","amount_with_tax","source_file"`, lines[0])
	assert.Equal(t, `"1","大同公司","12345678","2024-05-03","AB12345678","1000","50","1050","a.jpg"`, lines[1])

	// embedded double quotes are doubled, and every cell stays quoted
	assert.Contains(t, lines[2], `"引号""商店"`)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, `"`))
		assert.True(t, strings.HasSuffix(line, `"`))
	}
}

func TestSerializeCSV_FractionalAmountsKeepCents(t *testing.T) {
	out := string(SerializeCSV(ToExportBundle(sampleResults())))
	assert.Contains(t, out, `"200.5"`)
	assert.Contains(t, out, `"9.55"`)
}

func TestSerializeJSON(t *testing.T) {
	raw, err := SerializeJSON(ToExportBundle(sampleResults()))
	require.NoError(t, err)

	var decoded struct {
		ExportedAt time.Time        `json:"exportedAt"`
		TotalItems int              `json:"totalItems"`
		Items      []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 3, decoded.TotalItems)
	require.Len(t, decoded.Items, 3)
	assert.Equal(t, "大同公司", decoded.Items[0]["vendor"])
	assert.Equal(t, "12345678", decoded.Items[0]["tax_id"])
}

func TestSerializeXLSX(t *testing.T) {
	out, err := SerializeXLSX(ToExportBundle(sampleResults()))
	require.NoError(t, err)
	// zip local file header signature
	require.True(t, bytes.HasPrefix(out, []byte("PK\x03\x04")))
}
