package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	obj, err := ExtractJSON(`{"supplier_name": "全家便利商店", "total_amount": 120}`)
	require.NoError(t, err)
	assert.Equal(t, "全家便利商店", obj["supplier_name"])
	assert.Equal(t, 120.0, obj["total_amount"])
}

func TestExtractJSON_FencedMatchesDirectParse(t *testing.T) {
	payload := `{"supplier_name": "統一超商", "total_amount": 1050, "items": [{"description": "飲料", "amount": 1050}]}`

	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &want))

	for _, raw := range []string{
		payload,
		"```json\n" + payload + "\n```",
		"```\n" + payload + "\n```",
		"以下是辨識結果：\n```json\n" + payload + "\n```\n如有問題請告知。",
	} {
		got, err := ExtractJSON(raw)
		require.NoError(t, err, "raw: %q", raw)
		assert.Equal(t, want, got)
	}
}

func TestExtractJSON_FenceWinsOverProseBraces(t *testing.T) {
	raw := "說明 {注意} 如下\n```json\n{\"supplier_name\": \"測試\"}\n```"
	obj, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "測試", obj["supplier_name"])
}

func TestExtractJSON_BraceScanWithoutFence(t *testing.T) {
	raw := `辨識結果如下： {"supplier_name": "台灣大車隊", "total_amount": 350} 請確認。`
	obj, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "台灣大車隊", obj["supplier_name"])
}

func TestExtractJSON_RepairsTruncatedOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing closing chain", `{"invoices": [{"supplier_name": "測試", "total_amount": 100`},
		{"missing array close", `{"items": [{"amount": 1}, {"amount": 2}`},
		{"truncated mid string", `{"supplier_name": "統一超`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ExtractJSON(tt.raw)
			require.NoError(t, err)
			// Whatever was recovered must round-trip as JSON.
			b, err := json.Marshal(obj)
			require.NoError(t, err)
			var check map[string]any
			require.NoError(t, json.Unmarshal(b, &check))
		})
	}
}

func TestExtractJSON_Unrecoverable(t *testing.T) {
	for _, raw := range []string{
		"",
		"抱歉，我無法辨識這張圖片。",
		`{"a": }`,
		"]}",
	} {
		_, err := ExtractJSON(raw)
		var malformed *MalformedOutputError
		require.ErrorAs(t, err, &malformed, "raw: %q", raw)
	}
}

func TestExtractJSON_DiagnosticsBounded(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = 'x'
	}
	_, err := ExtractJSON(string(raw))
	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.LessOrEqual(t, len(malformed.Raw), maxDiagnosticLen)
}
