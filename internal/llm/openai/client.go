package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"invoicescan/constants"
	"invoicescan/internal/common"
	"invoicescan/internal/entity"
	"invoicescan/internal/llm"
)

const systemPrompt = `你是一個專業的台灣財務票據辨識系統，專精於從發票與憑證中擷取精確資訊。

### 辨識規則：
1. 供應商資訊：必須擷取「賣方」的名稱與 8 位數字統一編號，請勿誤抓買受人資訊。
2. 日期：若為中華民國年份（如 113），請加上 1911 轉換為西元 YYYY-MM-DD 格式。
3. 發票號碼：2 個英文字母加 8 位數字（如 AB-12345678），無則為 null。
4. 金額：total_amount 為含稅總額；若憑證明列營業稅，tax_amount 使用該數字，
   否則省略該欄位。零稅率或免稅憑證 tax_amount 必為 0。
5. 憑證種類 category 為代碼 0-9（0 電子發票、1 三聯式手開發票、2 三聯式收銀機發票、
   3 二聯式收銀機發票、4 進貨折讓證明單、5 海關進出口貨物稅費繳納證、
   6 三聯式零稅率發票、7 進貨零稅率折讓證明單、8 海關進口代徵退還溢繳營業稅、
   9 境外電商及不得扣抵之電子發票），預設為 0。

### 輸出格式：
單張發票回覆一個 JSON 物件；同一張圖片有多張發票時，回覆 {"invoices": [...]}。
每個發票物件：
{
  "supplier_name": "供應商名稱",
  "supplier_tax_id": "8位數字或null",
  "invoice_number": "發票號碼或null",
  "invoice_date": "YYYY-MM-DD",
  "category": "0",
  "total_amount": 數字,
  "tax_amount": 數字,
  "items": [{"description": "品項", "amount": 數字}]
}
只回覆 JSON，不要加任何說明文字。`

// Recognize implements batch.Recognizer: it sends the image to the
// chat/completions endpoint and returns the model's raw text content.
// HTTP 429 and 402 surface as *llm.RateLimitError so the batch processor can
// apply its bounded retry; everything else is a *llm.TransportError.
func (c *Client) Recognize(ctx context.Context, file entity.UploadedFile) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	c.logger.Info("recognize.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"file", file.FileName,
		"bytes", len(file.ImageBytes),
	)

	schemaJSON, _ := json.MarshalIndent(llm.BuildInvoiceJSONSchema(), "", "  ")
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": "請分析這張票據並擷取財務資訊："},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL(file)}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + string(schemaJSON)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("recognize.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &llm.TransportError{StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(cc.Choices) == 0 {
		return "", &llm.TransportError{StatusCode: status, Err: fmt.Errorf("no choices in response")}
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("recognize.ok",
		"req_id", rid,
		"file", file.FileName,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &llm.TransportError{Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, 0, &llm.TransportError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &llm.TransportError{Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("recognize.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired:
		return nil, resp.StatusCode, &llm.RateLimitError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), 200),
		}
	case resp.StatusCode/100 != 2:
		return nil, resp.StatusCode, &llm.TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("non-2xx status: %s", truncate(string(raw), 200)),
		}
	}
	return raw, resp.StatusCode, nil
}

func dataURL(file entity.UploadedFile) string {
	ext := constants.NormalizeExt(filepath.Ext(file.FileName))
	mt := mime.TypeByExtension("." + ext)
	if mt == "" {
		switch ext {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "png":
			mt = "image/png"
		default:
			mt = "application/octet-stream"
		}
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(file.ImageBytes)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
