// Package batch drives recognition across a set of uploaded files, one
// outstanding call at a time. Sequential processing is a hard requirement of
// the upstream service's throttling, not a simplification.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"invoicescan/constants"
	"invoicescan/internal/common"
	"invoicescan/internal/entity"
	"invoicescan/internal/llm"
	"invoicescan/internal/reconcile"
)

// Recognizer is the external vision-LLM call: given one file it returns the
// raw text purporting to describe its invoices. The processor treats it as a
// black box that may fail with *llm.RateLimitError or anything else.
type Recognizer interface {
	Recognize(ctx context.Context, file entity.UploadedFile) (string, error)
}

type Processor struct {
	recognizer  Recognizer
	logger      *slog.Logger
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
	schema      map[string]any
}

type Option func(*Processor)

// WithMaxAttempts bounds recognition attempts per file on rate-limit signals.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the first retry delay; each further attempt doubles it.
func WithBackoffBase(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.backoffBase = d
		}
	}
}

// WithInterRequestDelay sets the minimum spacing between recognition calls.
func WithInterRequestDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func NewProcessor(recognizer Recognizer, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		recognizer:  recognizer,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Every(300*time.Millisecond), 1),
		maxAttempts: 3,
		backoffBase: time.Second,
		schema:      llm.BuildInvoiceJSONSchema(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessFiles runs recognition for each file in order, awaiting each call to
// completion before starting the next. One file's failure never aborts the
// rest; every processed file ends in a terminal status with items or a
// human-readable error. A stop or cancellation leaves the remaining files
// pending and completed results intact. tok may be nil.
func (p *Processor) ProcessFiles(ctx context.Context, files []entity.UploadedFile, tok *Token) []entity.FileProcessingResult {
	start := time.Now()
	results := make([]entity.FileProcessingResult, len(files))
	for i, f := range files {
		results[i] = entity.FileProcessingResult{
			FileName:  f.FileName,
			Status:    constants.FileStatusPending,
			LineItems: []entity.LineItem{},
		}
	}

	for i, f := range files {
		if err := tok.Checkpoint(ctx); err != nil {
			p.logger.Warn("batch.halted", "reason", err, "completed", i, "total", len(files))
			break
		}
		if i > 0 {
			if err := p.limiter.Wait(ctx); err != nil {
				p.logger.Warn("batch.halted", "reason", err, "completed", i, "total", len(files))
				break
			}
		}

		results[i].Status = constants.FileStatusProcessing
		p.processFile(ctx, f, tok, &results[i])
	}

	p.logger.Info("batch.done",
		"files", len(files),
		"succeeded", countStatus(results, constants.FileStatusSuccess),
		"failed", countStatus(results, constants.FileStatusError),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

func (p *Processor) processFile(ctx context.Context, f entity.UploadedFile, tok *Token, res *entity.FileProcessingResult) {
	start := time.Now()
	p.logger.Info("batch.file.start", "file", f.FileName, "bytes", len(f.ImageBytes))

	raw, err := p.recognizeWithRetry(ctx, f, tok)
	if err != nil {
		res.Status = constants.FileStatusError
		res.Error = err.Error()
		p.logger.Error("batch.file.failed",
			"file", f.FileName, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}

	obj, err := llm.ExtractJSON(raw)
	if err != nil {
		// Deterministic failure: retrying the same output cannot help.
		res.Status = constants.FileStatusError
		res.Error = err.Error()
		p.logger.Error("batch.file.malformed_output",
			"file", f.FileName, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	p.validateAdvisory(f.FileName, obj)

	items, warnings := reconcile.Records(llm.DecodeRecords(obj), f.FileName)
	res.Status = constants.FileStatusSuccess
	res.LineItems = items
	res.Warnings = warnings

	p.logger.Info("batch.file.ok",
		"file", f.FileName,
		"items", len(items),
		"warnings", len(warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// recognizeWithRetry retries rate-limit failures with exponential backoff up
// to the attempt bound. Every other error class is deterministic from the
// processor's point of view and surfaces immediately.
func (p *Processor) recognizeWithRetry(ctx context.Context, f entity.UploadedFile, tok *Token) (string, error) {
	// One request ID per file; retries of the same file share it.
	ctx = common.WithRequestID(ctx, uuid.NewString())
	for attempt := 1; ; attempt++ {
		raw, err := p.recognizer.Recognize(ctx, f)
		if err == nil {
			return raw, nil
		}
		var rl *llm.RateLimitError
		if !errors.As(err, &rl) || attempt >= p.maxAttempts {
			return "", err
		}

		delay := p.backoffBase << (attempt - 1)
		p.logger.Warn("batch.file.rate_limited",
			"file", f.FileName, "attempt", attempt, "max_attempts", p.maxAttempts, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
		if err := tok.Checkpoint(ctx); err != nil {
			return "", err
		}
	}
}

// validateAdvisory checks a single-invoice response against the schema the
// prompt advertised. Failures are logged and otherwise ignored: the
// normalizer handles partial records, and the user reviews every item.
func (p *Processor) validateAdvisory(fileName string, obj map[string]any) {
	if _, multi := obj["lineItems"]; multi {
		return
	}
	if _, multi := obj["invoices"]; multi {
		return
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return
	}
	if err := llm.ValidateAgainstSchema(p.schema, b); err != nil {
		p.logger.Warn("batch.file.schema_mismatch", "file", fileName, "error", err)
	}
}

func countStatus(results []entity.FileProcessingResult, s constants.FileStatus) int {
	n := 0
	for _, r := range results {
		if r.Status == s {
			n++
		}
	}
	return n
}
