package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicescan/constants"
	"invoicescan/internal/entity"
	"invoicescan/internal/llm"
)

// fakeRecognizer scripts one response per file name and counts calls.
type fakeRecognizer struct {
	mu        sync.Mutex
	responses map[string]func(attempt int) (string, error)
	calls     map[string]int
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		responses: make(map[string]func(int) (string, error)),
		calls:     make(map[string]int),
	}
}

func (f *fakeRecognizer) Recognize(_ context.Context, file entity.UploadedFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[file.FileName]++
	fn, ok := f.responses[file.FileName]
	if !ok {
		return "", fmt.Errorf("unexpected file %s", file.FileName)
	}
	return fn(f.calls[file.FileName])
}

func (f *fakeRecognizer) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func always(raw string, err error) func(int) (string, error) {
	return func(int) (string, error) { return raw, err }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFiles(names ...string) []entity.UploadedFile {
	files := make([]entity.UploadedFile, len(names))
	for i, n := range names {
		files[i] = entity.UploadedFile{FileName: n, ImageBytes: []byte{0xFF}, PageNumber: i + 1}
	}
	return files
}

const goodResponse = `{"supplier_name": "大同公司", "total_amount": 1050}`

func newTestProcessor(rec Recognizer, opts ...Option) *Processor {
	base := []Option{
		WithInterRequestDelay(time.Millisecond),
		WithBackoffBase(time.Millisecond),
	}
	return NewProcessor(rec, testLogger(), append(base, opts...)...)
}

func TestProcessFiles_OneFailureDoesNotAbortTheRest(t *testing.T) {
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = always(goodResponse, nil)
	rec.responses["b.jpg"] = always("", &llm.RateLimitError{StatusCode: 429, Message: "quota"})
	rec.responses["c.jpg"] = always(goodResponse, nil)

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg", "b.jpg", "c.jpg"), nil)

	require.Len(t, results, 3)
	assert.Equal(t, constants.FileStatusSuccess, results[0].Status)
	assert.Equal(t, constants.FileStatusError, results[1].Status)
	assert.Equal(t, constants.FileStatusSuccess, results[2].Status)
	assert.NotEmpty(t, results[1].Error)
	require.Len(t, results[0].LineItems, 1)
	assert.Equal(t, 1050.0, results[0].LineItems[0].AmountWithTax)
}

func TestProcessFiles_RateLimitRetriesUpToBound(t *testing.T) {
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = always("", &llm.RateLimitError{StatusCode: 429, Message: "quota"})

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg"), nil)

	assert.Equal(t, 3, rec.callCount("a.jpg"))
	assert.Equal(t, constants.FileStatusError, results[0].Status)
}

func TestProcessFiles_RateLimitRecoversOnRetry(t *testing.T) {
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = func(attempt int) (string, error) {
		if attempt < 3 {
			return "", &llm.RateLimitError{StatusCode: 429, Message: "quota"}
		}
		return goodResponse, nil
	}

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg"), nil)

	assert.Equal(t, 3, rec.callCount("a.jpg"))
	assert.Equal(t, constants.FileStatusSuccess, results[0].Status)
}

func TestProcessFiles_OtherErrorsDoNotRetry(t *testing.T) {
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = always("", errors.New("connection refused"))

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg"), nil)

	assert.Equal(t, 1, rec.callCount("a.jpg"))
	assert.Equal(t, constants.FileStatusError, results[0].Status)
}

func TestProcessFiles_MalformedOutputIsTerminal(t *testing.T) {
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = always("the image shows a receipt", nil)

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg"), nil)

	assert.Equal(t, 1, rec.callCount("a.jpg"))
	assert.Equal(t, constants.FileStatusError, results[0].Status)
	assert.NotEmpty(t, results[0].Error)
}

func TestProcessFiles_StopLeavesRemainingPending(t *testing.T) {
	tok := NewToken()
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = func(int) (string, error) {
		tok.Stop()
		return goodResponse, nil
	}
	rec.responses["b.jpg"] = always(goodResponse, nil)
	rec.responses["c.jpg"] = always(goodResponse, nil)

	results := newTestProcessor(rec).ProcessFiles(context.Background(), testFiles("a.jpg", "b.jpg", "c.jpg"), tok)

	require.Len(t, results, 3)
	assert.Equal(t, constants.FileStatusSuccess, results[0].Status)
	assert.Equal(t, constants.FileStatusPending, results[1].Status)
	assert.Equal(t, constants.FileStatusPending, results[2].Status)
	assert.Equal(t, 0, rec.callCount("b.jpg"))
}

func TestProcessFiles_ContextCancelHalts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newFakeRecognizer()
	rec.responses["a.jpg"] = func(int) (string, error) {
		cancel()
		return goodResponse, nil
	}
	rec.responses["b.jpg"] = always(goodResponse, nil)

	results := newTestProcessor(rec).ProcessFiles(ctx, testFiles("a.jpg", "b.jpg"), NewToken())

	assert.Equal(t, constants.FileStatusSuccess, results[0].Status)
	assert.Equal(t, constants.FileStatusPending, results[1].Status)
}

func TestToken_PauseBlocksCheckpointUntilResume(t *testing.T) {
	tok := NewToken()
	tok.Pause()

	released := make(chan error, 1)
	go func() {
		released <- tok.Checkpoint(context.Background())
	}()

	select {
	case err := <-released:
		t.Fatalf("checkpoint returned while paused: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	tok.Resume()
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not release after resume")
	}
}

func TestToken_StopWhilePaused(t *testing.T) {
	tok := NewToken()
	tok.Pause()

	released := make(chan error, 1)
	go func() {
		released <- tok.Checkpoint(context.Background())
	}()

	tok.Stop()
	select {
	case err := <-released:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not release after stop")
	}
	assert.True(t, tok.Stopped())
}

func TestToken_NilIsAlwaysRunnable(t *testing.T) {
	var tok *Token
	assert.NoError(t, tok.Checkpoint(context.Background()))
}
