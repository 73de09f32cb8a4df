// Package ingest loads invoice images from the local filesystem into the
// in-memory form the batch processor consumes.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"invoicescan/constants"
	"invoicescan/internal/entity"
)

// FileResult records the outcome for one walked file.
type FileResult struct {
	Path         string
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats aggregates one directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Loaded       uint32
	Deduplicated uint32
	Failed       uint32
}

type Loader struct {
	logger *slog.Logger
	// SkipHidden drops dot-files and descends past dot-directories.
	SkipHidden bool
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, SkipHidden: true}
}

// LoadDirectory walks root, filters to supported image extensions, and reads
// each match into memory. Files with identical content hashes are loaded once;
// a photographed invoice copied under two names should not be billed twice.
// Unreadable files are reported per-file and never abort the walk. The
// returned files are sorted by name with sequential page numbers, so batch
// order is stable across runs.
func (l *Loader) LoadDirectory(root string) ([]entity.UploadedFile, []FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var files []entity.UploadedFile
	var results []FileResult
	var stats DirStats
	seen := map[string]string{} // content hash -> first file name

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if l.SkipHidden && isHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.IsImageExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		b, err := os.ReadFile(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		sum := sha256.Sum256(b)
		hashHex := hex.EncodeToString(sum[:])
		if first, dup := seen[hashHex]; dup {
			l.logger.Info("ingest.deduplicated", "path", path, "duplicate_of", first)
			results = append(results, FileResult{Path: path, HashHex: hashHex, Deduplicated: true})
			stats.Deduplicated++
			return nil
		}
		seen[hashHex] = d.Name()

		files = append(files, entity.UploadedFile{FileName: d.Name(), ImageBytes: b})
		results = append(results, FileResult{Path: path, HashHex: hashHex})
		stats.Loaded++
		return nil
	})
	if err != nil {
		return files, results, stats, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].FileName < files[j].FileName })
	for i := range files {
		files[i].PageNumber = i + 1
	}

	l.logger.Info("ingest.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"loaded", stats.Loaded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return files, results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
