package constants

// FileStatus is the canonical per-file processing status.
type FileStatus string

// Stable values; transitions are strictly one-directional:
// PENDING -> PROCESSING -> {SUCCESS | ERROR}.
const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusSuccess    FileStatus = "success"
	FileStatusError      FileStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s FileStatus) Terminal() bool {
	return s == FileStatusSuccess || s == FileStatusError
}
