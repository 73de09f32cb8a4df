package entity

import "invoicescan/constants"

// UploadedFile is one image (or pre-rasterized PDF page) entering the batch.
type UploadedFile struct {
	FileName   string `json:"fileName"`
	ImageBytes []byte `json:"-"`
	PageNumber int    `json:"pageNumber,omitempty"`
}

// FileProcessingResult tracks one uploaded file through the pipeline. The
// batch processor is the sole mutator of Status; each result exclusively owns
// its line items.
type FileProcessingResult struct {
	FileName  string               `json:"fileName"`
	Status    constants.FileStatus `json:"status"`
	LineItems []LineItem           `json:"lineItems"`
	Warnings  []string             `json:"warnings,omitempty"`
	Error     string               `json:"error,omitempty"`
}
