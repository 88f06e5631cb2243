package models

import "time"

// VectorStore describes a hosted vector store.
type VectorStore struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	CreatedAt  int64       `json:"created_at"`
	FileCount  int         `json:"file_count"`
	Status     string      `json:"status,omitempty"`
	UsageBytes int64       `json:"usage_bytes,omitempty"`
	FileCounts *FileCounts `json:"file_counts,omitempty"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (s VectorStore) CreatedTime() time.Time {
	return time.Unix(s.CreatedAt, 0).UTC()
}

// FileCounts breaks down the files of a store by processing state.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// StoreFile is a file attached to a vector store.
type StoreFile struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	UsageBytes int    `json:"usage_bytes"`
}

// UploadStatus is the outcome of a single upload attempt.
type UploadStatus string

const (
	UploadSucceeded UploadStatus = "success"
	UploadFailed    UploadStatus = "failed"
)

// UploadRecord is created per upload attempt and is immutable once complete.
type UploadRecord struct {
	Path           string       `json:"file"`
	FileID         string       `json:"file_id,omitempty"`
	Status         UploadStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
}

// UploadStats aggregates the records of a batch upload.
type UploadStats struct {
	StoreID           string         `json:"store_id"`
	TotalFiles        int            `json:"total_files"`
	SuccessfulUploads int            `json:"successful_uploads"`
	FailedUploads     int            `json:"failed_uploads"`
	ElapsedSeconds    float64        `json:"elapsed_seconds"`
	Files             []UploadRecord `json:"files"`
	Errors            []string       `json:"errors"`
}

// SearchResult is one ranked hit of a similarity search.
type SearchResult struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// Answer is the outcome of a search-augmented generation request.
type Answer struct {
	Query     string         `json:"query"`
	Model     string         `json:"model"`
	Text      string         `json:"response"`
	FilesUsed []string       `json:"files_used"`
	Results   []SearchResult `json:"results,omitempty"`
}
