package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewConnectionID generates a unique stream connection ID with the "conn_" prefix
// Format: conn_<uuid>
func NewConnectionID() string {
	return "conn_" + uuid.New().String()
}
