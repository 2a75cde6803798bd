package renderer

import (
	"encoding/json"
	"strings"
)

// Status is the state of a remote render job.
type Status string

const (
	StatusPending Status = "pending"
	StatusWorking Status = "working"
	StatusOK      Status = "ok"
)

// UnmarshalJSON decodes a status; values the service may add later decode as pending.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := Status(strings.ToLower(strings.TrimSpace(raw))); v {
	case StatusWorking, StatusOK:
		*s = v
	default:
		*s = StatusPending
	}
	return nil
}

// Job is one entry of the scene job list.
type Job struct {
	ID     string     `json:"id,omitempty"`
	Status Status     `json:"status"`
	Data   JobData    `json:"data"`
	Files  []Artifact `json:"files,omitempty"`
}

// JobData identifies the frame a job renders.
type JobData struct {
	Time   float64 `json:"time"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Artifact is an output file of a finished job.
type Artifact struct {
	Hash string `json:"hash"`
	Type string `json:"type"`
}

// RenderQuery holds the parameters of a render request.
type RenderQuery struct {
	Time   int
	Pass   string
	Width  int
	Height int
}

// Payload is a fully read response body together with its declared metadata.
// ContentLength is -1 when the server did not declare one.
type Payload struct {
	ContentType   string
	ContentLength int64
	Body          []byte
}
