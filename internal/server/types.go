// Package server provides the HTTP server for the Subtitles API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "encoding/json"

// CreateSubtitlesRequest is the HTTP request body for POST /subtitles and
// POST /jobs.
type CreateSubtitlesRequest struct {
	// AudioURL is the absolute http(s) URL of the source audio.
	AudioURL string `json:"audio_url" validate:"required,http_url"`
	// UserID namespaces the uploaded file.
	UserID string `json:"user_id" validate:"omitempty,max=128"`
}

// UnmarshalJSON accepts both snake_case and camelCase field names.
// snake_case wins when both are present.
func (r *CreateSubtitlesRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		AudioURL      string `json:"audio_url"`
		AudioURLCamel string `json:"audioUrl"`
		UserID        string `json:"user_id"`
		UserIDCamel   string `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.AudioURL = raw.AudioURL
	if r.AudioURL == "" {
		r.AudioURL = raw.AudioURLCamel
	}
	r.UserID = raw.UserID
	if r.UserID == "" {
		r.UserID = raw.UserIDCamel
	}
	return nil
}

// SubtitlesResponse is the HTTP response of a successful synchronous run.
type SubtitlesResponse struct {
	Success       bool    `json:"success"`
	SubtitlesURL  string  `json:"subtitles_url"`
	Chunked       bool    `json:"chunked"`
	TotalDuration float64 `json:"total_duration"`
	// ChunkCount is only reported for split runs.
	ChunkCount int `json:"chunk_count,omitempty"`
	CueCount   int `json:"cue_count"`
}

// MarshalJSON also emits the result fields in camelCase (subtitlesUrl,
// totalDuration, chunkCount, cueCount) for clients that send camelCase.
func (r SubtitlesResponse) MarshalJSON() ([]byte, error) {
	type plain SubtitlesResponse
	return json.Marshal(struct {
		plain
		SubtitlesURLCamel  string  `json:"subtitlesUrl"`
		TotalDurationCamel float64 `json:"totalDuration"`
		ChunkCountCamel    int     `json:"chunkCount,omitempty"`
		CueCountCamel      int     `json:"cueCount"`
	}{
		plain:              plain(r),
		SubtitlesURLCamel:  r.SubtitlesURL,
		TotalDurationCamel: r.TotalDuration,
		ChunkCountCamel:    r.ChunkCount,
		CueCountCamel:      r.CueCount,
	})
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Stage is the last pipeline stage the job entered.
	Stage string `json:"stage,omitempty"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// ErrorCode classifies the failure, e.g. DOWNLOAD_FAILED.
	ErrorCode string `json:"error_code,omitempty"`
	// SubtitlesURL and the fields below are set once the job completes.
	SubtitlesURL  string  `json:"subtitles_url,omitempty"`
	Chunked       bool    `json:"chunked,omitempty"`
	TotalDuration float64 `json:"total_duration,omitempty"`
	ChunkCount    int     `json:"chunk_count,omitempty"`
	CueCount      int     `json:"cue_count,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	// Jobs are ordered oldest first.
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Transcription reports whether a transcription backend is configured.
	Transcription bool `json:"transcription"`
}
