package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/subtitles-api/internal/job"
	"github.com/maauso/subtitles-api/internal/pipeline"
)

// maxBodyBytes caps request bodies; requests only carry a URL and a user ID.
const maxBodyBytes = 1 << 20

// Page sizes for GET /jobs.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Pipeline runs one subtitle pipeline synchronously.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	pipeline           Pipeline
	jobs               *job.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	transcription      bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithTranscriptionEnabled sets the transcription flag reported by /health.
func WithTranscriptionEnabled(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.transcription = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(p Pipeline, jobs *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		pipeline:           p,
		jobs:               jobs,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
		transcription:      true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Transcription: h.transcription})
}

// CreateSubtitles handles POST /subtitles requests. The pipeline runs in
// the request context, so a client disconnect cancels it.
func (h *Handlers) CreateSubtitles(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.pipeline.Run(r.Context(), pipeline.Request{
		AudioURL: req.AudioURL,
		UserID:   req.UserID,
	})
	if err != nil {
		code := pipeline.ErrorCode(err)
		h.logger.Error("subtitle pipeline failed",
			slog.String("audio_url", req.AudioURL),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForCode(code), err.Error(), code)
		return
	}

	h.logger.Info("subtitles generated",
		slog.String("run_id", res.RunID),
		slog.String("subtitles_url", res.SubtitlesURL),
		slog.Bool("chunked", res.Chunked),
	)

	resp := SubtitlesResponse{
		Success:       true,
		SubtitlesURL:  res.SubtitlesURL,
		Chunked:       res.Chunked,
		TotalDuration: res.TotalDuration,
		CueCount:      res.CueCount,
	}
	if res.Chunked {
		resp.ChunkCount = res.ChunkCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	// Create job first (synchronously)
	createdJob, err := h.jobs.CreateJob(r.Context(), job.Input{
		AudioURL: req.AudioURL,
		UserID:   req.UserID,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error(), pipeline.CodeValidation)
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			_, processErr := h.jobs.ProcessExistingJob(ctx, jobID)
			if processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("audio_url", req.AudioURL),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests. The optional status and user_id
// query parameters filter the result and limit caps it.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := job.Filter{UserID: query.Get("user_id"), Limit: defaultListLimit}

	if raw := query.Get("status"); raw != "" {
		status, err := job.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), pipeline.CodeValidation)
			return
		}
		filter.Status = status
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), pipeline.CodeValidation)
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs)), Count: len(jobs)}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// toJobResponse converts a job to its HTTP representation. Result fields
// are only filled for completed jobs.
func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Stage:     string(j.Stage),
		Progress:  j.Progress,
		Error:     j.Error,
		ErrorCode: j.ErrorKind,
	}

	if j.Status == job.StatusCompleted {
		resp.SubtitlesURL = j.Output.SubtitlesURL
		resp.Chunked = j.Output.Chunked
		resp.TotalDuration = j.Output.TotalDuration
		resp.ChunkCount = j.Output.ChunkCount
		resp.CueCount = j.Output.CueCount
	}
	return resp
}

// decodeRequest reads and validates a CreateSubtitlesRequest. On failure it
// writes the error response and returns false.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (CreateSubtitlesRequest, bool) {
	var req CreateSubtitlesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), pipeline.CodeValidation)
		return req, false
	}
	return req, true
}

// statusForCode maps pipeline error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case pipeline.CodeValidation:
		return http.StatusBadRequest
	case pipeline.CodeDownload, pipeline.CodeTranscription, pipeline.CodeUpload:
		return http.StatusBadGateway
	case pipeline.CodeMedia:
		return http.StatusUnprocessableEntity
	case pipeline.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
