// Package pipeline runs the audio-to-subtitle workflow: download, probe,
// optional split, transcription, caption formatting, merge, upload, and
// guaranteed scratch cleanup.
package pipeline

// Stage is a step of a pipeline run.
type Stage string

const (
	// StageValidating checks the request before any resources are allocated.
	StageValidating Stage = "VALIDATING"
	// StageQueued waits for a free pipeline slot.
	StageQueued Stage = "QUEUED"
	// StageDownloading fetches the source audio into the run directory.
	StageDownloading Stage = "DOWNLOADING"
	// StageProbingDuration measures the source audio.
	StageProbingDuration Stage = "PROBING_DURATION"
	// StageDirectTranscribe transcribes the whole file in one call.
	StageDirectTranscribe Stage = "DIRECT_TRANSCRIBE"
	// StageSplitting cuts long audio into two halves.
	StageSplitting Stage = "SPLITTING"
	// StageProbingChunks re-measures the first half.
	StageProbingChunks Stage = "PROBING_CHUNKS"
	// StageTranscribingParallel transcribes both halves concurrently.
	StageTranscribingParallel Stage = "TRANSCRIBING_PARALLEL"
	// StageMerging joins the two caption tracks.
	StageMerging Stage = "MERGING"
	// StageUploading publishes the final track.
	StageUploading Stage = "UPLOADING"
	// StageCleaningUp removes the run directory.
	StageCleaningUp Stage = "CLEANING_UP"
	// StageDone is the terminal success stage.
	StageDone Stage = "DONE"
	// StageFailed is the terminal failure stage.
	StageFailed Stage = "FAILED"
)

// IsTerminal returns true for DONE and FAILED.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// StageObserver is notified of every stage a run enters, in order.
// It is called synchronously from the goroutine executing Run.
type StageObserver func(Stage)
