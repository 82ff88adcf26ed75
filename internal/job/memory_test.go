package job

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/maauso/subtitles-api/internal/pipeline"
)

const testAudioURL = "https://cdn.example.com/episode.mp3"

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")

	err := repo.Save(ctx, job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it was saved
	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")

	// Save initial
	_ = repo.Save(ctx, job)

	// Update job
	_ = job.Start()
	job.EnterStage(pipeline.StageMerging)
	_ = repo.Save(ctx, job)

	// Verify update
	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, saved.Status)
	}
	if saved.Stage != pipeline.StageMerging {
		t.Errorf("expected stage %s, got %s", pipeline.StageMerging, saved.Stage)
	}
	if saved.Progress != 80 {
		t.Errorf("expected progress 80, got %d", saved.Progress)
	}
	if saved.AudioURL != testAudioURL || saved.UserID != "user-1" {
		t.Errorf("request fields not persisted: %q %q", saved.AudioURL, saved.UserID)
	}
}

func TestMemoryRepository_Save_KeepsOutput(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")
	_ = job.Start()
	_ = job.Complete(Output{SubtitlesURL: "https://cdn/x.srt", Chunked: true, ChunkCount: 2, CueCount: 3})
	_ = repo.Save(ctx, job)

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Output != job.Output {
		t.Errorf("expected output %+v, got %+v", job.Output, saved.Output)
	}
	if !saved.IsTerminal() {
		t.Error("expected saved job to be terminal")
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")
	_ = repo.Save(ctx, job)

	// Get job
	found, _ := repo.FindByID(ctx, job.ID)

	// Modify returned job
	found.Progress = 99
	_ = found.Start()

	// Original in repo should be unchanged
	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying returned job should not affect repository")
	}
	if original.Status != StatusInQueue {
		t.Error("modifying returned job status should not affect repository")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	// Empty list
	jobs, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, user := range []string{"user-1", "user-2", "user-1"} {
		j := NewWithID(fmt.Sprintf("job-%d", 3-i), testAudioURL, user)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_ = repo.Save(ctx, j)
		ids = append(ids, j.ID)
	}

	jobs, err = repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := jobIDs(jobs); !slices.Equal(got, ids) {
		t.Errorf("expected creation order %v, got %v", ids, got)
	}

	jobs, _ = repo.List(ctx, Filter{UserID: "user-1"})
	if got := jobIDs(jobs); !slices.Equal(got, []string{ids[0], ids[2]}) {
		t.Errorf("unexpected user filter result %v", got)
	}

	jobs, _ = repo.List(ctx, Filter{Limit: 2})
	if got := jobIDs(jobs); !slices.Equal(got, ids[:2]) {
		t.Errorf("unexpected limited result %v", got)
	}
}

func TestMemoryRepository_List_FinishedBefore(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	cutoff := time.Now()

	old := New(testAudioURL, "user-1")
	_ = old.Start()
	_ = old.Fail(pipeline.CodeDownload, "boom")
	old.CompletedAt = cutoff.Add(-time.Minute)

	fresh := New(testAudioURL, "user-1")
	_ = fresh.Start()
	_ = fresh.Complete(Output{})
	fresh.CompletedAt = cutoff.Add(time.Minute)

	// Never finished, so never expires no matter how old.
	stuck := New(testAudioURL, "user-1")
	_ = stuck.Start()
	stuck.CreatedAt = cutoff.Add(-time.Hour)

	for _, j := range []*Job{old, fresh, stuck} {
		_ = repo.Save(ctx, j)
	}

	jobs, _ := repo.List(ctx, Filter{FinishedBefore: cutoff})
	if got := jobIDs(jobs); !slices.Equal(got, []string{old.ID}) {
		t.Errorf("expected only %s, got %v", old.ID, got)
	}

	jobs, _ = repo.List(ctx, Filter{Status: StatusRunning})
	if got := jobIDs(jobs); !slices.Equal(got, []string{stuck.ID}) {
		t.Errorf("expected only %s, got %v", stuck.ID, got)
	}
}

func TestMemoryRepository_List_ReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")
	_ = repo.Save(ctx, job)

	// Get list
	jobs, _ := repo.List(ctx, Filter{})

	// Modify returned job
	jobs[0].Progress = 99

	// Original in repo should be unchanged
	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying listed job should not affect repository")
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testAudioURL, "user-1")
	_ = repo.Save(ctx, job)

	err := repo.Delete(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expected empty repository, got %d jobs", repo.Len())
	}

	// Verify deleted
	_, err = repo.FindByID(ctx, job.ID)
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_Delete_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.Delete(ctx, "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	done := make(chan bool)

	// Concurrent writes
	go func() {
		for i := 0; i < 100; i++ {
			job := New(testAudioURL, "user-1")
			_ = repo.Save(ctx, job)
		}
		done <- true
	}()

	// Concurrent reads
	go func() {
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx, Filter{UserID: "user-1"})
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}

func jobIDs(jobs []*Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
