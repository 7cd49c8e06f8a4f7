package catalog

import (
	"context"
	"testing"
	"time"
)

func TestRepository_Jobs(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"job-a", "job-b", "job-c"} {
		created := base.Add(time.Duration(i) * time.Minute)
		err := repo.CreateJob(ctx, &ExportJob{
			ID: id, Status: JobStatusRunning, OutputPath: "/out/" + id + ".mp4",
			Format: "MP4 (H.264)", SegmentCount: i + 1, Duration: 6.5,
			CreatedAt: created, UpdatedAt: created,
		})
		if err != nil {
			t.Fatalf("CreateJob(%s) error = %v", id, err)
		}
	}

	if err := repo.UpdateJobProgress(ctx, "job-b", 60); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateJobStatus(ctx, "job-b", JobStatusFailed, "encoder exploded"); err != nil {
		t.Fatal(err)
	}

	j, err := repo.GetJob(ctx, "job-b")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != JobStatusFailed || j.Error != "encoder exploded" || j.Progress != 60 {
		t.Errorf("GetJob() = %+v", j)
	}
	if !j.Terminal() {
		t.Error("failed job should be terminal")
	}
	if !j.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v", j.CreatedAt)
	}

	jobs, err := repo.ListJobs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-c" || jobs[1].ID != "job-b" {
		t.Errorf("ListJobs() order wrong: %v", jobs)
	}

	missing, err := repo.GetJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetJob(missing) = %v, %v", missing, err)
	}
}

func TestRepository_SourceUpsert(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	mtime := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)

	src := &Source{Path: "/m/a.mp4", Duration: 3, Width: 640, Height: 480, FPS: 25,
		Size: 10, Mtime: mtime, ProbedAt: mtime}
	if err := repo.UpsertSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	src.Duration = 4
	src.HasAudio = true
	if err := repo.UpsertSource(ctx, src); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetSource(ctx, "/m/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if got.Duration != 4 || !got.HasAudio || got.VideoCodec != "" {
		t.Errorf("GetSource() = %+v", got)
	}
	if !got.Mtime.Equal(mtime) {
		t.Errorf("Mtime = %v, want %v", got.Mtime, mtime)
	}

	all, err := repo.ListSources(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListSources() = %v, %v", all, err)
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "" {
		t.Fatalf("GetConfig(unset) = %q, %v", v, err)
	}
	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")
	if v, _ := repo.GetConfig(ctx, "auth_token"); v != "two" {
		t.Errorf("GetConfig() = %q, want two", v)
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 36 || seen[id] {
			t.Fatalf("bad or duplicate id %q", id)
		}
		seen[id] = true
	}
}
