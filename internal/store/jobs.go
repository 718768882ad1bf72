package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// JobRepo manages the video_processing_jobs table.
// Job status transitions for a single id are linearized by the single
// writer connection; completed/failed/cancelled are terminal and progress
// never decreases while a job is live.
type JobRepo struct {
	s *storeCtx
}

// Create inserts a pending job for the given source.
func (r *JobRepo) Create(ctx context.Context, sourceID string, sourceType SourceType, videoPath string) (*VideoJob, error) {
	if sourceID == "" {
		return nil, spiralerr.ValidationError("job source id must not be empty", nil)
	}

	now := r.s.now()
	job := &VideoJob{
		ID:         r.s.newID(),
		SourceID:   sourceID,
		SourceType: sourceType,
		Status:     JobStatusPending,
		VideoPath:  videoPath,
		Steps:      []ProcessingStep{},
		Metadata:   map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO video_processing_jobs (id, source_id, source_type, status, progress, video_path, steps, metadata, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, '[]', '{}', '', ?, ?)`,
		job.ID, job.SourceID, string(job.SourceType), string(job.Status),
		job.VideoPath, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, spiralerr.StoreError("failed to create job", err)
	}
	return job, nil
}

// Get returns a job by id.
func (r *JobRepo) Get(ctx context.Context, id string) (*VideoJob, error) {
	row := r.s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("job", id)
		}
		return nil, spiralerr.StoreError("failed to load job", err)
	}
	return job, nil
}

// UpdateStatus transitions a job. Terminal statuses set completed_at and are
// permanent; progress only moves forward. Passing progress < 0 keeps the
// current value.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status JobStatus, progress int, jobErr string) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return spiralerr.ValidationError(
			"job "+id+" is already in terminal status "+string(current.Status), nil)
	}

	if progress < current.Progress {
		progress = current.Progress
	}
	if progress > 100 {
		progress = 100
	}

	now := r.s.now()
	var completedAt any
	if status.Terminal() {
		completedAt = fmtTime(now)
	}

	_, err = r.s.db.ExecContext(ctx, `
		UPDATE video_processing_jobs
		SET status = ?, progress = ?, error = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?`,
		string(status), progress, jobErr, fmtTime(now), completedAt, id)
	if err != nil {
		return spiralerr.StoreError("failed to update job status", err)
	}
	return nil
}

// UpdateStep upserts a named step in the job's step ledger.
func (r *JobRepo) UpdateStep(ctx context.Context, id, name string, status StepStatus, metadata map[string]any, stepErr string) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	now := r.s.now()
	found := false
	for i := range job.Steps {
		if job.Steps[i].Name != name {
			continue
		}
		found = true
		step := &job.Steps[i]
		step.Status = status
		if stepErr != "" {
			step.Error = stepErr
		}
		if metadata != nil {
			step.Metadata = metadata
		}
		switch status {
		case StepStatusRunning:
			if step.StartedAt == nil {
				t := now
				step.StartedAt = &t
			}
		case StepStatusCompleted, StepStatusFailed:
			t := now
			step.EndedAt = &t
			if step.StartedAt != nil {
				step.DurationMs = t.Sub(*step.StartedAt).Milliseconds()
			}
		}
		break
	}
	if !found {
		step := ProcessingStep{Name: name, Status: status, Error: stepErr, Metadata: metadata}
		if status == StepStatusRunning {
			t := now
			step.StartedAt = &t
		}
		if status == StepStatusCompleted || status == StepStatusFailed {
			t := now
			step.StartedAt = &t
			step.EndedAt = &t
		}
		job.Steps = append(job.Steps, step)
	}

	steps, err := json.Marshal(job.Steps)
	if err != nil {
		return spiralerr.StoreError("failed to marshal job steps", err)
	}

	_, err = r.s.db.ExecContext(ctx, `
		UPDATE video_processing_jobs SET steps = ?, updated_at = ? WHERE id = ?`,
		string(steps), fmtTime(now), id)
	if err != nil {
		return spiralerr.StoreError("failed to update job step", err)
	}
	return nil
}

// SetPaths records artifact paths on the job row.
func (r *JobRepo) SetPaths(ctx context.Context, id, audioPath, transcriptPath string) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE video_processing_jobs
		SET audio_path = CASE WHEN ? != '' THEN ? ELSE audio_path END,
		    transcript_path = CASE WHEN ? != '' THEN ? ELSE transcript_path END,
		    updated_at = ?
		WHERE id = ?`,
		audioPath, audioPath, transcriptPath, transcriptPath, fmtTime(r.s.now()), id)
	if err != nil {
		return spiralerr.StoreError("failed to update job paths", err)
	}
	return nil
}

// SetMetadata replaces the job metadata blob.
func (r *JobRepo) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		UPDATE video_processing_jobs SET metadata = ?, updated_at = ? WHERE id = ?`,
		meta, fmtTime(r.s.now()), id)
	if err != nil {
		return spiralerr.StoreError("failed to update job metadata", err)
	}
	return nil
}

// ListByStatus returns jobs in the given status, oldest first, for recovery.
func (r *JobRepo) ListByStatus(ctx context.Context, status JobStatus) ([]*VideoJob, error) {
	rows, err := r.s.db.QueryContext(ctx,
		selectJob+` WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, spiralerr.StoreError("failed to list jobs", err)
	}
	defer rows.Close()

	var jobs []*VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, spiralerr.StoreError("failed to scan job", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJob = `SELECT id, source_id, source_type, status, progress, video_path, audio_path, transcript_path, steps, metadata, error, created_at, updated_at, completed_at FROM video_processing_jobs`

func scanJob(row rowScanner) (*VideoJob, error) {
	var job VideoJob
	var sourceType, status, steps, meta, createdAt, updatedAt string
	var completedAt sql.NullString
	if err := row.Scan(&job.ID, &job.SourceID, &sourceType, &status, &job.Progress,
		&job.VideoPath, &job.AudioPath, &job.TranscriptPath,
		&steps, &meta, &job.Error, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	job.SourceType = SourceType(sourceType)
	job.Status = JobStatus(status)
	if err := json.Unmarshal([]byte(steps), &job.Steps); err != nil {
		job.Steps = []ProcessingStep{}
	}
	job.Metadata = unmarshalMeta(meta)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	job.CompletedAt = scanTime(completedAt)
	return &job, nil
}
