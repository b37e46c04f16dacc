package models

import "time"

// Episode is the archived record of a completed pipeline run. Live task
// state is memory-only; episodes are written once, at completion, so the
// generated library survives restarts.
type Episode struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	SourceURL string    `json:"source_url" db:"source_url"`
	Summary   string    `json:"summary" db:"summary"`
	AudioURL  string    `json:"audio_url" db:"audio_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
