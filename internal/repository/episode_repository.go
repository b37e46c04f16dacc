package repository

import (
	"database/sql"
	"fmt"

	"github.com/podlab/podcast-backend-go/internal/models"
)

// EpisodeRepository handles database operations for archived episodes
type EpisodeRepository struct {
	db *sql.DB
}

// NewEpisodeRepository creates a new episode repository
func NewEpisodeRepository(db *sql.DB) *EpisodeRepository {
	return &EpisodeRepository{db: db}
}

// Create archives one completed episode
func (r *EpisodeRepository) Create(ep *models.Episode) error {
	query := `
		INSERT INTO episodes (id, task_id, source_url, summary, audio_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, ep.ID, ep.TaskID, ep.SourceURL, ep.Summary, ep.AudioURL, ep.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}
	return nil
}

// GetByID retrieves an episode by ID
func (r *EpisodeRepository) GetByID(id string) (*models.Episode, error) {
	query := `
		SELECT id, task_id, source_url, summary, audio_url, created_at
		FROM episodes
		WHERE id = ?
	`

	ep := &models.Episode{}
	err := r.db.QueryRow(query, id).Scan(
		&ep.ID,
		&ep.TaskID,
		&ep.SourceURL,
		&ep.Summary,
		&ep.AudioURL,
		&ep.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("episode not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return ep, nil
}

// List retrieves episodes, newest first
func (r *EpisodeRepository) List(limit, offset int) ([]*models.Episode, error) {
	query := `
		SELECT id, task_id, source_url, summary, audio_url, created_at
		FROM episodes
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		ep := &models.Episode{}
		if err := rows.Scan(&ep.ID, &ep.TaskID, &ep.SourceURL, &ep.Summary, &ep.AudioURL, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// Delete removes an archived episode
func (r *EpisodeRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM episodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("episode not found: %s", id)
	}
	return nil
}
