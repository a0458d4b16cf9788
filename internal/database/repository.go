package database

import (
	"github.com/quorumbot/quorum/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	vote    *models.VoteModel
	history *models.HistoryModel
	setting *models.SettingModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		vote:    models.NewVote(db, logger),
		history: models.NewHistory(db, logger),
		setting: models.NewSetting(db, logger),
	}
}

// Vote returns the moderation vote model repository.
func (r *Repository) Vote() *models.VoteModel {
	return r.vote
}

// History returns the mute history model repository.
func (r *Repository) History() *models.HistoryModel {
	return r.history
}

// Setting returns the guild settings model repository.
func (r *Repository) Setting() *models.SettingModel {
	return r.setting
}
