package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sharmaanmol256/new-calendar/pkg/models"
)

// EventRepository keeps the local mirror of provider events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save inserts the mirror row or refreshes it when the provider id is
// already known for the user.
func (r *EventRepository) Save(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "google_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "start_time", "end_time", "updated_at"}),
	}).Create(event).Error
}

// Delete removes the mirror row. Deleting an unknown row is not an error.
func (r *EventRepository) Delete(ctx context.Context, userID uint, googleEventID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND google_event_id = ?", userID, googleEventID).
		Delete(&models.Event{}).Error
}

// ListByUser returns the mirror rows for a user ordered by start time.
func (r *EventRepository) ListByUser(ctx context.Context, userID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("start_time").Find(&events).Error
	return events, err
}
