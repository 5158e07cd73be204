package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Recorder appends audit events for every protocol state transition
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a new event recorder backed by the given database
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// WithTx returns a recorder bound to the given transaction so events commit
// or roll back together with the mutation they describe
func (r *Recorder) WithTx(tx *gorm.DB) *Recorder {
	return &Recorder{db: tx}
}

// Record appends a single audit event. Payload fields are marshalled to JSON;
// a marshalling failure drops the payload but still records the transition.
func (r *Recorder) Record(eventType, assetKey, account string, payload map[string]interface{}) error {
	event := &Event{
		EventID:   "EVT_" + uuid.New().String(),
		Type:      eventType,
		AssetKey:  assetKey,
		Account:   account,
		CreatedAt: time.Now(),
	}

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("type", eventType).Msg("failed to marshal event payload")
		} else {
			event.Payload = string(encoded)
		}
	}

	return r.db.Create(event).Error
}

// List returns recent events, newest first, optionally filtered by type
func (r *Recorder) List(eventType string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.Order("created_at DESC").Limit(limit)
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}

	var records []Event
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
