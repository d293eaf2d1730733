package storage

import (
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = domain.ErrNotFound

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// ItemFilter selects queue items; empty fields match everything.
type ItemFilter struct {
	Statuses   []domain.VideoStatus
	Compliance []domain.ComplianceStatus
	Limit      int
}

type OpportunityFilter struct {
	RunID     string
	ProductID string
	ByScore   bool // highest score first instead of insertion order
	Limit     int
}

type LeadFilter struct {
	Tiers   []domain.LeadTier
	VideoID string
	Limit   int
}

// PublishReceipt is what the publisher returned for an item.
type PublishReceipt struct {
	ItemID      string    `json:"item_id"`
	VideoID     string    `json:"video_id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type NurtureTask struct {
	LeadID      string
	NurtureType string
	Priority    string
	CreatedAt   time.Time
}
