package models

import (
	"time"
)

// Document records metadata for an uploaded lab manual or data file that has
// already passed upload validation.
type Document struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	UserID      uint      `json:"user_id" gorm:"index"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	StoragePath string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Report records a generated lab report and the prompt that produced it.
type Report struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UUID       string     `json:"uuid" gorm:"uniqueIndex"`
	UserID     uint       `json:"user_id" gorm:"index"`
	DocumentID *uint      `json:"document_id,omitempty"`
	Title      string     `json:"title"`
	Prompt     string     `json:"prompt" gorm:"type:text"`
	Content    string     `json:"content" gorm:"type:text"`
	Status     string     `json:"status" gorm:"default:'pending'"` // "pending", "complete", "failed"
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
