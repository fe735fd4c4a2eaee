package models

import "time"

type Exercise struct {
	ID             string
	OwnerID        string
	Name           string
	MuscleGroup    string
	Equipment      string
	MediaObjectKey *string
	MediaFormat    *string
	MediaSignature []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Body        string
	ReadAt      *time.Time
	CreatedAt   time.Time
}
