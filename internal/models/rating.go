package models

import "time"

type Rating struct {
	ID        string    `json:"id" db:"id"`
	ProfileID string    `json:"profileId" db:"profile_id"`
	RaterID   string    `json:"raterId" db:"rater_id"`
	Score     int       `json:"score" db:"score"`
	Comment   string    `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
