package models

import (
	"time"

	"gorm.io/datatypes"
)

// Room statuses as reported by the video provider.
const (
	RoomStatusScheduled = "scheduled"
	RoomStatusLive      = "live"
	RoomStatusCompleted = "completed"
	RoomStatusFailed    = "failed"
	RoomStatusSucceeded = "succeeded"
)

// Meeting statuses derived from a room's schedule.
const (
	MeetingUpcoming  = "upcoming"
	MeetingLive      = "live"
	MeetingCompleted = "completed"
)

// MeetingLength is how long a class counts as live after it starts.
const MeetingLength = time.Hour

// Room is a scheduled live class between a student and one or more teachers.
type Room struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	Title        string                      `gorm:"size:255;not null" json:"title"`
	Description  string                      `gorm:"type:text" json:"description"`
	StartTime    time.Time                   `gorm:"not null" json:"start_time"`
	EndTime      *time.Time                  `json:"end_time,omitempty"`
	Status       string                      `gorm:"size:32;not null" json:"status"`
	StreamCallID string                      `gorm:"size:191;index;not null" json:"stream_call_id"`
	StudentID    string                      `gorm:"size:191;index;not null" json:"student_id"`
	TeacherIDs   datatypes.JSONSlice[string] `json:"teacher_ids"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// MeetingStatus derives whether the class is upcoming, live or completed at now.
func (r Room) MeetingStatus(now time.Time) string {
	switch r.Status {
	case RoomStatusCompleted, RoomStatusFailed, RoomStatusSucceeded:
		return MeetingCompleted
	}
	if now.Before(r.StartTime) {
		return MeetingUpcoming
	}
	if !now.After(r.StartTime.Add(MeetingLength)) {
		return MeetingLive
	}
	return MeetingCompleted
}
