package dto

import (
	"time"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// CreateRoomRequest schedules a live class.
type CreateRoomRequest struct {
	Title        string     `json:"title" validate:"required,max=255"`
	Description  string     `json:"description" validate:"max=5000"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status" validate:"required,max=32"`
	StreamCallID string     `json:"stream_call_id" validate:"required,max=191"`
	StudentID    string     `json:"student_id" validate:"required,max=191"`
	TeacherIDs   []string   `json:"teacher_ids" validate:"dive,required"`
}

// UpdateRoomStatusRequest changes a room's status.
type UpdateRoomStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

// RoomResponse represents a room returned by the API.
type RoomResponse struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Status        string     `json:"status"`
	MeetingStatus string     `json:"meeting_status"`
	StreamCallID  string     `json:"stream_call_id"`
	StudentID     string     `json:"student_id"`
	TeacherIDs    []string   `json:"teacher_ids"`
}

// NewRoomResponse builds a response DTO from the model as seen at now.
func NewRoomResponse(room models.Room, now time.Time) RoomResponse {
	teachers := []string(room.TeacherIDs)
	if teachers == nil {
		teachers = []string{}
	}
	return RoomResponse{
		ID:            room.ID,
		Title:         room.Title,
		Description:   room.Description,
		StartTime:     room.StartTime,
		EndTime:       room.EndTime,
		Status:        room.Status,
		MeetingStatus: room.MeetingStatus(now),
		StreamCallID:  room.StreamCallID,
		StudentID:     room.StudentID,
		TeacherIDs:    teachers,
	}
}

// NewRoomListResponse converts a slice of rooms.
func NewRoomListResponse(rooms []models.Room, now time.Time) []RoomResponse {
	items := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, NewRoomResponse(room, now))
	}
	return items
}
