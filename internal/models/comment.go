package models

import "time"

// Comment is feedback left on a room after a class.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Rating    int       `gorm:"not null" json:"rating"`
	AuthorID  string    `gorm:"size:191;not null" json:"author_id"`
	RoomID    uint      `gorm:"index;not null" json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}
