package dto

import (
	"time"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// AddCommentRequest leaves feedback on a room.
type AddCommentRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
}

// CommentResponse represents a comment returned by the API.
type CommentResponse struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	AuthorID  string    `json:"author_id"`
	RoomID    uint      `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCommentResponse builds a response DTO from the model.
func NewCommentResponse(comment models.Comment) CommentResponse {
	return CommentResponse{
		ID:        comment.ID,
		Content:   comment.Content,
		Rating:    comment.Rating,
		AuthorID:  comment.AuthorID,
		RoomID:    comment.RoomID,
		CreatedAt: comment.CreatedAt,
	}
}

// NewCommentListResponse converts a slice of comments.
func NewCommentListResponse(comments []models.Comment) []CommentResponse {
	items := make([]CommentResponse, 0, len(comments))
	for _, comment := range comments {
		items = append(items, NewCommentResponse(comment))
	}
	return items
}
