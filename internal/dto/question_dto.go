package dto

import (
	"time"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// QuestionExample is a worked example attached to a question.
type QuestionExample struct {
	Input       string `json:"input" validate:"required"`
	Output      string `json:"output" validate:"required"`
	Explanation string `json:"explanation,omitempty"`
}

// StarterCode holds per-language templates.
type StarterCode struct {
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
}

// CreateQuestionRequest is the payload for authoring a question.
type CreateQuestionRequest struct {
	Title       string            `json:"title" validate:"required,max=255"`
	Description string            `json:"description" validate:"required"`
	Level       string            `json:"level" validate:"required,oneof=Easy Medium Hard"`
	Examples    []QuestionExample `json:"examples" validate:"required,min=1,dive"`
	StarterCode StarterCode       `json:"starter_code"`
	Constraints []string          `json:"constraints" validate:"dive,required"`
}

// UpdateQuestionRequest patches the fields that are present.
type UpdateQuestionRequest struct {
	Title       *string            `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string            `json:"description" validate:"omitempty,min=1"`
	Level       *string            `json:"level" validate:"omitempty,oneof=Easy Medium Hard"`
	Examples    *[]QuestionExample `json:"examples" validate:"omitempty,min=1,dive"`
	StarterCode *StarterCode       `json:"starter_code"`
	Constraints *[]string          `json:"constraints" validate:"omitempty,dive,required"`
}

// QuestionResponse represents a question returned by the API.
type QuestionResponse struct {
	ID          uint              `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Level       string            `json:"level"`
	Examples    []QuestionExample `json:"examples"`
	StarterCode StarterCode       `json:"starter_code"`
	Constraints []string          `json:"constraints"`
	AuthorID    string            `json:"author_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MarkSolvedResponse reports the outcome of recording a solve.
type MarkSolvedResponse struct {
	QuestionID    uint   `json:"question_id"`
	AlreadySolved bool   `json:"already_solved"`
	Message       string `json:"message"`
}

// NewQuestionResponse builds a response DTO from the model.
func NewQuestionResponse(question models.Question) QuestionResponse {
	examples := make([]QuestionExample, 0, len(question.Examples))
	for _, example := range question.Examples {
		examples = append(examples, QuestionExample(example))
	}
	constraints := []string(question.Constraints)
	if constraints == nil {
		constraints = []string{}
	}
	return QuestionResponse{
		ID:          question.ID,
		Title:       question.Title,
		Description: question.Description,
		Level:       question.Level,
		Examples:    examples,
		StarterCode: StarterCode(question.StarterCode.Data()),
		Constraints: constraints,
		AuthorID:    question.AuthorID,
		CreatedAt:   question.CreatedAt,
		UpdatedAt:   question.UpdatedAt,
	}
}

// NewQuestionListResponse converts a slice of questions.
func NewQuestionListResponse(questions []models.Question) []QuestionResponse {
	items := make([]QuestionResponse, 0, len(questions))
	for _, question := range questions {
		items = append(items, NewQuestionResponse(question))
	}
	return items
}

// ToModelExamples converts request examples into their stored form.
func ToModelExamples(examples []QuestionExample) []models.QuestionExample {
	out := make([]models.QuestionExample, 0, len(examples))
	for _, example := range examples {
		out = append(out, models.QuestionExample(example))
	}
	return out
}
