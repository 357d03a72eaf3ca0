package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question difficulty levels.
const (
	LevelEasy   = "Easy"
	LevelMedium = "Medium"
	LevelHard   = "Hard"
)

// QuestionExample is a worked example; its input and output double as a test case.
type QuestionExample struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

// StarterCode holds the per-language template shown to students.
type StarterCode struct {
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
}

// For returns the template for a language, or an empty string.
func (s StarterCode) For(language string) string {
	switch language {
	case "javascript":
		return s.JavaScript
	case "python":
		return s.Python
	default:
		return ""
	}
}

// Question is a coding interview problem authored by a teacher.
type Question struct {
	ID          uint                                 `gorm:"primaryKey" json:"id"`
	Title       string                               `gorm:"size:255;not null" json:"title"`
	Description string                               `gorm:"type:text;not null" json:"description"`
	Level       string                               `gorm:"size:16;not null" json:"level"`
	Examples    datatypes.JSONSlice[QuestionExample] `json:"examples"`
	StarterCode datatypes.JSONType[StarterCode]      `json:"starter_code"`
	Constraints datatypes.JSONSlice[string]          `json:"constraints"`
	AuthorID    string                               `gorm:"size:191;index;not null" json:"author_id"`
	CreatedAt   time.Time                            `json:"created_at"`
	UpdatedAt   time.Time                            `json:"updated_at"`
}
