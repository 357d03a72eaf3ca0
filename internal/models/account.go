package models

import "time"

// Account roles.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Account mirrors a user of the external identity provider.
type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Subject   string    `gorm:"size:191;uniqueIndex;not null" json:"subject"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Image     string    `gorm:"size:512" json:"image"`
	Role      string    `gorm:"size:32;not null;default:student" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTeacher reports whether the account may manage questions and roles.
func (a Account) IsTeacher() bool {
	return a.Role == RoleTeacher
}

// ValidRole reports whether role is a known account role.
func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleTeacher
}

// SolvedQuestion records that an account solved a question.
type SolvedQuestion struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"not null;uniqueIndex:idx_solved_account_question" json:"account_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_solved_account_question" json:"question_id"`
	CreatedAt  time.Time `json:"created_at"`
}
