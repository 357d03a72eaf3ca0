package dto

// DashboardResponse aggregates platform wide statistics for teachers.
type DashboardResponse struct {
	TotalUsers       int64          `json:"total_users"`
	TotalQuestions   int64          `json:"total_questions"`
	UpcomingClasses  int            `json:"upcoming_classes"`
	LiveClasses      int            `json:"live_classes"`
	CompletedClasses int            `json:"completed_classes"`
	SolvedByUser     []SolvedByUser `json:"solved_by_user"`
}

// SolvedByUser is one leaderboard row.
type SolvedByUser struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Solved  int64  `json:"solved"`
}
