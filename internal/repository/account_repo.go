package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// SolvedCount summarises how many questions an account solved.
type SolvedCount struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Solved  int64  `json:"solved"`
}

// AccountRepository exposes persistence operations for accounts.
type AccountRepository interface {
	CreateIfAbsent(ctx context.Context, account *models.Account) (bool, error)
	GetBySubject(ctx context.Context, subject string) (models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	UpdateRole(ctx context.Context, subject, role string) error
	Count(ctx context.Context) (int64, error)
	MarkSolved(ctx context.Context, accountID, questionID uint) (bool, error)
	SolvedCounts(ctx context.Context) ([]SolvedCount, error)
}

// NewAccountRepository constructs an account repository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

type accountRepository struct {
	db *gorm.DB
}

// CreateIfAbsent inserts the account unless one with the same subject exists.
// It reports whether a row was inserted.
func (r *accountRepository) CreateIfAbsent(ctx context.Context, account *models.Account) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subject"}}, DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *accountRepository) GetBySubject(ctx context.Context, subject string) (models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&account).Error; err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) UpdateRole(ctx context.Context, subject, role string) error {
	result := r.db.WithContext(ctx).Model(&models.Account{}).Where("subject = ?", subject).Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// MarkSolved records the pair once and reports whether it was new.
func (r *accountRepository) MarkSolved(ctx context.Context, accountID, questionID uint) (bool, error) {
	solved := models.SolvedQuestion{AccountID: accountID, QuestionID: questionID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "question_id"}},
			DoNothing: true,
		}).
		Create(&solved)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *accountRepository) SolvedCounts(ctx context.Context) ([]SolvedCount, error) {
	var counts []SolvedCount
	err := r.db.WithContext(ctx).
		Table("accounts").
		Select("accounts.subject AS subject, accounts.name AS name, COUNT(solved_questions.id) AS solved").
		Joins("LEFT JOIN solved_questions ON solved_questions.account_id = accounts.id").
		Group("accounts.id, accounts.subject, accounts.name").
		Order("solved DESC").
		Order("accounts.name ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
