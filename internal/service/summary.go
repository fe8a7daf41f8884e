package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
	"github.com/punchamoorthee/classfund/internal/store"
)

// SummaryService aggregates a class fund. Income counts verified payments
// only; rejected and pending ones never contribute.
type SummaryService struct {
	store store.Store
}

func NewSummaryService(st store.Store) *SummaryService {
	return &SummaryService{store: st}
}

func (s *SummaryService) Summary(ctx context.Context, actor *domain.Actor, f models.SummaryFilter) (*models.Summary, error) {
	if actor == nil {
		return nil, ErrNotMember
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, &ValidationError{Fields: map[string]string{"to": "before_from"}}
	}
	f.ClassID = actor.ClassID

	income, err := s.store.SumIncome(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("sum income: %w", err)
	}
	expense, err := s.store.SumExpense(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("sum expense: %w", err)
	}
	return &models.Summary{
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      income - expense,
	}, nil
}
