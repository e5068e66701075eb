package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/oneline/internal/command"
	"github.com/jkaninda/oneline/internal/persistence"
)

// Service implements the loan workflow on top of a persistence driver.
type Service struct {
	repo   *persistence.Repository[LoanFile]
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// NewService binds the loan workflow to driver.
func NewService(driver persistence.Driver, logger *slog.Logger) *Service {
	return &Service{
		repo:   persistence.NewRepository[LoanFile](driver, Table),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// CreateInput holds the fields of a new loan file.
type CreateInput struct {
	ApplicantName   string        `json:"applicant_name"`
	RequestedAmount float64       `json:"requested_amount"`
	CreditPolicy    *CreditPolicy `json:"credit_policy"`
}

// Create opens a loan file in drafting.
func (s *Service) Create(ctx context.Context, in CreateInput) (*LoanFile, error) {
	name := strings.TrimSpace(in.ApplicantName)
	if name == "" {
		return nil, command.InvalidInput("applicant_name", "must not be blank")
	}
	if in.RequestedAmount <= 0 {
		return nil, command.InvalidInput("requested_amount", "must be positive")
	}
	policy := DefaultCreditPolicy()
	if in.CreditPolicy != nil {
		policy = *in.CreditPolicy
		if err := policy.validate(); err != nil {
			return nil, command.InvalidInput("credit_policy", "%s", err.Error())
		}
	}

	now := s.now()
	f := &LoanFile{
		ID:              s.newID(),
		ApplicantName:   name,
		RequestedAmount: in.RequestedAmount,
		CreditPolicy:    policy,
		CreditScores:    []CreditScore{},
		PayStubs:        []PayStub{},
		State:           StateDrafting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, f); err != nil {
		return nil, fmt.Errorf("storing loan file: %w", err)
	}
	s.logger.InfoContext(ctx, "loan file created", slog.String("loan_file_id", f.ID))
	return f, nil
}

// Find loads a loan file.
func (s *Service) Find(ctx context.Context, id string) (*LoanFile, error) {
	f, err := s.repo.Find(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, command.Errorf(command.CodeNotFound, "loan file %s not found", id)
	}
	return f, err
}

// List returns loan files ordered by id, optionally only those in state.
func (s *Service) List(ctx context.Context, state State) ([]*LoanFile, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	if state == "" {
		return all, nil
	}
	out := make([]*LoanFile, 0, len(all))
	for _, f := range all {
		if f.State == state {
			out = append(out, f)
		}
	}
	return out, nil
}

// AddCreditScore attaches a bureau score while drafting.
func (s *Service) AddCreditScore(ctx context.Context, id string, score CreditScore) (*LoanFile, error) {
	if strings.TrimSpace(score.Bureau) == "" {
		return nil, command.InvalidInput("bureau", "must not be blank")
	}
	if score.Score < MinScore || score.Score > MaxScore {
		return nil, command.InvalidInput("score", "must be between %d and %d", MinScore, MaxScore)
	}
	return s.mutate(ctx, id, func(f *LoanFile) error {
		if err := requireState(f, StateDrafting, "add a credit score"); err != nil {
			return err
		}
		f.CreditScores = append(f.CreditScores, score)
		return nil
	})
}

// AddPayStub attaches proof of income while drafting.
func (s *Service) AddPayStub(ctx context.Context, id string, stub PayStub) (*LoanFile, error) {
	if _, err := time.Parse(time.DateOnly, stub.PayDate); err != nil {
		return nil, command.InvalidInput("pay_date", "must be a date (YYYY-MM-DD)")
	}
	if stub.Amount <= 0 {
		return nil, command.InvalidInput("amount", "must be positive")
	}
	return s.mutate(ctx, id, func(f *LoanFile) error {
		if err := requireState(f, StateDrafting, "add a pay stub"); err != nil {
			return err
		}
		f.PayStubs = append(f.PayStubs, stub)
		return nil
	})
}

// Submit moves a complete draft to needs_review.
func (s *Service) Submit(ctx context.Context, id string) (*LoanFile, error) {
	return s.mutate(ctx, id, func(f *LoanFile) error {
		if err := transition(f, StateNeedsReview); err != nil {
			return err
		}
		if len(f.CreditScores) == 0 {
			return command.Errorf(command.CodeInvalidState, "loan file %s needs at least one credit score", f.ID)
		}
		if len(f.PayStubs) == 0 {
			return command.Errorf(command.CodeInvalidState, "loan file %s needs at least one pay stub", f.ID)
		}
		return nil
	})
}

// StartReview assigns the file to an underwriter.
func (s *Service) StartReview(ctx context.Context, id string) (*LoanFile, error) {
	return s.mutate(ctx, id, func(f *LoanFile) error {
		return transition(f, StateInReview)
	})
}

// Decide closes a file under review with d.
func (s *Service) Decide(ctx context.Context, id string, d UnderwritingDecision) (*LoanFile, error) {
	var target State
	switch d.Outcome {
	case OutcomeApproved:
		target = StateApproved
	case OutcomeDenied:
		target = StateDenied
	default:
		return nil, command.InvalidInput("outcome", "must be %q or %q", OutcomeApproved, OutcomeDenied)
	}
	return s.mutate(ctx, id, func(f *LoanFile) error {
		if err := transition(f, target); err != nil {
			return err
		}
		if d.CreditScoreUsed == 0 {
			d.CreditScoreUsed = f.LowestScore()
		}
		d.DecidedAt = s.now()
		f.Decision = &d
		return nil
	})
}

// mutate loads id, applies fn and stores the result.
func (s *Service) mutate(ctx context.Context, id string, fn func(*LoanFile) error) (*LoanFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	from := f.State
	if err := fn(f); err != nil {
		return nil, err
	}
	f.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("storing loan file: %w", err)
	}
	if f.State != from {
		s.logger.InfoContext(ctx, "loan file transitioned",
			slog.String("loan_file_id", f.ID),
			slog.String("from", string(from)),
			slog.String("to", string(f.State)),
		)
	}
	return f, nil
}

func transition(f *LoanFile, to State) error {
	if !CanTransition(f.State, to) {
		return command.Errorf(command.CodeInvalidState,
			"loan file %s cannot move from %s to %s", f.ID, f.State, to)
	}
	f.State = to
	return nil
}

func requireState(f *LoanFile, want State, action string) error {
	if f.State != want {
		return command.Errorf(command.CodeInvalidState,
			"cannot %s to loan file %s in state %s", action, f.ID, f.State)
	}
	return nil
}
