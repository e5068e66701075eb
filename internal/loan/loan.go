// Package loan is the loan origination domain: loan files move from drafting
// through underwriter review to a decision, with evidence (credit scores and
// pay stubs) gathered while drafting.
package loan

import (
	"fmt"
	"math"
	"time"
)

// Table stores loan files.
const Table = "loan_files"

// State is a loan file's position in the review workflow.
type State string

const (
	StateDrafting    State = "drafting"
	StateNeedsReview State = "needs_review"
	StateInReview    State = "in_review"
	StateApproved    State = "approved"
	StateDenied      State = "denied"
)

// States lists every state in workflow order.
var States = []State{StateDrafting, StateNeedsReview, StateInReview, StateApproved, StateDenied}

var transitions = map[State][]State{
	StateDrafting:    {StateNeedsReview},
	StateNeedsReview: {StateInReview},
	StateInReview:    {StateApproved, StateDenied},
}

// CanTransition reports whether the workflow allows from → to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

// Credit score bounds.
const (
	MinScore = 300
	MaxScore = 850
)

// CreditPolicy is the rule set a loan file is underwritten against.
type CreditPolicy struct {
	MinimumCreditScore  int     `json:"minimum_credit_score"`
	MaximumDebtToIncome float64 `json:"maximum_debt_to_income"`
}

// DefaultCreditPolicy applies when a loan file is created without one.
func DefaultCreditPolicy() CreditPolicy {
	return CreditPolicy{MinimumCreditScore: 650, MaximumDebtToIncome: 0.43}
}

func (p CreditPolicy) validate() error {
	if p.MinimumCreditScore < MinScore || p.MinimumCreditScore > MaxScore {
		return fmt.Errorf("minimum_credit_score must be between %d and %d", MinScore, MaxScore)
	}
	if p.MaximumDebtToIncome <= 0 {
		return fmt.Errorf("maximum_debt_to_income must be positive")
	}
	return nil
}

// CreditScore is one bureau's score for the applicant.
type CreditScore struct {
	Bureau string `json:"bureau"`
	Score  int    `json:"score"`
}

// PayStub is one proof of income.
type PayStub struct {
	PayDate string  `json:"pay_date"` // YYYY-MM-DD
	Amount  float64 `json:"amount"`
}

// Decision outcomes.
const (
	OutcomeApproved = "approved"
	OutcomeDenied   = "denied"
)

// Who decided.
const (
	DecidedByHuman = "human"
	DecidedByAgent = "agent"
)

// UnderwritingDecision records how a loan file was closed.
type UnderwritingDecision struct {
	Outcome         string    `json:"outcome"`
	Reasons         []string  `json:"reasons,omitempty"`
	CreditScoreUsed int       `json:"credit_score_used,omitempty"`
	DecidedBy       string    `json:"decided_by"`
	DecidedAt       time.Time `json:"decided_at"`
}

// LoanFile is an application under origination.
type LoanFile struct {
	ID              string                `json:"id"`
	ApplicantName   string                `json:"applicant_name"`
	RequestedAmount float64               `json:"requested_amount"`
	CreditPolicy    CreditPolicy          `json:"credit_policy"`
	CreditScores    []CreditScore         `json:"credit_scores"`
	PayStubs        []PayStub             `json:"pay_stubs"`
	State           State                 `json:"state"`
	Decision        *UnderwritingDecision `json:"decision,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// LowestScore returns the lowest credit score on file, 0 when none.
func (f *LoanFile) LowestScore() int {
	lowest := 0
	for _, s := range f.CreditScores {
		if lowest == 0 || s.Score < lowest {
			lowest = s.Score
		}
	}
	return lowest
}

// AnnualIncome extrapolates pay stubs to a year. Stubs are assumed to be
// monthly unless their dates show a shorter interval.
func (f *LoanFile) AnnualIncome() float64 {
	if len(f.PayStubs) == 0 {
		return 0
	}
	var total float64
	for _, p := range f.PayStubs {
		total += p.Amount
	}
	average := total / float64(len(f.PayStubs))
	return average * float64(payPeriodsPerYear(f.PayStubs))
}

// DebtToIncome is the requested amount over annual income.
func (f *LoanFile) DebtToIncome() float64 {
	income := f.AnnualIncome()
	if income <= 0 {
		return math.Inf(1)
	}
	return f.RequestedAmount / income
}

func payPeriodsPerYear(stubs []PayStub) int {
	if len(stubs) < 2 {
		return 12
	}
	var dates []time.Time
	for _, s := range stubs {
		d, err := time.Parse(time.DateOnly, s.PayDate)
		if err != nil {
			return 12
		}
		dates = append(dates, d)
	}
	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	days := last.Sub(first).Hours() / 24 / float64(len(dates)-1)
	switch {
	case days <= 0:
		return 12
	case days <= 8:
		return 52
	case days <= 16:
		return 26
	default:
		return 12
	}
}
