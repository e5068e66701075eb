package loan

import "fmt"

// PolicyCheck is the deterministic evaluation of a loan file against its
// credit policy.
type PolicyCheck struct {
	Passed              bool     `json:"passed"`
	LowestCreditScore   int      `json:"lowest_credit_score"`
	MinimumCreditScore  int      `json:"minimum_credit_score"`
	AnnualIncome        float64  `json:"annual_income"`
	DebtToIncome        float64  `json:"debt_to_income"`
	MaximumDebtToIncome float64  `json:"maximum_debt_to_income"`
	Violations          []string `json:"violations,omitempty"`
}

// CheckCreditPolicy evaluates f: the lowest credit score must meet the
// minimum and debt-to-income must not exceed the maximum.
func CheckCreditPolicy(f *LoanFile) PolicyCheck {
	p := f.CreditPolicy
	check := PolicyCheck{
		LowestCreditScore:   f.LowestScore(),
		MinimumCreditScore:  p.MinimumCreditScore,
		AnnualIncome:        round2(f.AnnualIncome()),
		MaximumDebtToIncome: p.MaximumDebtToIncome,
	}

	if len(f.CreditScores) == 0 {
		check.Violations = append(check.Violations, "no credit score on file")
	} else if check.LowestCreditScore < p.MinimumCreditScore {
		check.Violations = append(check.Violations, fmt.Sprintf(
			"lowest credit score %d is below the minimum of %d", check.LowestCreditScore, p.MinimumCreditScore))
	}

	if check.AnnualIncome <= 0 {
		check.Violations = append(check.Violations, "no verified income")
	} else {
		check.DebtToIncome = round2(f.DebtToIncome())
		if f.DebtToIncome() > p.MaximumDebtToIncome {
			check.Violations = append(check.Violations, fmt.Sprintf(
				"debt-to-income %.2f exceeds the maximum of %.2f", check.DebtToIncome, p.MaximumDebtToIncome))
		}
	}

	check.Passed = len(check.Violations) == 0
	return check
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
