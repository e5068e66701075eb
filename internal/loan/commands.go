package loan

import (
	"context"

	"github.com/jkaninda/oneline/internal/command"
)

// ModuleName is the manifest name of this domain.
const ModuleName = "loan_origination"

var idProperty = command.Property("string", "Loan file id")

func idSchema() map[string]any {
	return command.Schema(map[string]any{"loan_file_id": idProperty}, "loan_file_id")
}

type idInput struct {
	LoanFileID string `json:"loan_file_id"`
}

// Module registers the loan origination commands.
func Module() command.Module {
	return command.NewModule(ModuleName, func(reg *command.Registry, deps command.Deps) error {
		svc := NewService(deps.Driver, deps.Logger)
		for _, c := range Commands(svc) {
			reg.Register(c)
		}
		reg.Register(NewReviewCommand(svc, reg, deps))
		return nil
	})
}

// Commands returns the deterministic loan commands bound to svc.
func Commands(svc *Service) []command.Command {
	return []command.Command{
		command.Func("CreateLoanFile", "Open a new loan file in drafting",
			command.Schema(map[string]any{
				"applicant_name":   command.Property("string", "Applicant's full name"),
				"requested_amount": command.Property("number", "Requested loan amount"),
				"credit_policy":    command.Property("object", "Policy override: minimum_credit_score, maximum_debt_to_income"),
			}, "applicant_name", "requested_amount"),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				var in CreateInput
				if err := command.DecodeInputs(inputs, &in); err != nil {
					return nil, err
				}
				return svc.Create(ctx, in)
			}),

		command.Func("AddCreditScore", "Attach a credit bureau score to a drafting loan file",
			command.Schema(map[string]any{
				"loan_file_id": idProperty,
				"bureau":       command.Property("string", "Reporting bureau"),
				"score":        command.Property("integer", "Score between 300 and 850"),
			}, "loan_file_id", "bureau", "score"),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				var in struct {
					idInput
					CreditScore
				}
				if err := command.DecodeInputs(inputs, &in); err != nil {
					return nil, err
				}
				return svc.AddCreditScore(ctx, in.LoanFileID, in.CreditScore)
			}),

		command.Func("AddPayStub", "Attach a pay stub to a drafting loan file",
			command.Schema(map[string]any{
				"loan_file_id": idProperty,
				"pay_date":     command.Property("string", "Pay date, YYYY-MM-DD"),
				"amount":       command.Property("number", "Gross amount"),
			}, "loan_file_id", "pay_date", "amount"),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				var in struct {
					idInput
					PayStub
				}
				if err := command.DecodeInputs(inputs, &in); err != nil {
					return nil, err
				}
				return svc.AddPayStub(ctx, in.LoanFileID, in.PayStub)
			}),

		byID("SubmitForReview", "Submit a complete draft for underwriting", svc.Submit),
		byID("StartUnderwriterReview", "Start underwriter review of a submitted loan file", svc.StartReview),

		command.Func("ApproveLoanFile", "Approve a loan file under review",
			decisionSchema(false),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				return decide(ctx, svc, inputs, OutcomeApproved)
			}),

		command.Func("DenyLoanFile", "Deny a loan file under review",
			decisionSchema(true),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				return decide(ctx, svc, inputs, OutcomeDenied)
			}),

		byID("FindLoanFile", "Fetch a loan file by id", svc.Find),

		command.Func("ListLoanFiles", "List loan files, optionally filtered by state",
			command.Schema(map[string]any{
				"state": command.Enum("Only return files in this state", stateNames()...),
			}),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				state, _ := inputs["state"].(string)
				return svc.List(ctx, State(state))
			}),

		command.Func("CheckCreditPolicy", "Evaluate a loan file against its credit policy",
			idSchema(),
			func(ctx context.Context, inputs map[string]any) (any, error) {
				f, err := svc.Find(ctx, inputs["loan_file_id"].(string))
				if err != nil {
					return nil, err
				}
				return CheckCreditPolicy(f), nil
			}),
	}
}

func byID(name, description string, fn func(context.Context, string) (*LoanFile, error)) command.Command {
	return command.Func(name, description, idSchema(),
		func(ctx context.Context, inputs map[string]any) (any, error) {
			return fn(ctx, inputs["loan_file_id"].(string))
		})
}

func decisionSchema(reasonsRequired bool) map[string]any {
	required := []string{"loan_file_id"}
	if reasonsRequired {
		required = append(required, "reasons")
	}
	return command.Schema(map[string]any{
		"loan_file_id":      idProperty,
		"reasons":           command.Property("array", "Reasons for the decision"),
		"credit_score_used": command.Property("integer", "Score the decision relied on; defaults to the lowest on file"),
	}, required...)
}

func decide(ctx context.Context, svc *Service, inputs map[string]any, outcome string) (any, error) {
	var in struct {
		idInput
		Reasons         []string `json:"reasons"`
		CreditScoreUsed int      `json:"credit_score_used"`
	}
	if err := command.DecodeInputs(inputs, &in); err != nil {
		return nil, err
	}
	if outcome == OutcomeDenied && len(in.Reasons) == 0 {
		return nil, command.InvalidInput("reasons", "a denial needs at least one reason")
	}
	return svc.Decide(ctx, in.LoanFileID, UnderwritingDecision{
		Outcome:         outcome,
		Reasons:         in.Reasons,
		CreditScoreUsed: in.CreditScoreUsed,
		DecidedBy:       DecidedByHuman,
	})
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return names
}

