package loan

import (
	"context"
	"encoding/json"

	"github.com/jkaninda/oneline/internal/agentcmd"
	"github.com/jkaninda/oneline/internal/command"
)

const reviewInstructions = `You are a mortgage underwriter. Decide whether to approve or deny the loan file.
Call CheckCreditPolicy first and base the decision on its result: deny when the
policy check fails, approve otherwise unless the evidence is inconsistent.
List every reason that supports the outcome.`

// ReviewCommand delegates underwriting of a loan file under review to the
// LLM and applies the decision it returns.
type ReviewCommand struct {
	svc   *Service
	agent *agentcmd.Command
}

// NewReviewCommand builds ReviewLoanFile on top of reg.
func NewReviewCommand(svc *Service, reg *command.Registry, deps command.Deps) *ReviewCommand {
	def := agentcmd.Definition{
		Name:         "ReviewLoanFile",
		Description:  "Have the underwriting agent approve or deny a loan file under review",
		Instructions: reviewInstructions,
		Inputs:       idSchema(),
		Result: command.Schema(map[string]any{
			"outcome":           command.Enum("Decision", OutcomeApproved, OutcomeDenied),
			"reasons":           command.Property("array", "Reasons for the decision"),
			"credit_score_used": command.Property("integer", "Credit score the decision relied on"),
		}, "outcome", "reasons"),
		Tools: []string{"FindLoanFile", "CheckCreditPolicy"},
	}
	return &ReviewCommand{svc: svc, agent: agentcmd.New(def, reg, deps)}
}

func (c *ReviewCommand) Name() string                { return c.agent.Name() }
func (c *ReviewCommand) Description() string         { return c.agent.Description() }
func (c *ReviewCommand) InputSchema() map[string]any { return c.agent.InputSchema() }
func (c *ReviewCommand) AgentBacked() bool           { return true }

func (c *ReviewCommand) Run(ctx context.Context, inputs map[string]any) (any, error) {
	id := inputs["loan_file_id"].(string)
	f, err := c.svc.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.State != StateInReview {
		return nil, command.Errorf(command.CodeInvalidState,
			"loan file %s must be in %s to be reviewed, not %s", id, StateInReview, f.State)
	}

	result, err := c.agent.Execute(ctx, map[string]any{
		"loan_file":     f,
		"credit_policy": f.CreditPolicy,
	})
	if err != nil {
		return nil, err
	}

	var verdict struct {
		Outcome         string   `json:"outcome"`
		Reasons         []string `json:"reasons"`
		CreditScoreUsed int      `json:"credit_score_used"`
	}
	data, _ := json.Marshal(result)
	if err := json.Unmarshal(data, &verdict); err != nil {
		return nil, command.Wrap(command.CodeAgentInvalidResult, "decoding underwriting result", err)
	}

	return c.svc.Decide(ctx, id, UnderwritingDecision{
		Outcome:         verdict.Outcome,
		Reasons:         verdict.Reasons,
		CreditScoreUsed: verdict.CreditScoreUsed,
		DecidedBy:       DecidedByAgent,
	})
}

var _ command.AgentBacked = (*ReviewCommand)(nil)
