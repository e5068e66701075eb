package agentcmd

import (
	"fmt"

	"github.com/jkaninda/oneline/internal/command"
)

// ModuleName is the extension point loaded after every domain module.
const ModuleName = "agent_backed_command"

// AccomplishGoalName is the built-in general-purpose agent command.
const AccomplishGoalName = "AccomplishGoal"

// AccomplishGoal lets the model pursue a free-form goal with every plain
// command as a tool.
func AccomplishGoal() Definition {
	return Definition{
		Name:        AccomplishGoalName,
		Description: "Accomplish a free-form goal by calling the available commands",
		Instructions: "Work towards the goal step by step. Prefer reading state before changing it. " +
			"Report what you did and the outcome in the answer.",
		Inputs: command.Schema(map[string]any{
			"goal": command.Property("string", "What to accomplish"),
		}, "goal"),
		Result: command.Schema(map[string]any{
			"answer": command.Property("string", "Outcome of the goal"),
		}, "answer"),
		AllTools: true,
	}
}

// Module registers AccomplishGoal and every manifest agent command.
func Module() command.Module {
	return command.NewModule(ModuleName, func(reg *command.Registry, deps command.Deps) error {
		defs := []Definition{AccomplishGoal()}
		for _, ac := range deps.AgentCommands {
			defs = append(defs, FromConfig(ac))
		}
		for _, def := range defs {
			if err := checkTools(reg, def); err != nil {
				return err
			}
			if reg.Get(def.Name) != nil {
				return fmt.Errorf("agent command %s: a command with that name is already registered", def.Name)
			}
			cmd := New(def, reg, deps)
			if err := cmd.Err(); err != nil {
				return err
			}
			if err := reg.Add(cmd); err != nil {
				return err
			}
		}
		return nil
	})
}

func checkTools(reg *command.Registry, def Definition) error {
	for _, name := range def.Tools {
		c := reg.Get(name)
		if c == nil {
			return fmt.Errorf("agent command %s: unknown tool %q", def.Name, name)
		}
		if command.IsAgentBacked(c) {
			return fmt.Errorf("agent command %s: tool %q is itself agent-backed", def.Name, name)
		}
	}
	return nil
}
