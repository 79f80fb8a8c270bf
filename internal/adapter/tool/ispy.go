package tool

import (
	"context"
	"encoding/json"
	"time"

	"cardchat/internal/domain"
)

// ISpyGameTool starts the I Spy self-management activity, seeded with the
// object the user wants the students to guess. Pure fragment
// construction; the game outcome is simulated client-side.
type ISpyGameTool struct {
	delay time.Duration
}

// NewISpyGameTool creates the startISpyGame tool with the given settle delay.
func NewISpyGameTool(delay time.Duration) *ISpyGameTool {
	return &ISpyGameTool{delay: delay}
}

func (t *ISpyGameTool) Name() string { return domain.ToolStartISpyGame }

func (t *ISpyGameTool) Description() string {
	return "Start the ispy game."
}

func (t *ISpyGameTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object": {"type": "string", "description": "The object to guess."}
			},
			"required": ["object"]
		}`),
	}
}

func (t *ISpyGameTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, live domain.FragmentHandle) (domain.Fragment, error) {
	live.Update(domain.SpinnerFragment("Setting up the game..."))

	var args struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return domain.Fragment{}, domain.WrapOp("ISpyGameTool.Generate", err)
	}

	settle(ctx, t.delay)

	result, err := json.Marshal(domain.ISpyBoard{Items: []string{args.Object}})
	if err != nil {
		return domain.Fragment{}, domain.WrapOp("ISpyGameTool.Generate", err)
	}
	st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
	if err := st.Commit(ctx); err != nil {
		return domain.Fragment{}, err
	}
	return domain.DataFragment(domain.FragmentISpy, result), nil
}

func (t *ISpyGameTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return domain.DataFragment(domain.FragmentISpy, result), true
}

var _ domain.Tool = (*ISpyGameTool)(nil)
