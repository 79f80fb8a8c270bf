package tool

import (
	"context"
	"encoding/json"
	"time"

	"cardchat/internal/domain"
)

// EventsTool renders a timeline card of dated stock events.
type EventsTool struct {
	delay time.Duration
}

// NewEventsTool creates the getEvents tool with the given settle delay.
func NewEventsTool(delay time.Duration) *EventsTool {
	return &EventsTool{delay: delay}
}

func (t *EventsTool) Name() string { return domain.ToolGetEvents }

func (t *EventsTool) Description() string {
	return "List funny imaginary events between user highlighted dates that describe stock activity."
}

func (t *EventsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"events": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"date": {"type": "string", "description": "The date of the event, in ISO-8601 format"},
							"headline": {"type": "string", "description": "The headline of the event"},
							"description": {"type": "string", "description": "The description of the event"}
						},
						"required": ["date", "headline", "description"]
					}
				}
			},
			"required": ["events"]
		}`),
	}
}

func (t *EventsTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, live domain.FragmentHandle) (domain.Fragment, error) {
	live.Update(domain.SkeletonFragment(domain.FragmentEventsSkeleton))

	var args struct {
		Events []domain.StockEvent `json:"events"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return domain.Fragment{}, domain.WrapOp("EventsTool.Generate", err)
	}

	settle(ctx, t.delay)

	result, err := json.Marshal(args.Events)
	if err != nil {
		return domain.Fragment{}, domain.WrapOp("EventsTool.Generate", err)
	}
	st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
	if err := st.Commit(ctx); err != nil {
		return domain.Fragment{}, err
	}
	return domain.DataFragment(domain.FragmentEvents, result), nil
}

func (t *EventsTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return domain.DataFragment(domain.FragmentEvents, result), true
}

var _ domain.Tool = (*EventsTool)(nil)
