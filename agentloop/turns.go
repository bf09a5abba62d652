package agentloop

import (
	"time"

	"github.com/tidegate/helmsman/stream"
	"github.com/tidegate/helmsman/toolgraph"
	"github.com/tidegate/helmsman/transport"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSystem      TurnKind = "system"
	TurnSteering    TurnKind = "steering"
)

// Turn is a single entry in the conversation history.
type Turn struct {
	Kind        TurnKind         `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	User        *UserTurn        `json:"user,omitempty"`
	Assistant   *AssistantTurn   `json:"assistant,omitempty"`
	ToolResults *ToolResultsTurn `json:"tool_results,omitempty"`
	System      *SystemTurn      `json:"system,omitempty"`
	Steering    *SteeringTurn    `json:"steering,omitempty"`
}

// UserTurn holds user input.
type UserTurn struct {
	Content string `json:"content"`
}

// AssistantTurn holds one model turn: the streamed text plus the tool-call
// requests the stream assembled, in sequence order.
type AssistantTurn struct {
	Content  string                    `json:"content"`
	Requests []*stream.ToolCallRequest `json:"requests,omitempty"`
}

// ToolResultsTurn holds one round's tool results, ordered by sequence index.
type ToolResultsTurn struct {
	Results []*toolgraph.ToolResult `json:"results"`
}

// SystemTurn holds a system message, including compaction summaries.
type SystemTurn struct {
	Content string `json:"content"`
}

// SteeringTurn holds an injected steering message.
type SteeringTurn struct {
	Content string `json:"content"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(content string) Turn {
	return Turn{
		Kind:      TurnUser,
		Timestamp: time.Now(),
		User:      &UserTurn{Content: content},
	}
}

// NewAssistantTurn creates a Turn wrapping an assistant response.
func NewAssistantTurn(content string, requests []*stream.ToolCallRequest) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantTurn{Content: content, Requests: requests},
	}
}

// NewToolResultsTurn creates a Turn wrapping tool results.
func NewToolResultsTurn(results []*toolgraph.ToolResult) Turn {
	return Turn{
		Kind:        TurnToolResults,
		Timestamp:   time.Now(),
		ToolResults: &ToolResultsTurn{Results: results},
	}
}

// NewSystemTurn creates a Turn wrapping a system message.
func NewSystemTurn(content string) Turn {
	return Turn{
		Kind:      TurnSystem,
		Timestamp: time.Now(),
		System:    &SystemTurn{Content: content},
	}
}

// NewSteeringTurn creates a Turn wrapping a steering message.
func NewSteeringTurn(content string) Turn {
	return Turn{
		Kind:      TurnSteering,
		Timestamp: time.Now(),
		Steering:  &SteeringTurn{Content: content},
	}
}

// TextContent returns the text content of a turn regardless of its kind.
func (t Turn) TextContent() string {
	switch t.Kind {
	case TurnUser:
		if t.User != nil {
			return t.User.Content
		}
	case TurnAssistant:
		if t.Assistant != nil {
			return t.Assistant.Content
		}
	case TurnSystem:
		if t.System != nil {
			return t.System.Content
		}
	case TurnSteering:
		if t.Steering != nil {
			return t.Steering.Content
		}
	}
	return ""
}

// HistoryToMessages converts the turn-based history into transport messages.
// One tool-result message is appended per result, in result order, so the
// model sees one outcome per request.
func HistoryToMessages(history []Turn) []transport.Message {
	var messages []transport.Message
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			if turn.User != nil {
				messages = append(messages, transport.Message{Role: transport.RoleUser, Content: turn.User.Content})
			}
		case TurnAssistant:
			if turn.Assistant != nil && turn.Assistant.Content != "" {
				messages = append(messages, transport.Message{Role: transport.RoleAssistant, Content: turn.Assistant.Content})
			}
		case TurnToolResults:
			if turn.ToolResults != nil {
				for _, result := range turn.ToolResults.Results {
					content := result.Output
					if !result.Success {
						content = result.Error
					}
					messages = append(messages, transport.Message{
						Role:    transport.RoleTool,
						Content: content,
						IsError: !result.Success,
					})
				}
			}
		case TurnSystem:
			if turn.System != nil {
				messages = append(messages, transport.Message{Role: transport.RoleSystem, Content: turn.System.Content})
			}
		case TurnSteering:
			// Steering turns are sent as user messages so the model treats
			// them as additional instructions.
			if turn.Steering != nil {
				messages = append(messages, transport.Message{Role: transport.RoleUser, Content: turn.Steering.Content})
			}
		}
	}
	return messages
}
