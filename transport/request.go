package transport

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation entry sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// IsError marks a tool-role message as a failed tool result.
	IsError bool `json:"is_error,omitempty"`
}

// ToolDef describes one tool offered to the model for a turn.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TurnRequest carries everything a Source needs to start one model turn.
type TurnRequest struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
	Tools    []ToolDef `json:"tools,omitempty"`

	// ToolChoice is one of "auto", "none", or "required". Empty means the
	// provider default.
	ToolChoice string `json:"tool_choice,omitempty"`

	// Model overrides the source's default model when non-empty.
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}
