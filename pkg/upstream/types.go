// Package upstream defines the wire schema for AWS CodeWhisperer's
// generateAssistantResponse endpoint: conversationState, history entries,
// tool specs, and tool results. Field names match the upstream JSON
// exactly (conversationId, userInputMessage, toolUseId, ...).
package upstream

import "encoding/json"

// ChatTriggerType is always "MANUAL" for interactive proxy traffic.
const ChatTriggerType = "MANUAL"

// Origin identifies the calling surface to the upstream.
const Origin = "AI_EDITOR"

// Request is the POST body for generateAssistantResponse.
type Request struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn         string            `json:"profileArn,omitempty"`
}

// ConversationState is the upstream request envelope: current message,
// prior turns, and the continuation id for multi-step tool exchanges.
type ConversationState struct {
	ConversationID       string    `json:"conversationId"`
	AgentContinuationID  string    `json:"agentContinuationId,omitempty"`
	AgentTaskType        string    `json:"agentTaskType,omitempty"`
	History              []Message `json:"history,omitempty"`
	CurrentMessage       Message   `json:"currentMessage"`
	ChatTriggerType      string    `json:"chatTriggerType"`
}

// Message is either a userInputMessage or an assistantResponseMessage,
// never both. Exactly one of the two pointer fields is set.
type Message struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserMessage builds a history/current entry from a user turn.
func UserMessage(m UserInputMessage) Message {
	return Message{UserInputMessage: &m}
}

// AssistantMessage builds a history entry from an assistant turn.
func AssistantMessage(m AssistantResponseMessage) Message {
	return Message{AssistantResponseMessage: &m}
}

// Image is an inline image attachment, format auto-detected upstream of
// this package by the request builder.
type Image struct {
	Format string `json:"format"` // png, jpeg, gif, webp
	Source struct {
		Bytes string `json:"bytes"` // base64
	} `json:"source"`
}

// UserInputMessage is the user half of a conversation turn.
type UserInputMessage struct {
	Content                 string               `json:"content"`
	ModelID                 string               `json:"modelId"`
	Origin                  string               `json:"origin"`
	Images                  []Image              `json:"images,omitempty"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// UserInputMessageContext carries tool specs and prior tool results.
type UserInputMessageContext struct {
	Tools                []Tool               `json:"tools,omitempty"`
	ToolResults          []ToolResult         `json:"toolResults,omitempty"`
	SupplementalContexts []SupplementalContext `json:"supplementalContexts,omitempty"`
}

// SupplementalContext is an opaque extra-context block; this proxy never
// populates it but preserves the field for forward compatibility with the
// upstream schema.
type SupplementalContext struct {
	FilePath string `json:"filePath,omitempty"`
	Content  string `json:"content,omitempty"`
}

// AssistantResponseMessage is the assistant half of a conversation turn.
type AssistantResponseMessage struct {
	Content  string     `json:"content"`
	ToolUses []ToolUse  `json:"toolUses,omitempty"`
}

// Tool is a tool specification attached to a UserInputMessageContext.
type Tool struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps the raw JSON schema under the upstream's required
// "json" key.
type InputSchema struct {
	JSON json.RawMessage `json:"json"`
}

// ToolUse is a tool invocation recorded in assistant history.
type ToolUse struct {
	Name      string          `json:"name"`
	ToolUseID string          `json:"toolUseId"`
	Input     json.RawMessage `json:"input"`
}

// ToolResultStatus is "success" or "error".
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResult is the outcome of a prior ToolUse, attached to the next
// UserInputMessageContext.
type ToolResult struct {
	ToolUseID string                   `json:"toolUseId"`
	Status    ToolResultStatus         `json:"status"`
	Content   []ToolResultContentBlock `json:"content"`
}

// ToolResultContentBlock is a single text chunk of a tool result. The
// upstream only recognizes the "text" shape for tool output.
type ToolResultContentBlock struct {
	Text string `json:"text"`
}
