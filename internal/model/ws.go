package model

import "encoding/json"

type MessageType string

const (
	MessageTypeRegister    MessageType = "register"
	MessageTypeRegistered  MessageType = "registered"
	MessageTypeUnregister  MessageType = "unregister"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypePrintJob    MessageType = "print_job"
	MessageTypePrinted     MessageType = "printed"
	MessageTypePrintFailed MessageType = "print_failed"
)

// --- WebSocket Messages ---

type WSMessage struct {
	Type        MessageType     `json:"type"`
	AgentKey    string          `json:"agent_key,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
	Job         json.RawMessage `json:"job,omitempty"` // Parsed into PrintJob by the agent
	Error       string          `json:"error,omitempty"`
	Reconfigure bool            `json:"reconfigure,omitempty"`
}
