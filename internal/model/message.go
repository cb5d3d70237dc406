package model

// Sender identifies who wrote a message.
type Sender string

const (
	SenderHuman Sender = "human"
	// SenderAssistant uses the backend's wire value.
	SenderAssistant Sender = "ai"
)

// Message is one turn of a conversation. Messages are never edited after
// they are appended.
type Message struct {
	Content string `json:"message"`
	Sender  Sender `json:"sender"`
}

// AddMessageRequest is the body of POST /add-message.
type AddMessageRequest struct {
	Message          string   `json:"message"`
	UserEmail        string   `json:"user_email"`
	ChatID           string   `json:"chat_id,omitempty"`
	UseKnowledgeBase *bool    `json:"use_knowledge_base,omitempty"`
	SelectedDocs     []string `json:"selected_docs,omitempty"`
}

// AddMessageResponse is the reply of POST /add-message.
type AddMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

// UpdateChatRequest is the body of POST /update-chat.
type UpdateChatRequest struct {
	ChatID      string `json:"chat_id"`
	FullMessage string `json:"full_message"`
}

// ChangeModelRequest is the body of POST /change-model.
type ChangeModelRequest struct {
	Model string `json:"model"`
}

// SendMessageRequest is what the console page posts to submit a message.
type SendMessageRequest struct {
	Message          string   `json:"message"`
	UseKnowledgeBase *bool    `json:"use_knowledge_base,omitempty"`
	SelectedDocs     []string `json:"selected_docs,omitempty"`
}

// SendMessageResponse tells the page what the composer action did.
type SendMessageResponse struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Composer actions.
const (
	ActionSent    = "sent"
	ActionStopped = "stopped"
)
