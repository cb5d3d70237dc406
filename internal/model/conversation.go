// Package model defines data structures shared by the chat console.
package model

// Conversation is the active chat as held by the console.
// An empty ID means the conversation has not been persisted yet.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserEmail string    `json:"user_email"`
	Messages  []Message `json:"messages"`
}

// ChatTitle is one entry of the user's chat list.
type ChatTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TitleRunes is how much of the first message becomes a new chat's title.
const TitleRunes = 10

// TitleFromMessage derives a chat title from its first message.
func TitleFromMessage(text string) string {
	r := []rune(text)
	if len(r) > TitleRunes {
		r = r[:TitleRunes]
	}
	return string(r)
}

// ConversationSnapshot is the view returned to the console page.
type ConversationSnapshot struct {
	Conversation Conversation `json:"conversation"`
	Generating   bool         `json:"generating"`
	Display      string       `json:"display,omitempty"`
	Model        string       `json:"model"`
}
