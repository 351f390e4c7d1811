package ollama

import "github.com/baochat/baochat/internal/model/chat"

// personaPrompt is the fixed system instruction prepended to every request.
const personaPrompt = "You are Bao, a friendly and helpful AI assistant shaped like a cute bao bun. " +
	"You're warm, approachable, and always eager to help. You love making people smile " +
	"and occasionally make gentle bao-related puns."

// historyWindow caps how much prior conversation is sent to the model.
const historyWindow = 10

// buildMessages assembles the request payload: persona first, then at most
// the last historyWindow context messages in original order, then the current
// prompt as a user entry.
func buildMessages(prompt string, history []chat.Message) []apiMessage {
	startIdx := 0
	if len(history) > historyWindow {
		startIdx = len(history) - historyWindow
	}

	messages := make([]apiMessage, 0, len(history)-startIdx+2)
	messages = append(messages, apiMessage{Role: string(chat.RoleSystem), Content: personaPrompt})
	for _, msg := range history[startIdx:] {
		messages = append(messages, apiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, apiMessage{Role: string(chat.RoleUser), Content: prompt})
	return messages
}
