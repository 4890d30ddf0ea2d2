package assistant

import "github.com/PabloGalante/aisuite/internal/domain"

// fallbackReplies are used when no generator is configured or it fails.
var fallbackReplies = map[domain.Intent][]string{
	domain.IntentGreeting: {
		"Hello! How can I assist you today?",
		"Hi there! What can I help you with?",
		"Hey! I'm here to help. What do you need?",
	},
	domain.IntentFarewell: {
		"Goodbye! Feel free to return if you need anything.",
		"See you later! Have a great day!",
		"Take care! I'm here whenever you need assistance.",
	},
	domain.IntentGratitude: {
		"You're welcome! Happy to help!",
		"My pleasure! Let me know if you need anything else.",
		"Glad I could help!",
	},
	domain.IntentHelp: {
		"I'm here to assist you with various tasks. You can ask me questions, request information, or just have a conversation!",
		"I can help you with many things! Just ask me a question or tell me what you need.",
	},
	domain.IntentCapability: {
		"I'm an AI assistant that can help answer questions, provide information, and have conversations with you. What would you like to know?",
		"I can assist with answering questions, providing explanations, and discussing various topics. How can I help you today?",
	},
	domain.IntentIdentity: {
		"I'm an AI assistant designed to help you with information and tasks. Think of me as your helpful digital companion!",
		"I'm an AI chatbot built to assist users like you. I'm here to answer questions and provide helpful information.",
	},
	domain.IntentGeneral: {
		"That's an interesting point. Could you tell me more about what you're looking for?",
		"I understand. How can I help you with that?",
		"Interesting! What specific information do you need?",
		"I'm here to help. Could you provide more details about what you need?",
	},
}
