package main

import (
	"time"
)

// Messages coming from clients
type ClientMessage struct {
	Type string `json:"type"`           // "find-match", "set-word", "ask-question", "answer", "make-guess", "time-expired"
	Text string `json:"text,omitempty"` // word, question, answer, or guess
}

// Sent to a connection queued without an opponent
type WaitingMessage struct {
	Type string `json:"type"` // "waiting"
}

// Sent to both participants once a pair is formed; each receives only
// its own role.
type MatchFoundMessage struct {
	Type   string `json:"type"` // "match-found"
	GameID string `json:"gameId"`
	Role   Role   `json:"role"`
}

// Broadcast to both participants when the setter commits the word.
type GameStartedMessage struct {
	Type    string `json:"type"` // "game-started"
	Message string `json:"message"`
}

// NewMessage carries one transcript entry to both participants.
type NewMessage struct {
	Type      string    `json:"type"` // "new-message"
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Sent to the setter only, signalling a question awaits an answer.
type QuestionPendingMessage struct {
	Type string `json:"type"` // "question-pending"
	Text string `json:"text"`
}

// Sent to the guesser only, signalling asking is unblocked again.
type AnswerReceivedMessage struct {
	Type string `json:"type"` // "answer-received"
}

// Broadcast to both participants on win or timeout.
type GameEndedMessage struct {
	Type        string `json:"type"` // "game-ended"
	Won         bool   `json:"won"`
	Word        string `json:"word"`
	TimeElapsed int    `json:"timeElapsed"`
}

// Sent to the remaining participant when the other side drops.
type OpponentDisconnectedMessage struct {
	Type string `json:"type"` // "opponent-disconnected"
}

func newMessageEvent(m Message) NewMessage {
	return NewMessage{
		Type:      "new-message",
		Role:      m.Role,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}
