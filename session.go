// Word Duel session state machine
//
// A Session is one duel between exactly two connections. The setter commits
// a secret word, then the guesser alternates questions with the setter's
// answers until a correct guess, the countdown expiring, or a disconnect
// ends the duel. Invalid transitions (wrong role, wrong turn, wrong status)
// are silent no-ops; the transport never sees an error for them.
//
// All transition methods assume the lobby lock is held and the caller tears
// the session down once a method reports it has ended.

package main

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies which side of a duel a participant plays.
type Role string

const (
	RoleSetter  Role = "setter"
	RoleGuesser Role = "guesser"
	RoleSystem  Role = "system"
)

type turnState int

const (
	awaitingWord turnState = iota
	awaitingQuestion
	awaitingAnswer
)

type sessionStatus int

const (
	statusSetup sessionStatus = iota
	statusActive
	statusEnded
)

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	id      string
	setter  *Client
	guesser *Client

	secretWord string
	turn       turnState
	status     sessionStatus
	transcript []Message

	createdAt  time.Time
	startedAt  time.Time
	lastActive time.Time
}

// normalizeWord trims and case-folds text for word comparison.
func normalizeWord(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (s *Session) opponent(c *Client) *Client {
	switch c {
	case s.setter:
		return s.guesser
	case s.guesser:
		return s.setter
	}
	return nil
}

func (s *Session) broadcast(msg any) {
	s.setter.trySend(msg)
	s.guesser.trySend(msg)
}

func (s *Session) appendMessage(role Role, text string, now time.Time) Message {
	m := Message{
		Role:      role,
		Text:      text,
		Timestamp: now,
	}
	s.transcript = append(s.transcript, m)
	return m
}

// commitWord stores the normalized secret word and activates the session.
// Only the setter may commit, and only once.
func (s *Session) commitWord(cfg *Config, c *Client, word string, now time.Time) {
	if s.status != statusSetup || c != s.setter {
		return
	}

	word = normalizeWord(word)
	if word == "" {
		return
	}

	s.secretWord = word
	s.startedAt = now
	s.lastActive = now
	s.status = statusActive
	s.turn = awaitingQuestion

	s.broadcast(GameStartedMessage{
		Type:    "game-started",
		Message: fmt.Sprintf("Game started! The guesser has %.0f seconds to find the word.", cfg.guessTime.Seconds()),
	})
}

// ask records the guesser's question and hands the turn to the setter.
func (s *Session) ask(c *Client, text string, now time.Time) {
	if s.status != statusActive || s.turn != awaitingQuestion || c != s.guesser {
		return
	}

	m := s.appendMessage(RoleGuesser, text, now)
	s.turn = awaitingAnswer
	s.lastActive = now

	s.broadcast(newMessageEvent(m))
	s.setter.trySend(QuestionPendingMessage{
		Type: "question-pending",
		Text: text,
	})
}

// answer records the setter's reply and hands the turn back to the guesser.
func (s *Session) answer(c *Client, text string, now time.Time) {
	if s.status != statusActive || s.turn != awaitingAnswer || c != s.setter {
		return
	}

	m := s.appendMessage(RoleSetter, text, now)
	s.turn = awaitingQuestion
	s.lastActive = now

	s.broadcast(newMessageEvent(m))
	s.guesser.trySend(AnswerReceivedMessage{Type: "answer-received"})
}

// guess compares the normalized text against the secret word. A guess may
// arrive in either turn state and never consumes the question/answer turn.
// Returns true when the guess was correct and the session has ended.
func (s *Session) guess(c *Client, text string, now time.Time) bool {
	if s.status != statusActive || c != s.guesser {
		return false
	}

	s.lastActive = now
	norm := normalizeWord(text)

	// A blank guess never matches, even if the stored word were blank.
	if norm != "" && norm == s.secretWord {
		s.status = statusEnded
		s.broadcast(GameEndedMessage{
			Type:        "game-ended",
			Won:         true,
			Word:        s.secretWord,
			TimeElapsed: int(now.Sub(s.startedAt).Seconds()),
		})
		return true
	}

	// Wrong guess: restate it as a question, followed by the setter's
	// implicit "No", in that order.
	q := s.appendMessage(RoleGuesser, fmt.Sprintf("Is it %q?", text), now)
	no := s.appendMessage(RoleSetter, "No", now)
	s.broadcast(newMessageEvent(q))
	s.broadcast(newMessageEvent(no))

	return false
}

// expire ends an active session after the client-side countdown ran out.
// Either participant may deliver the signal. Returns true when the session
// has ended.
func (s *Session) expire(cfg *Config) bool {
	if s.status != statusActive {
		return false
	}

	s.status = statusEnded
	s.broadcast(GameEndedMessage{
		Type:        "game-ended",
		Won:         false,
		Word:        s.secretWord,
		TimeElapsed: int(cfg.guessTime.Seconds()),
	})

	return true
}

// dropParticipant ends the session because c went away, notifying only the
// remaining participant. Returns true when the session has ended.
func (s *Session) dropParticipant(c *Client) bool {
	if s.status == statusEnded {
		return false
	}

	s.status = statusEnded
	if opp := s.opponent(c); opp != nil {
		opp.trySend(OpponentDisconnectedMessage{Type: "opponent-disconnected"})
	}

	return true
}
