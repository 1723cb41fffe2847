// Word Duel lobby
//
// The Lobby owns every mutable collection of the game: the set of live
// connections, the FIFO queue of connections waiting for an opponent, and
// the session directory (session id → Session, connection id → Session).
// All mutations are serialized through run(), which services the register,
// unregister, and event channels one at a time; handlers additionally take
// the lobby mutex so the reaper and tests can inspect state safely.
//
// Teardown removes both connection mappings and the session entry under a
// single lock acquisition. Any later event referencing a torn-down session
// misses the directory lookup and is dropped.

package main

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type clientEvent struct {
	client *Client
	msg    ClientMessage
}

type Lobby struct {
	register   chan *Client
	unregister chan *Client
	events     chan clientEvent

	mu       sync.RWMutex
	clients  map[*Client]bool
	waiting  []*Client
	sessions map[string]*Session
	byConn   map[string]*Session

	cfg  *Config
	coin func() bool
	now  func() time.Time
}

func newLobby(cfg *Config) *Lobby {
	return &Lobby{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan clientEvent),
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]*Session),
		byConn:     make(map[string]*Session),
		cfg:        cfg,
		coin:       coinFlip,
		now:        time.Now,
	}
}

// coinFlip returns an unbiased bit from crypto/rand.
func coinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return b[0]&1 == 1
}

func (l *Lobby) run() {
	for {
		select {
		case c := <-l.register:
			l.handleRegister(c)

		case c := <-l.unregister:
			l.handleDisconnect(c)

		case ev := <-l.events:
			l.dispatch(ev)
		}
	}
}

func (l *Lobby) dispatch(ev clientEvent) {
	switch ev.msg.Type {
	case "find-match":
		l.handleFindMatch(ev.client)
	case "set-word":
		l.handleSetWord(ev.client, ev.msg.Text)
	case "ask-question":
		l.handleAsk(ev.client, ev.msg.Text)
	case "answer":
		l.handleAnswer(ev.client, ev.msg.Text)
	case "make-guess":
		l.handleGuess(ev.client, ev.msg.Text)
	case "time-expired":
		l.handleExpire(ev.client)
	default:
		// ignore unknown types
	}
}

func (l *Lobby) handleRegister(c *Client) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clients[c] = true

	logf(l.cfg, "DUEL: Connection %s joined", c.connID)
}

// handleFindMatch pairs the caller with the oldest waiting connection, or
// queues it when nobody is waiting. A connection already queued or already
// in a session is ignored.
func (l *Lobby) handleFindMatch(c *Client) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byConn[c.connID]; ok {
		return
	}
	for _, w := range l.waiting {
		if w == c {
			return
		}
	}

	logf(l.cfg, "DUEL: Connection %s looking for a match", c.connID)

	if len(l.waiting) == 0 {
		l.waiting = append(l.waiting, c)
		c.trySend(WaitingMessage{Type: "waiting"})
		return
	}

	opponent := l.waiting[0]
	l.waiting = l.waiting[1:]

	setter, guesser := c, opponent
	if l.coin() {
		setter, guesser = opponent, c
	}

	now := l.now()
	s := &Session{
		id:         uuid.NewString(),
		setter:     setter,
		guesser:    guesser,
		createdAt:  now,
		lastActive: now,
	}

	l.sessions[s.id] = s
	l.byConn[setter.connID] = s
	l.byConn[guesser.connID] = s

	setter.trySend(MatchFoundMessage{Type: "match-found", GameID: s.id, Role: RoleSetter})
	guesser.trySend(MatchFoundMessage{Type: "match-found", GameID: s.id, Role: RoleGuesser})

	logf(l.cfg, "DUEL: Matched %s (setter) with %s (guesser) in game %s", setter.connID, guesser.connID, s.id)
}

func (l *Lobby) handleSetWord(c *Client, word string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	s.commitWord(l.cfg, c, word, l.now())
}

func (l *Lobby) handleAsk(c *Client, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	s.ask(c, text, l.now())
}

func (l *Lobby) handleAnswer(c *Client, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	s.answer(c, text, l.now())
}

func (l *Lobby) handleGuess(c *Client, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	if s.guess(c, text, l.now()) {
		l.teardownLocked(s)
		logf(l.cfg, "DUEL: Game %s won by %s", s.id, c.connID)
	}
}

func (l *Lobby) handleExpire(c *Client) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	if s.expire(l.cfg) {
		l.teardownLocked(s)
		logf(l.cfg, "DUEL: Game %s timed out", s.id)
	}
}

// handleDisconnect is the cleanup trigger and must always make progress:
// it drops the connection from the registry and the waiting queue, then
// ends any session the connection belonged to.
func (l *Lobby) handleDisconnect(c *Client) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[c]; ok {
		delete(l.clients, c)
		close(c.send)
		logf(l.cfg, "DUEL: Connection %s left", c.connID)
	}

	dst := l.waiting[:0]
	for _, w := range l.waiting {
		if w != c {
			dst = append(dst, w)
		}
	}
	l.waiting = dst

	s, ok := l.byConn[c.connID]
	if !ok {
		return
	}

	if s.dropParticipant(c) {
		l.teardownLocked(s)
		logf(l.cfg, "DUEL: Game %s abandoned by %s", s.id, c.connID)
	}
}

// teardownLocked assumes l.mu is already held.
func (l *Lobby) teardownLocked(s *Session) {
	delete(l.byConn, s.setter.connID)
	delete(l.byConn, s.guesser.connID)
	delete(l.sessions, s.id)
}

// reaperLoop periodically closes the connections of sessions that have
// been idle longer than the configured timeout; the normal disconnect
// path then reclaims them.
func (l *Lobby) reaperLoop() {
	ticker := time.NewTicker(l.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-l.cfg.sessionTimeout)

		var stale []*Client

		l.mu.RLock()
		for _, s := range l.sessions {
			if s.lastActive.Before(cutoff) {
				stale = append(stale, s.setter, s.guesser)
			}
		}
		l.mu.RUnlock()

		for _, c := range stale {
			if c.conn != nil {
				_ = c.conn.Close()
			}
		}
	}
}
