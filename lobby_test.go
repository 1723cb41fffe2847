package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLobby fixes the coin flip so the first-queued connection always
// becomes the setter, and pins the clock to a mutable instant.
func newTestLobby() (*Lobby, *time.Time) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := newLobby(testConfig())
	l.coin = func() bool { return true }
	l.now = func() time.Time { return now }
	return l, &now
}

// pair registers both connections and matches them; a becomes the setter.
func pair(t *testing.T, l *Lobby, a, b *Client) *Session {
	t.Helper()

	l.handleRegister(a)
	l.handleRegister(b)
	l.handleFindMatch(a)
	l.handleFindMatch(b)

	s, ok := l.byConn[a.connID]
	require.True(t, ok)
	require.Same(t, a, s.setter)
	require.Same(t, b, s.guesser)

	drain(a)
	drain(b)
	return s
}

// assertNeverQueuedAndMatched checks that no connection appears in the
// waiting queue and the session directory at the same time.
func assertNeverQueuedAndMatched(t *testing.T, l *Lobby) {
	t.Helper()
	for _, w := range l.waiting {
		_, ok := l.byConn[w.connID]
		assert.False(t, ok, "connection %s is queued and in a session", w.connID)
	}
}

func TestMatchmaking(t *testing.T) {
	l, _ := newTestLobby()
	a := newTestClient()
	b := newTestClient()
	l.handleRegister(a)
	l.handleRegister(b)

	l.handleFindMatch(a)
	msgs := drain(a)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(WaitingMessage)
	require.True(t, ok)

	// Repeated find-match while queued is a no-op.
	l.handleFindMatch(a)
	assert.Len(t, l.waiting, 1)
	assert.Empty(t, drain(a))

	l.handleFindMatch(b)

	aMsgs := drain(a)
	bMsgs := drain(b)
	require.Len(t, aMsgs, 1)
	require.Len(t, bMsgs, 1)

	aFound, ok := aMsgs[0].(MatchFoundMessage)
	require.True(t, ok)
	bFound, ok := bMsgs[0].(MatchFoundMessage)
	require.True(t, ok)

	assert.Equal(t, aFound.GameID, bFound.GameID)
	assert.Equal(t, RoleSetter, aFound.Role)
	assert.Equal(t, RoleGuesser, bFound.Role)

	assert.Empty(t, l.waiting)
	assert.Len(t, l.sessions, 1)
	assertNeverQueuedAndMatched(t, l)

	// find-match from a matched connection is ignored.
	l.handleFindMatch(a)
	assert.Empty(t, l.waiting)
	assert.Len(t, l.sessions, 1)
	assert.Empty(t, drain(a))
}

func TestQuestionAnswerFlow(t *testing.T) {
	l, _ := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	s := pair(t, l, setter, guesser)

	l.handleSetWord(setter, "Elephant")
	require.Equal(t, statusActive, s.status)
	drain(setter)
	drain(guesser)

	l.handleAsk(guesser, "Is it an animal?")

	var pending bool
	for _, m := range drain(setter) {
		if _, ok := m.(QuestionPendingMessage); ok {
			pending = true
		}
	}
	require.True(t, pending)

	l.handleAnswer(setter, "Yes")

	var received bool
	for _, m := range drain(guesser) {
		if _, ok := m.(AnswerReceivedMessage); ok {
			received = true
		}
	}
	require.True(t, received)

	require.Len(t, s.transcript, 2)
	assert.Equal(t, RoleGuesser, s.transcript[0].Role)
	assert.Equal(t, RoleSetter, s.transcript[1].Role)
}

func TestCorrectGuessTearsDown(t *testing.T) {
	l, now := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	s := pair(t, l, setter, guesser)

	l.handleSetWord(setter, "Elephant")
	drain(setter)
	drain(guesser)

	*now = now.Add(30 * time.Second)
	l.handleGuess(guesser, "elephant")

	for _, c := range []*Client{setter, guesser} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		end, ok := msgs[0].(GameEndedMessage)
		require.True(t, ok)
		assert.True(t, end.Won)
		assert.Equal(t, "elephant", end.Word)
		assert.Equal(t, 30, end.TimeElapsed)
	}

	assert.Empty(t, l.sessions)
	assert.Empty(t, l.byConn)

	// Any event referencing the torn-down session is dropped silently.
	l.handleAsk(guesser, "Is it big?")
	assert.Len(t, s.transcript, 0)
	assert.Empty(t, drain(setter))
	assert.Empty(t, drain(guesser))
}

func TestDisconnectMidGame(t *testing.T) {
	l, _ := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	pair(t, l, setter, guesser)

	l.handleSetWord(setter, "Elephant")
	drain(setter)
	drain(guesser)

	l.handleDisconnect(setter)

	msgs := drain(guesser)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(OpponentDisconnectedMessage)
	require.True(t, ok)

	assert.Empty(t, l.sessions)
	assert.Empty(t, l.byConn)
	assert.NotContains(t, l.clients, setter)

	// A second disconnect produces no further teardown or broadcast.
	l.handleDisconnect(setter)
	assert.Empty(t, drain(guesser))
}

func TestDisconnectDuringSetup(t *testing.T) {
	l, _ := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	pair(t, l, setter, guesser)

	l.handleDisconnect(guesser)

	msgs := drain(setter)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(OpponentDisconnectedMessage)
	require.True(t, ok)
	assert.Empty(t, l.sessions)
}

func TestExpireIsIdempotent(t *testing.T) {
	l, _ := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	s := pair(t, l, setter, guesser)

	l.handleSetWord(setter, "Elephant")
	l.handleAsk(guesser, "Is it an animal?")
	require.Equal(t, awaitingAnswer, s.turn)
	drain(setter)
	drain(guesser)

	l.handleExpire(guesser)

	for _, c := range []*Client{setter, guesser} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		end, ok := msgs[0].(GameEndedMessage)
		require.True(t, ok)
		assert.False(t, end.Won)
		assert.Equal(t, 180, end.TimeElapsed)
	}

	// The pending answer no longer has any effect.
	l.handleAnswer(setter, "Yes")
	assert.Empty(t, drain(guesser))
	assert.Len(t, s.transcript, 1)

	// A duplicate expiry signal misses the directory and is dropped.
	l.handleExpire(setter)
	assert.Empty(t, drain(setter))
	assert.Empty(t, drain(guesser))
}

func TestDisconnectWhileQueued(t *testing.T) {
	l, _ := newTestLobby()
	a := newTestClient()
	b := newTestClient()
	l.handleRegister(a)
	l.handleRegister(b)

	l.handleFindMatch(a)
	require.Len(t, l.waiting, 1)

	l.handleDisconnect(a)
	assert.Empty(t, l.waiting)

	// Removal is idempotent.
	l.handleDisconnect(a)
	assert.Empty(t, l.waiting)

	// The departed connection can no longer be matched.
	l.handleFindMatch(b)
	msgs := drain(b)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(WaitingMessage)
	assert.True(t, ok)
}

func TestWrongGuessKeepsSessionAlive(t *testing.T) {
	l, _ := newTestLobby()
	setter := newTestClient()
	guesser := newTestClient()
	s := pair(t, l, setter, guesser)

	l.handleSetWord(setter, "Elephant")
	drain(setter)
	drain(guesser)

	l.handleGuess(guesser, "tiger")

	assert.Len(t, l.sessions, 1)
	assert.Equal(t, statusActive, s.status)
	require.Len(t, s.transcript, 2)
	assert.Equal(t, `Is it "tiger"?`, s.transcript[0].Text)
	assert.Equal(t, "No", s.transcript[1].Text)
}
