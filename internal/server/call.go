package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/go-commhub/internal/stats"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

var (
	ErrUnknownCall    = errors.New("unknown call")
	ErrCallInProgress = errors.New("call already in progress")
	ErrInvalidCallee  = errors.New("invalid callee")
)

type callState int

const (
	// callOffering covers the offer-sent window. Ringing is client-side
	// only: there is no callee ack on the wire, so the coordinator holds a
	// single pre-answer state.
	callOffering callState = iota
	callConnected
)

// CallSession is the ephemeral record of one call attempt between two
// identities. Sessions are never persisted; a restart drops in-progress
// calls.
type CallSession struct {
	callId    string
	callerId  string
	calleeId  string
	state     callState
	offer     json.RawMessage
	answer    json.RawMessage
	createdAt time.Time
	expire    *time.Timer
}

func (s *CallSession) otherParty(identity string) (string, bool) {
	switch identity {
	case s.callerId:
		return s.calleeId, true
	case s.calleeId:
		return s.callerId, true
	}
	return "", false
}

// pairKey identifies the unordered pair of identities in a call, for the
// one-active-call-per-pair guard.
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if x < y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

// CallCoordinator relays call-setup messages between exactly two identities
// per session and owns all call state. SDP and ICE payloads are opaque
// blobs; the coordinator performs no deduplication or validation of their
// content.
type CallCoordinator struct {
	log      zerolog.Logger
	registry *ConnectionRegistry
	stats    stats.StatsProvider
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*CallSession
	pairs    map[pairKey]string
}

func NewCallCoordinator(logger zerolog.Logger, registry *ConnectionRegistry, timeout time.Duration, st stats.StatsProvider) *CallCoordinator {
	st.RegisterMetric(stats.NumActiveCalls)

	return &CallCoordinator{
		log:      logger,
		registry: registry,
		stats:    st,
		timeout:  timeout,
		sessions: make(map[string]*CallSession),
		pairs:    make(map[pairKey]string),
	}
}

// Offer creates a CallSession and relays the offer to every connection of
// the callee. The offer is delivered best-effort: an offline callee leaves
// the session pending until the answer timeout fires.
func (cc *CallCoordinator) Offer(callerId, calleeId string, sdp json.RawMessage) (string, error) {
	if calleeId == "" || calleeId == callerId {
		return "", ErrInvalidCallee
	}

	callId, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate call id: %w", err)
	}

	key := newPairKey(callerId, calleeId)

	cc.mu.Lock()
	if _, ok := cc.pairs[key]; ok {
		cc.mu.Unlock()
		return "", ErrCallInProgress
	}

	session := &CallSession{
		callId:    callId,
		callerId:  callerId,
		calleeId:  calleeId,
		state:     callOffering,
		offer:     sdp,
		createdAt: Now(),
	}
	session.expire = time.AfterFunc(cc.timeout, func() {
		cc.expireCall(callId)
	})

	cc.sessions[callId] = session
	cc.pairs[key] = callId
	cc.mu.Unlock()

	cc.stats.Incr(stats.NumActiveCalls)
	cc.log.Info().
		Str("call_id", callId).
		Str("caller", callerId).
		Str("callee", calleeId).
		Msg("call offered")

	cc.registry.Deliver(calleeId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Offer: &CallOffer{
			CallId:   callId,
			CallerId: callerId,
			Sdp:      sdp,
		},
	})

	return callId, nil
}

// Answer records the callee's answer, transitions the session to connected
// and relays the answer to the caller. Only the callee of a pending session
// may answer.
func (cc *CallCoordinator) Answer(calleeId, callId string, sdp json.RawMessage) error {
	cc.mu.Lock()
	session, ok := cc.sessions[callId]
	if !ok || session.calleeId != calleeId || session.state != callOffering {
		cc.mu.Unlock()
		return ErrUnknownCall
	}

	session.answer = sdp
	session.state = callConnected
	session.expire.Stop()
	callerId := session.callerId
	cc.mu.Unlock()

	cc.log.Info().Str("call_id", callId).Msg("call answered")

	cc.registry.Deliver(callerId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Answer: &CallAnswer{
			CallId: callId,
			Sdp:    sdp,
		},
	})

	return nil
}

// Relay forwards an ICE candidate to the other party of the call. Duplicate
// or out-of-order candidates are forwarded as-is.
func (cc *CallCoordinator) Relay(fromId, callId string, candidate json.RawMessage) error {
	cc.mu.Lock()
	session, ok := cc.sessions[callId]
	if !ok {
		cc.mu.Unlock()
		return ErrUnknownCall
	}
	to, ok := session.otherParty(fromId)
	cc.mu.Unlock()

	if !ok {
		return ErrUnknownCall
	}

	cc.registry.Deliver(to, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Ice: &IceCandidate{
			CallId:    callId,
			Candidate: candidate,
		},
	})

	return nil
}

// End terminates the call from either party and relays a terminal event to
// the other. A decline from anyone but the callee is normalized to a
// hangup.
func (cc *CallCoordinator) End(fromId, callId, reason string) error {
	cc.mu.Lock()
	session, ok := cc.sessions[callId]
	if !ok {
		cc.mu.Unlock()
		return ErrUnknownCall
	}
	to, participant := session.otherParty(fromId)
	if !participant {
		cc.mu.Unlock()
		return ErrUnknownCall
	}

	if reason != ReasonDecline || fromId != session.calleeId {
		reason = ReasonHangup
	}

	cc.removeSessionLocked(session)
	cc.mu.Unlock()

	cc.stats.Decr(stats.NumActiveCalls)
	cc.log.Info().Str("call_id", callId).Str("reason", reason).Msg("call ended")

	cc.registry.Deliver(to, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		End: &CallEnd{
			CallId: callId,
			Reason: reason,
		},
	})

	return nil
}

// expireCall fires when no answer arrived inside the timeout window. Both
// parties are told the call timed out; the session is destroyed. Connected
// calls are never expired.
func (cc *CallCoordinator) expireCall(callId string) {
	cc.mu.Lock()
	session, ok := cc.sessions[callId]
	if !ok || session.state == callConnected {
		cc.mu.Unlock()
		return
	}

	cc.removeSessionLocked(session)
	callerId, calleeId := session.callerId, session.calleeId
	cc.mu.Unlock()

	cc.stats.Decr(stats.NumActiveCalls)
	cc.log.Info().Str("call_id", callId).Msg("call timed out")

	end := &CallEnd{CallId: callId, Reason: ReasonTimeout}
	cc.registry.Deliver(callerId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		End:         end,
	})
	cc.registry.Deliver(calleeId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		End:         end,
	})
}

func (cc *CallCoordinator) removeSessionLocked(session *CallSession) {
	session.expire.Stop()
	delete(cc.sessions, session.callId)
	delete(cc.pairs, newPairKey(session.callerId, session.calleeId))
}

// ActiveCalls returns the number of live call sessions.
func (cc *CallCoordinator) ActiveCalls() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	return len(cc.sessions)
}

// Shutdown drops all call sessions and stops their timers.
func (cc *CallCoordinator) Shutdown() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for _, session := range cc.sessions {
		session.expire.Stop()
	}
	cc.sessions = make(map[string]*CallSession)
	cc.pairs = make(map[pairKey]string)
}
