// internal/messaging/calls.go

package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

type CallStatus string

const (
	CallCalling   CallStatus = "calling"
	CallConnected CallStatus = "connected"
	CallDeclined  CallStatus = "declined"
	CallEnded     CallStatus = "ended"
)

const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"

	EndReasonPeerDisconnected = "peer_disconnected"
)

var (
	ErrCallNotFound        = apperror.NotFound("CALL_NOT_FOUND", "call not found")
	ErrNotCallParticipant  = apperror.Forbidden("NOT_CALL_PARTICIPANT", "you are not part of this call")
	ErrCallExists          = apperror.Conflict("CALL_EXISTS", "a call with this id already exists")
	ErrCallAlreadyAnswered = apperror.Conflict("CALL_ALREADY_ANSWERED", "call was already answered")
	ErrRecipientOffline    = apperror.RecipientOffline("recipient is not online")
	ErrMissingRecipient    = apperror.Validation("INVALID_CALL_DATA", "recipientId is required")
	ErrSelfCall            = apperror.Validation("SELF_CALL", "cannot call yourself")
	ErrInvalidCallType     = apperror.Validation("INVALID_CALL_TYPE", "callType must be audio or video")
)

// ActiveCall is one call in flight. Terminal calls are not kept.
type ActiveCall struct {
	ID          string     `json:"callId"`
	CallerID    int64      `json:"callerId"`
	RecipientID int64      `json:"recipientId"`
	Status      CallStatus `json:"status"`
	Type        string     `json:"callType"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

func (c *ActiveCall) involves(userID int64) bool {
	return c.CallerID == userID || c.RecipientID == userID
}

func (c *ActiveCall) peer(userID int64) int64 {
	if c.CallerID == userID {
		return c.RecipientID
	}
	return c.CallerID
}

type OfferRequest struct {
	CallID      string
	RecipientID int64
	CallType    string
	Offer       json.RawMessage
}

// CallRelay forwards WebRTC signaling between the two sides of a call.
// Connections are located through the presence tracker.
type CallRelay struct {
	mu       sync.Mutex
	calls    map[string]*ActiveCall
	presence *PresenceTracker
	hub      *Hub
	now      func() time.Time
	logger   *zap.Logger
}

func NewCallRelay(presence *PresenceTracker, hub *Hub, logger *zap.Logger) *CallRelay {
	return &CallRelay{
		calls:    make(map[string]*ActiveCall),
		presence: presence,
		hub:      hub,
		now:      time.Now,
		logger:   logger.Named("calls"),
	}
}

// Offer starts a call and rings every connection of the recipient. No
// record is created when the recipient is offline.
func (c *CallRelay) Offer(caller *auth.Profile, req OfferRequest) (*ActiveCall, error) {
	switch {
	case req.RecipientID <= 0:
		return nil, ErrMissingRecipient
	case req.RecipientID == caller.ID:
		return nil, ErrSelfCall
	}
	if req.CallType == "" {
		req.CallType = CallTypeAudio
	}
	if req.CallType != CallTypeAudio && req.CallType != CallTypeVideo {
		return nil, ErrInvalidCallType
	}

	handles := c.presence.Lookup(req.RecipientID)
	if len(handles) == 0 {
		return nil, ErrRecipientOffline
	}

	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}

	c.mu.Lock()
	if _, exists := c.calls[req.CallID]; exists {
		c.mu.Unlock()
		return nil, ErrCallExists
	}
	call := &ActiveCall{
		ID:          req.CallID,
		CallerID:    caller.ID,
		RecipientID: req.RecipientID,
		Status:      CallCalling,
		Type:        req.CallType,
		StartTime:   c.now(),
	}
	c.calls[call.ID] = call
	snapshot := *call
	c.mu.Unlock()

	c.hub.SendTo(handles, EventCallIncoming, CallIncomingPayload{
		CallID:    call.ID,
		CallType:  call.Type,
		Offer:     req.Offer,
		Caller:    caller,
		Timestamp: utils.Now(),
	})

	c.logger.Info("call offered",
		zap.String("call_id", call.ID),
		zap.Int64("caller_id", caller.ID),
		zap.Int64("recipient_id", req.RecipientID),
		zap.String("call_type", call.Type))
	return &snapshot, nil
}

// Answer connects a ringing call and relays the answer to the caller
func (c *CallRelay) Answer(userID int64, callID string, answer json.RawMessage) error {
	c.mu.Lock()
	call, ok := c.calls[callID]
	switch {
	case !ok:
		c.mu.Unlock()
		return ErrCallNotFound
	case call.RecipientID != userID:
		c.mu.Unlock()
		return ErrNotCallParticipant
	case call.Status != CallCalling:
		c.mu.Unlock()
		return ErrCallAlreadyAnswered
	}
	call.Status = CallConnected
	callerID := call.CallerID
	c.mu.Unlock()

	c.relay(callerID, EventCallAnswer, CallSignalPayload{
		CallID:    callID,
		Answer:    answer,
		From:      userID,
		Timestamp: utils.Now(),
	})
	return nil
}

// IceCandidate relays a candidate to the other side
func (c *CallRelay) IceCandidate(userID int64, callID string, candidate json.RawMessage) error {
	peer, err := c.counterparty(userID, callID)
	if err != nil {
		return err
	}

	c.relay(peer, EventCallICECandidate, CallSignalPayload{
		CallID:    callID,
		Candidate: candidate,
		From:      userID,
		Timestamp: utils.Now(),
	})
	return nil
}

// Decline rejects a call and forgets it
func (c *CallRelay) Decline(userID int64, callID string) error {
	call, err := c.finish(userID, callID, CallDeclined)
	if err != nil {
		return err
	}

	c.relay(call.peer(userID), EventCallDecline, CallEndPayload{
		CallID:    callID,
		From:      userID,
		Timestamp: utils.Now(),
	})
	return nil
}

// End hangs up a call and reports its duration in seconds to the other side
func (c *CallRelay) End(userID int64, callID string) (*ActiveCall, error) {
	call, err := c.finish(userID, callID, CallEnded)
	if err != nil {
		return nil, err
	}

	c.relay(call.peer(userID), EventCallEnd, CallEndPayload{
		CallID:    callID,
		From:      userID,
		Duration:  duration(call),
		Timestamp: utils.Now(),
	})
	return call, nil
}

// HandleDisconnect ends every call involving the user and tells the other
// side why
func (c *CallRelay) HandleDisconnect(userID int64) {
	now := c.now()

	c.mu.Lock()
	var ended []*ActiveCall
	for id, call := range c.calls {
		if call.involves(userID) {
			call.Status = CallEnded
			call.EndTime = &now
			ended = append(ended, call)
			delete(c.calls, id)
		}
	}
	c.mu.Unlock()

	for _, call := range ended {
		recordCall(CallEnded, duration(call))
		c.relay(call.peer(userID), EventCallEnd, CallEndPayload{
			CallID:    call.ID,
			From:      userID,
			Duration:  duration(call),
			Reason:    EndReasonPeerDisconnected,
			Timestamp: utils.Now(),
		})
		c.logger.Info("call ended by disconnect",
			zap.String("call_id", call.ID),
			zap.Int64("user_id", userID))
	}
}

// ActiveCalls returns a snapshot of calls in flight
func (c *CallRelay) ActiveCalls() []ActiveCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ActiveCall, 0, len(c.calls))
	for _, call := range c.calls {
		out = append(out, *call)
	}
	return out
}

func (c *CallRelay) counterparty(userID int64, callID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok {
		return 0, ErrCallNotFound
	}
	if !call.involves(userID) {
		return 0, ErrNotCallParticipant
	}
	return call.peer(userID), nil
}

// finish moves a call to a terminal status and removes it
func (c *CallRelay) finish(userID int64, callID string, status CallStatus) (*ActiveCall, error) {
	c.mu.Lock()
	call, ok := c.calls[callID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrCallNotFound
	}
	if !call.involves(userID) {
		c.mu.Unlock()
		return nil, ErrNotCallParticipant
	}
	now := c.now()
	call.Status = status
	call.EndTime = &now
	delete(c.calls, callID)
	c.mu.Unlock()

	recordCall(status, duration(call))
	c.logger.Info("call finished",
		zap.String("call_id", callID),
		zap.String("status", string(status)),
		zap.Int64("user_id", userID))
	return call, nil
}

func (c *CallRelay) relay(userID int64, eventType string, payload interface{}) {
	handles := c.presence.Lookup(userID)
	if len(handles) == 0 {
		c.logger.Debug("call peer has no connections",
			zap.Int64("user_id", userID),
			zap.String("event", eventType))
		return
	}
	c.hub.SendTo(handles, eventType, payload)
}

func duration(call *ActiveCall) int64 {
	if call.EndTime == nil {
		return 0
	}
	return int64(call.EndTime.Sub(call.StartTime) / time.Second)
}
