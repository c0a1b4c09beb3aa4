package types

import (
	"encoding/json"
	"time"
)

// Message type constants for the goal-seek wire protocol.
// ARCHITECTURAL DISCOVERY: Closed set of type tags keeps routing exhaustive;
// unknown tags are handled as a representable case, never a parse failure
const (
	MessageTypeCalculate                = "calculate"
	MessageTypeProgress                 = "progress"
	MessageTypeCompleted                = "completed"
	MessageTypeInterventionRequired     = "intervention_required"
	MessageTypeInterventionResponse     = "intervention_response"
	MessageTypeInterventionAcknowledged = "intervention_acknowledged"
	MessageTypeCancel                   = "cancel"
	MessageTypeCancelled                = "cancelled"
	MessageTypeConnected                = "connected"
	MessageTypeError                    = "error"
)

// WebSocket close codes (connection-level outcomes)
const (
	CloseNormal         = 1000
	CloseAuthError      = 4001
	CloseMaxConnections = 4002
	CloseInvalidMessage = 4003 // reserved: invalid frames keep the connection open
	CloseInternalError  = 4004 // reserved
)

// Stable error codes carried on error frames.
// FUNCTIONAL DISCOVERY: Clients dispatch on code, never on message text;
// message is diagnostic only and not stable across versions
const (
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeUnknownMessageType  = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeCalculationError    = "CALCULATION_ERROR"
	ErrCodeInterventionExpired = "INTERVENTION_EXPIRED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeAuthError           = "AUTH_ERROR"
	ErrCodeMaxConnections      = "MAX_CONNECTIONS"
)

// Intervention choices a resolver may submit
const (
	ChoiceProceed = "proceed"
	ChoiceAbort   = "abort"
	ChoiceModify  = "modify"
)

// Identity is the authenticated principal behind a connection or HTTP call
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ConnectionInfo is the registry's record for one live connection
type ConnectionInfo struct {
	Identity    Identity  `json:"identity"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Envelope is the wire-level message for both directions.
// ARCHITECTURAL DISCOVERY: One envelope struct with omitempty response fields
// matches the flat JSON the protocol uses instead of nested per-type bodies
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	// Response-only fields
	Code           string              `json:"code,omitempty"`
	Message        string              `json:"message,omitempty"`
	UserID         string              `json:"userId,omitempty"`
	Result         *CalcResult         `json:"result,omitempty"`
	Intervention   *InterventionDetail `json:"intervention,omitempty"`
	InterventionID string              `json:"interventionId,omitempty"`
	Choice         string              `json:"choice,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Source         string              `json:"source,omitempty"`
	Progress       *ProgressInfo       `json:"progress,omitempty"`
}

// InterventionDetail is the body of an intervention_required frame
type InterventionDetail struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Reason      string      `json:"reason"`
	Calculation *CalcResult `json:"calculation"`
}

// ProgressInfo is the body of a progress frame
type ProgressInfo struct {
	CorrelationID string  `json:"correlationId"`
	Percent       int     `json:"progress"`
	DailyTarget   float64 `json:"dailyTarget"`
	Remaining     float64 `json:"remaining"`
}

// CalcRequest is the payload of a calculate frame.
// FUNCTIONAL DISCOVERY: Blocker flags ride in on the request and are echoed
// into the result, which is where the intervention verdict reads them
type CalcRequest struct {
	Target        float64 `json:"target"`
	Period        int     `json:"period"`
	Current       float64 `json:"current"`
	Unit          string  `json:"unit,omitempty"`
	HasBlocker    bool    `json:"hasBlocker,omitempty"`
	BlockerReason string  `json:"blockerReason,omitempty"`
}

// CalcResult is the computed outcome of one goal-seek calculation
type CalcResult struct {
	CorrelationID string    `json:"correlationId"`
	Target        float64   `json:"target"`
	Period        int       `json:"period"`
	Completed     float64   `json:"completed"`
	Remaining     float64   `json:"remaining"`
	TotalDays     int       `json:"totalDays"`
	RemainingDays int       `json:"remainingDays"`
	DailyTarget   float64   `json:"dailyTarget"`
	Unit          string    `json:"unit"`
	IsCompleted   bool      `json:"isCompleted"`
	HasBlocker    bool      `json:"hasBlocker,omitempty"`
	BlockerReason string    `json:"blockerReason,omitempty"`
	CalculatedAt  time.Time `json:"calculatedAt"`
}

// InterventionVerdict is the calculator's judgement on whether a result
// may be released without a human decision
type InterventionVerdict struct {
	Needed bool   `json:"needed"`
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// InterventionResponsePayload is the payload of an intervention_response frame
type InterventionResponsePayload struct {
	InterventionID string `json:"interventionId"`
	Choice         string `json:"choice"`
	Reason         string `json:"reason,omitempty"`
}

// Goal is a persisted goal-seek target
type Goal struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"sessionId"`
	GoalType   string                 `json:"goalType"`
	Target     map[string]interface{} `json:"target"`
	Current    map[string]interface{} `json:"current"`
	Status     string                 `json:"status"`
	Phase      string                 `json:"phase"`
	ActionPlan []string               `json:"actionPlan"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// GoalLog is one persisted progress/audit entry against a goal
type GoalLog struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// InterventionRecord is the persisted trail of a raised intervention,
// distinct from the broker's in-flight pending entry
type InterventionRecord struct {
	ID         string    `json:"id"`
	GoalID     string    `json:"goalId,omitempty"`
	Type       string    `json:"type"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"` // pending, resolved, expired
	Choice     string    `json:"choice,omitempty"`
	ResolvedBy string    `json:"resolvedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ResolvedAt time.Time `json:"resolvedAt,omitzero"`
}
