package router

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"goalseek/internal/calc"
	"goalseek/internal/intervention"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Router parses inbound protocol frames, dispatches them, and formats the
// outbound frames. Side-effecting only through sends on connections.
// ARCHITECTURAL DISCOVERY: Every in-session failure converts to an error
// frame with a stable code; nothing a single message does may evict the
// connection or disturb other connections
type Router struct {
	invoker *calc.Invoker
	broker  *intervention.Broker
}

// NewRouter creates a new message router
func NewRouter(invoker *calc.Invoker, broker *intervention.Broker) *Router {
	return &Router{
		invoker: invoker,
		broker:  broker,
	}
}

// Route processes one inbound frame for a connection.
// A parse failure is tolerated per-message: the client gets an error frame
// and the connection stays open.
func (r *Router) Route(conn interfaces.Connection, data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.sendError(conn, "", types.ErrCodeInvalidMessage, "Invalid JSON")
		return
	}

	switch env.Type {
	case types.MessageTypeCalculate:
		r.handleCalculate(conn, &env)
	case types.MessageTypeInterventionResponse:
		r.handleInterventionResponse(conn, &env)
	case types.MessageTypeCancel:
		r.handleCancel(conn, &env)
	default:
		r.sendError(conn, env.CorrelationID, types.ErrCodeUnknownMessageType, "Unknown message type: "+env.Type)
	}
}

// handleCalculate runs the calculation and either releases the result or
// parks it behind a fresh intervention
func (r *Router) handleCalculate(conn interfaces.Connection, env *types.Envelope) {
	var req types.CalcRequest
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			r.sendError(conn, env.CorrelationID, types.ErrCodeInvalidMessage, "Invalid calculate payload")
			return
		}
	}

	opts := interfaces.CalcOptions{
		CorrelationID: env.CorrelationID,
		EmitProgress: func(p *types.ProgressInfo) {
			r.send(conn, &types.Envelope{
				Type:          types.MessageTypeProgress,
				CorrelationID: env.CorrelationID,
				Progress:      p,
			})
		},
	}

	result, verdict, err := r.invoker.Invoke(context.Background(), &req, opts)
	if err != nil {
		r.sendError(conn, env.CorrelationID, types.ErrCodeCalculationError, err.Error())
		return
	}

	if verdict.Needed {
		id := r.broker.Create(conn, env.CorrelationID, "", &req, result, verdict)
		r.send(conn, &types.Envelope{
			Type:          types.MessageTypeInterventionRequired,
			CorrelationID: env.CorrelationID,
			Intervention: &types.InterventionDetail{
				ID:          id,
				Type:        verdict.Type,
				Reason:      verdict.Reason,
				Calculation: result,
			},
		})
		return
	}

	r.send(conn, &types.Envelope{
		Type:          types.MessageTypeCompleted,
		CorrelationID: env.CorrelationID,
		Result:        result,
	})
}

// handleInterventionResponse resolves a pending intervention over the
// in-band channel using the sender's identity as the requester
func (r *Router) handleInterventionResponse(conn interfaces.Connection, env *types.Envelope) {
	var payload types.InterventionResponsePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			r.sendError(conn, env.CorrelationID, types.ErrCodeInvalidMessage, "Invalid intervention_response payload")
			return
		}
	}

	resolved, err := r.broker.Resolve(payload.InterventionID, conn.Identity(), payload.Choice, payload.Reason)
	if err != nil {
		switch {
		case errors.Is(err, intervention.ErrNotFound), errors.Is(err, intervention.ErrExpired):
			// One caller-visible code for both: the distinction leaks timing
			r.sendError(conn, env.CorrelationID, types.ErrCodeInterventionExpired, "Intervention not found or expired")
		case errors.Is(err, intervention.ErrNotOwner):
			r.sendError(conn, env.CorrelationID, types.ErrCodeUnauthorized, "Intervention belongs to another user")
		default:
			r.sendError(conn, env.CorrelationID, types.ErrCodeInternalError, err.Error())
		}
		return
	}

	r.send(conn, &types.Envelope{
		Type:           types.MessageTypeInterventionAcknowledged,
		CorrelationID:  env.CorrelationID,
		InterventionID: payload.InterventionID,
		Choice:         payload.Choice,
	})

	// Releasing the held result goes to the OWNER of the intervention, which
	// for the in-band path is normally the same socket. The owner may have
	// disconnected: push failure is a handled case, not an error.
	if payload.Choice == types.ChoiceProceed {
		if err := resolved.Owner.WriteJSON(&types.Envelope{
			Type:          types.MessageTypeCompleted,
			CorrelationID: resolved.CorrelationID,
			Result:        resolved.Result,
		}); err != nil {
			log.Printf("Failed to deliver completed frame to %s: %v", resolved.OwnerUserID, err)
		}
	}
}

// handleCancel removes any pending intervention for the correlation id.
// The reply is unconditional: cancellation is idempotent to the caller.
// An in-flight calculation awaiting the calculator is not aborted.
func (r *Router) handleCancel(conn interfaces.Connection, env *types.Envelope) {
	r.broker.CancelByCorrelation(env.CorrelationID)
	r.send(conn, &types.Envelope{
		Type:          types.MessageTypeCancelled,
		CorrelationID: env.CorrelationID,
	})
}

func (r *Router) send(conn interfaces.Connection, env *types.Envelope) {
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("Failed to send %s frame: %v", env.Type, err)
	}
}

func (r *Router) sendError(conn interfaces.Connection, correlationID, code, message string) {
	r.send(conn, &types.Envelope{
		Type:          types.MessageTypeError,
		CorrelationID: correlationID,
		Code:          code,
		Message:       message,
	})
}
