// Package intake consumes pool and application events from the task queue
// and feeds them to the trigger evaluator and streak tracker. Delivery is
// at-least-once; everything downstream is idempotent, so redelivery is safe.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"minepool-gamification/services/streak"
	"minepool-gamification/services/trigger"
)

const (
	TypeShareAccepted = "mining:share_accepted"
	TypeBlockFound    = "mining:block_found"
	TypeAppEvent      = "app:event"
)

type ShareAcceptedPayload struct {
	UserID        string  `json:"user_id"`
	Difficulty    float64 `json:"difficulty"`
	TotalAccepted int64   `json:"total_accepted"`
}

type BlockFoundPayload struct {
	UserID string `json:"user_id"`
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

type AppEventPayload struct {
	UserID   string         `json:"user_id"`
	EventKey string         `json:"event_key"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Handler struct {
	triggers *trigger.Service
	streaks  *streak.Service
}

type HandlerParams struct {
	fx.In
	Triggers *trigger.Service
	Streaks  *streak.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		triggers: p.Triggers,
		streaks:  p.Streaks,
	}
}

func (h *Handler) HandleShareAccepted(ctx context.Context, t *asynq.Task) error {
	var payload ShareAcceptedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed share payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" {
		return fmt.Errorf("share payload missing user_id: %w", asynq.SkipRetry)
	}

	// evaluate before recording: evaluation is idempotent under redelivery,
	// week counters are not, so they must only advance once the rest succeeded
	awarded, err := h.triggers.EvaluateShare(ctx, payload.UserID, payload.TotalAccepted, payload.Difficulty)
	if err != nil {
		return err
	}
	if err := h.streaks.RecordWeekActivity(ctx, payload.UserID, time.Now(), 1, payload.Difficulty); err != nil {
		return err
	}
	if len(awarded) > 0 {
		zap.L().Info("share event awarded badges",
			zap.String("user_id", payload.UserID),
			zap.Strings("badges", awarded),
		)
	}
	return nil
}

func (h *Handler) HandleBlockFound(ctx context.Context, t *asynq.Task) error {
	var payload BlockFoundPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed block payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" {
		return fmt.Errorf("block payload missing user_id: %w", asynq.SkipRetry)
	}

	zap.L().Info("block found",
		zap.String("user_id", payload.UserID),
		zap.Int64("height", payload.Height),
		zap.String("hash", payload.Hash),
	)

	if _, err := h.triggers.EvaluateBlockFound(ctx, payload.UserID, payload.Height, payload.Hash); err != nil {
		return err
	}
	// finding a block is activity for the current week; recorded last because
	// the activity flag is redelivery-safe only after evaluation has succeeded
	return h.streaks.RecordWeekActivity(ctx, payload.UserID, time.Now(), 0, 0)
}

func (h *Handler) HandleAppEvent(ctx context.Context, t *asynq.Task) error {
	var payload AppEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed app event payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" || payload.EventKey == "" {
		return fmt.Errorf("app event payload missing user_id or event_key: %w", asynq.SkipRetry)
	}

	_, err := h.triggers.EvaluateNamedEvent(ctx, payload.UserID, payload.EventKey, payload.Metadata)
	return err
}

func RegisterHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(TypeShareAccepted, h.HandleShareAccepted)
	mux.HandleFunc(TypeBlockFound, h.HandleBlockFound)
	mux.HandleFunc(TypeAppEvent, h.HandleAppEvent)
}
