package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"minepool-gamification/pkg/config"
	"minepool-gamification/pkg/task"
)

const (
	TaskBadgeEarned  = "notify:badge_earned"
	TaskXPGained     = "notify:xp_gained"
	TaskLevelUp      = "notify:level_up"
	TaskStreakUpdate = "notify:streak_update"
)

type envelope struct {
	UserID  string `json:"user_id"`
	Payload any    `json:"payload"`
}

// AsynqNotifier enqueues notification tasks for the push transport workers.
type AsynqNotifier struct {
	enqueuer task.Enqueuer
	timeout  time.Duration
}

type AsynqParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Config   *config.Config
}

func NewAsynqNotifier(p AsynqParams) Notifier {
	return &AsynqNotifier{
		enqueuer: p.Enqueuer,
		timeout:  p.Config.Notify.Timeout,
	}
}

var Module = fx.Module("notify",
	fx.Provide(NewAsynqNotifier),
)

func (n *AsynqNotifier) BadgeEarned(ctx context.Context, userID string, event BadgeEarnedEvent) {
	n.emit(ctx, TaskBadgeEarned, userID, event)
}

func (n *AsynqNotifier) XPGained(ctx context.Context, userID string, event XPGainedEvent) {
	n.emit(ctx, TaskXPGained, userID, event)
}

func (n *AsynqNotifier) LevelUp(ctx context.Context, userID string, event LevelUpEvent) {
	n.emit(ctx, TaskLevelUp, userID, event)
}

func (n *AsynqNotifier) StreakUpdate(ctx context.Context, userID string, event StreakUpdateEvent) {
	n.emit(ctx, TaskStreakUpdate, userID, event)
}

func (n *AsynqNotifier) emit(ctx context.Context, taskType, userID string, payload any) {
	body, err := json.Marshal(envelope{UserID: userID, Payload: payload})
	if err != nil {
		zap.L().Error("failed to marshal notification", zap.String("task_type", taskType), zap.Error(err))
		return
	}

	// detach from the caller's context; the producing transaction has already
	// committed and must not be tied to notification delivery
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if _, err := n.enqueuer.Enqueue(emitCtx, asynq.NewTask(taskType, body), asynq.Queue("low")); err != nil {
		zap.L().Warn("notification enqueue failed",
			zap.String("task_type", taskType),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
