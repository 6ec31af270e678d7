package payout

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"studiopay/pkg/errutil"
)

const TaskProjectPayoutUnlock = "payout:unlock"

type UnlockPayload struct {
	ProjectID string `json:"project_id"`
}

// NewUnlockTask builds the background task settling a completed project.
func NewUnlockTask(projectID string) (*asynq.Task, error) {
	payload, err := json.Marshal(UnlockPayload{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectPayoutUnlock, payload), nil
}

type TaskHandler struct {
	unlocker *Service
}

type TaskHandlerParams struct {
	fx.In
	Unlocker *Service
}

func NewTaskHandler(p TaskHandlerParams) *TaskHandler {
	return &TaskHandler{unlocker: p.Unlocker}
}

// HandleProjectPayoutUnlock runs the unlock for the project named in the
// payload. The unlock itself is idempotent, so a redelivered task lands on
// the recorded totals; only transient failures are surfaced for retry.
func (h *TaskHandler) HandleProjectPayoutUnlock(ctx context.Context, t *asynq.Task) error {
	var payload UnlockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid unlock payload", zap.Error(err))
		return asynq.SkipRetry
	}

	summary, err := h.unlocker.UnlockProjectPayouts(ctx, payload.ProjectID)
	if err != nil {
		var baseErr errutil.BaseError
		if errors.As(err, &baseErr) && baseErr.Code == errutil.StatusNotFound {
			zap.L().Error("unlock task dropped",
				zap.String("project_id", payload.ProjectID),
				zap.Error(err),
			)
			return asynq.SkipRetry
		}
		return err
	}

	zap.L().Info("unlock task completed",
		zap.String("project_id", summary.ProjectID),
		zap.Int("unlocked_count", summary.UnlockedCount),
	)
	return nil
}
