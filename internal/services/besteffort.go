package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/engine/pkg/logger"
)

// bestEffort runs fn with a bounded context and absorbs any failure,
// including panics. It is the single dispatch point for side effects whose
// failure must never fail or roll back the operation that triggered them:
// automation evaluation, notification sends, pricing-learning hooks,
// deviation checks. Errors are logged for operators and otherwise invisible.
func bestEffort(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("best-effort call panicked",
				zap.String("op", name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		logger.L().Warn("best-effort call failed",
			zap.String("op", name),
			zap.Error(err),
		)
	}
}
