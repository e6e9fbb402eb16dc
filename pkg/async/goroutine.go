package async

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/observability"
)

// SafeGo runs fn in a goroutine under a timeout derived from parentCtx.
// Errors and panics are logged with taskName. The returned channel is
// closed when fn has returned.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger logrus.FieldLogger, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer observability.RecoverPanic(logger, taskName)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
	return done
}
