package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// listenRetryDelay is the pause before reconnecting a broken change feed
const listenRetryDelay = time.Second

// Listen subscribes to the change feed of the schema triggers and calls
// notify with every changed node type and every changed node below a
// search path. It reconnects on connection failures and returns when ctx
// is done.
func (t *Tree) Listen(ctx context.Context, pool *pgxpool.Pool, notify func(path string)) error {
	for {
		err := t.listen(ctx, pool, notify)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.WarnContext(ctx, "content change feed interrupted", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(listenRetryDelay):
		}
	}
}

func (t *Tree) listen(ctx context.Context, pool *pgxpool.Pool, notify func(path string)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
		return handlePostgresError("listen", err)
	}
	t.logger.DebugContext(ctx, "listening for content changes", "channel", ChangeChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		if t.isDefinitionChange(notification.Payload) {
			notify(notification.Payload)
		}
	}
}
