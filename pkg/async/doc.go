// Package async runs background tasks with panic recovery, a timeout and
// structured error logging.
//
//	async.SafeGo(ctx, 30*time.Second, "import acct-1.json", logger, func(ctx context.Context) error {
//		return watcher.Process(ctx, path)
//	})
package async
