// Package shutdown coordinates graceful process termination.
//
// Usage:
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	ctx, stop := h.NotifyContext(context.Background())
//	defer stop()
//	h.OnShutdown("storage", engine.Close)
//	<-ctx.Done()
//	err := h.Shutdown()
package shutdown
