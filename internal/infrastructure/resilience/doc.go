/*
Package resilience provides per-host circuit breakers for remote update sources.

# Overview

A remote that keeps failing should not be hammered by every scheduled check
and every retry attempt. Each host gets its own Breaker; after enough
consecutive failures the breaker opens and calls fail fast with
ErrCircuitOpen until the cool-down elapses.

Errors that say nothing about the health of the remote, such as a 404 or a
cancelled context, are excluded through Settings.IsSuccessful.

# Usage

	breakers := resilience.NewGroup(resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("breaker", zap.String("host", name), zap.Stringer("to", to))
		},
	})

	err := breakers.For(host).Do(ctx, func(ctx context.Context) error {
		return fetch(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
