/*
Package tracing records lightweight spans for API requests and the outbound
calls they cause.

A trace id arrives in the X-Trace-ID header or is generated, travels in the
request context and is injected into manifest and package fetches, so a log
search for one id shows the whole transition including the app store calls.
Completed spans are written to the structured log by a background
collector.

# Usage

	tracer := tracing.New("apps", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "download")
	defer span.End(err)

	tracing.Inject(ctx, req.Header)

A nil *Tracer is valid and records nothing.
*/
package tracing
