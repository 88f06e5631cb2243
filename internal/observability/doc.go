// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for filesearch.
//
// A single Logger, Metrics and Tracer are built in main from configuration and
// passed down to the API client, the batch uploader, the evaluator and the
// visualization server. Metrics live on a private registry so tests and
// multiple CLI invocations in one process never collide on registration.
//
// Context correlation:
//
//	ctx = observability.AddRequestID(ctx, uuid.NewString())
//	ctx = observability.AddStoreID(ctx, storeID)
//	logger.Info(ctx, "searching", "query", q) // includes request_id and store_id
package observability
