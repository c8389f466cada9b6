/*
Package observability provides tools for monitoring the canvas engine.

It includes Prometheus collectors fed by execution lifecycle hooks and outbox
callbacks, and a structured-logging hook set for auditing executions.
*/
package observability
