// Package outbox implements the optimistic remote sync of node edits.
//
// Local edits are applied to the graph immediately; the outbox then delivers
// them to the node persistence service on a best-effort basis. A failure never
// rolls the local change back. Instead the patch is stored, the node is
// flagged unsynced, and delivery is retried with exponential backoff.
package outbox
