/*
Package ports defines the driven ports (interfaces) of the canvas engine.

These interfaces decouple the graph, the execution controller and the sync
outbox from the remote services and storage backends they talk to.

# Key Interfaces

  - JobService: enqueues, polls and cancels remote generation jobs.
  - NodeSync: persists node mutations to the remote node service.
  - OutboxStore: durable queue of node patches whose sync is pending retry.
  - DistributedLocker: cross-replica mutual exclusion for executions and flushes.
*/
package ports
