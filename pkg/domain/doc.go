/*
Package domain contains the core models of the canvas engine.

It defines the entities of a creative generation board: typed Ports, Nodes with
their execution status, the Edges wiring outputs to inputs, and the reports
produced by validation. The package is kept pure and free of I/O so the graph
model, the validation engine and the execution controller can share it.

# Key Entities

  - Node: a unit of generative work with parameters, ports and an execution status.
  - Port: a typed input or output slot on a node.
  - Edge: a directed, type-checked connection between two ports.
  - GraphValidationResult: structural problems found in a graph.
  - JobRequest / JobStatusReport: the wire contract with the remote job service.
*/
package domain
