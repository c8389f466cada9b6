/*
Package canvas is a node-graph engine for composing AI-assisted creative generation pipelines.

A board holds typed nodes (story, fashion and moodboard generators, prompts, reroutes) whose
output ports are wired to the input ports of other nodes. The engine enforces which connections
are legal, runs each node as an asynchronous remote job, polls it to completion and reports
structural problems of the board as a validation result.

# Architecture

The Session is the façade a presentation layer talks to. It aggregates:

  - the graph model (pkg/graph), the single source of truth for nodes and edges;
  - the validation engine (pkg/validation), re-run after every change;
  - the execution controller (pkg/execution), one polling task per running node;
  - the sync outbox (pkg/outbox), which debounces user edits to the remote node service and
    retries failed sends with backoff while flagging the node as unsynced.

Remote services are reached through the interfaces of pkg/ports, with in-memory, HTTP, Redis and
SQLite adapters under pkg/adapters.

# Usage

	jobs := memory.NewJobService()
	s, err := canvas.New(jobs, canvas.WithNodeSync(remote.NewNodeSync("https://api.example.com")))
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close(context.Background())

	story, _ := s.CreateNode(ctx, nodetype.Spec{Type: nodetype.StoryGenesis})
	refiner, _ := s.CreateNode(ctx, nodetype.Spec{Type: nodetype.StoryRefiner})
	_, err = s.Connect(ctx, domain.Edge{
		SourceNodeID: story.ID, SourcePortID: "story",
		TargetNodeID: refiner.ID, TargetPortID: "story",
	})

	updates, stop := s.Subscribe()
	defer stop()
	jobID, err := s.Execute(ctx, story.ID)
*/
package canvas
