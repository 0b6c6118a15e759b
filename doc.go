// Package quarry provides an embeddable orchestration engine for long-running
// extraction and transformation jobs. Jobs are persisted in a store, drained
// from the backlog in priority order under a concurrency ceiling, executed
// against pluggable per-kind strategies, and support cooperative cancellation
// and crash recovery.
//
// Quarry is designed as a library, not a service. Import it, configure a
// store and an artifact store, register strategies, and start the engine.
//
// # Quick Start
//
//	reg := strategy.NewRegistry(
//	    extract.NewFetch(artifacts, extract.FetchConfig{}),
//	    transform.NewText(artifacts, "processed"),
//	)
//	eng := engine.New(store, artifacts, reg,
//	    engine.WithConcurrency(5),
//	    engine.WithPollInterval(2*time.Second),
//	)
//	eng.Start(ctx)
//
// # Architecture
//
// The engine is split along component boundaries: the job package defines the
// entity, state machine, and store contract; the strategy package defines the
// pluggable execution interface and registry; the supervisor package owns the
// active-execution map and the cancellation set; the drainer package runs the
// single polling loop that feeds pending work to the supervisor.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package quarry
