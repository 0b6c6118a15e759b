// Package job defines the job entity, its state machine, and the store
// contract the orchestration engine persists through.
//
// # Job Entity
//
// A [Job] represents a persisted unit of asynchronous work. It carries a
// Kind selecting the strategy that executes it, an opaque JSON Config the
// strategy interprets, and progresses through a state machine:
//
//	pending → running → completed
//	pending → running → failed
//	pending → running → cancelled
//	failed  → pending   (explicit restart only)
//
// completed and cancelled are terminal. Kind and Priority are immutable
// after creation.
//
// # Results
//
// A [Result] is produced once per successful run. It references its owning
// job, holds strategy-specific data and statistics, and points at the stored
// artifact. Results are never mutated and are deleted together with their
// owning job.
//
// # Store
//
// [Store] is the persistence contract. Every operation is atomic per call;
// no transactional guarantee spans multiple calls. NextPending orders the
// backlog by priority (descending) then creation time (ascending), which is
// the only ordering the drainer relies on.
package job
