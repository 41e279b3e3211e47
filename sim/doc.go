// Package sim provides the core discrete-event simulation engine for
// Byzantine-fault-tolerant consensus protocols over switched network fabrics.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: Event types that drive the simulation (QueueMessage, ProcessPayload, PollQueue, TimerExpiry)
//   - simulator.go: The event loop, (time, seq) ordering, and termination
//   - node.go: The node service discipline (FIFO ingress, busy/idle, exponential service times)
//
// # Architecture
//
// The fabric is an arena of nodes indexed by NodeID. Endpoint validators
// originate consensus messages; switches store-and-forward them along
// BFS-computed routes (routing.go). Topology constructors live in the
// topology_*.go files: clique, mesh, torus, butterfly, folded-Clos.
//
// Two consensus state machines ride on top of the fabric:
//   - ibft.go: IBFT (pre-prepare / prepare / commit / round-change)
//   - hotstuff.go: HotStuff (NEW_VIEW / PREPARE / PRE_COMMIT / COMMIT / DECIDE)
//
// runner.go ties the pieces together for multi-trial runs; trial k is
// seeded startingSeed + k*seedMultiplier so every run is reproducible.
package sim
