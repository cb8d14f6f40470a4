// This file documents the concurrency model this package promises:
// Scheduler.Run never spawns a goroutine per core. Exactly one
// core's Interpreter.Step call is in flight at any instant; device and
// memory-fabric state is therefore safe to mutate without locking, as long
// as nothing outside this package starts its own goroutines against the
// same state. Alarms fire synchronously from within Run's loop, between two
// cores' quanta, never concurrently with a Step call.
package sched
