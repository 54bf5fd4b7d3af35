// Package core provides the internal implementation of the prealloc pool.
// It contains the Manager (state machine with two-phase initialization and
// parallel shutdown), the Pool (slot table, FIFO handout of warm workers and
// background replenishment with backoff) and Slot (one worker process and its
// warm-up bookkeeping).
package core
