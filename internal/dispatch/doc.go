// Package dispatch serializes calls to a quota-constrained upstream.
//
// A Dispatcher owns a single active slot and a FIFO backlog:
//
//   - Idle: nothing queued, no goroutine running. Submit starts one.
//   - Running: one request in flight; later submissions wait in the backlog.
//   - Delayed: the last response asked us to wait; the next task is held
//     until the retry-not-before time has passed.
//
// After each attempt a caller-supplied Verify function decides whether the
// response is accepted. Rejected tasks go to the back of the backlog and are
// tried again; transport errors fail the task straight away. Cancelling the
// context passed to Future.Wait only stops the wait, the task stays queued.
package dispatch
