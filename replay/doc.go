// Package replay drives a recorded host-call trace against a live guest.
//
// A Session is a cursor over the trace's event sequence plus a small
// lifecycle state machine: Idle until the signature gate passes, Armed,
// Running once calls flow, and finally one of the terminal states
// Completed, Diverged, or Exhausted. Terminal states admit no retries.
// The session only matches and hands back recorded data; writing results
// and memory regions into the guest is the interceptor's job.
package replay
