// Package trace defines the persisted record of host-call boundary
// crossings and its on-disk format.
//
// A trace is an ordered sequence of events: one Entry and one Return per
// intercepted host call, with nested LibcallEntry/LibcallReturn pairs for
// canonical-ABI helper calls issued while satisfying the enclosing call.
// The first event of every trace is its Signature (format version, guest
// binary checksum, record settings, engine configuration snapshot); a
// cleanly finished trace ends with an explicit end-of-trace marker, so a
// recording aborted mid-call remains a valid, loadable, incomplete trace.
//
// Event order is the single source of truth for replay: events are matched
// to interception sites strictly in recorded order, never by content-based
// lookup.
//
// On disk a trace is a small uncompressed header followed by a
// zstd-compressed stream of framed events. The format guarantees lossless
// round-trip of every raw value, memory byte range, and the event ordering.
package trace
