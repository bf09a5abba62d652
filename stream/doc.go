// Package stream converts the raw incremental deltas of a model response
// into discrete, ordered semantic events.
//
// A provider transport produces an ordered sequence of Delta values (text
// fragments, tool-call argument fragments, an end marker, and an optional
// in-band error marker). The
// Accumulator consumes that sequence and emits Events: batched content,
// tool-call progress and completion, flow hints, timeouts, and errors.
// Consumers read events in emission order; tool-call requests are assembled
// incrementally and frozen when the stream completes.
//
// # Timeouts
//
// The accumulator owns two timers. The chunk timer restarts on every
// received delta and fires when the transport goes quiet mid-stream. The
// global timer, disabled by default, bounds the whole stream regardless of
// per-chunk activity. Both are driven by an injectable Clock so tests can
// advance time deterministically.
//
// # Backpressure
//
// Text content is buffered and flushed either when the buffer crosses a size
// threshold or when no delta has arrived for a short idle window. A consumer
// that drains slowly sees a flow hint with high pressure rather than
// unbounded event buildup.
package stream
