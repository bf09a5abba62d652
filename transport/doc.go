// Package transport adapts model providers to the raw delta sequence the
// stream package consumes.
//
// # Architecture
//
// A Source starts one model turn and returns an ordered channel of
// stream.Delta values: text fragments, indexed tool-call argument fragments,
// and a terminal done marker. Mid-stream failures are reported in-band with
// an error delta so content already delivered is never retracted.
//
// GollmSource is the production implementation, built on gollm so one
// adapter covers OpenAI, Anthropic, and the other providers gollm speaks.
// Providers without true streaming support fall back to a blocking generate
// call whose result is emitted as a single text delta.
//
// ScriptedSource replays a fixed delta script and records the requests it
// receives. It exists for tests and offline replay.
package transport
