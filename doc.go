// Package conclave orchestrates a panel of independent LLM endpoints that
// deliberate on a single question and produce one synthesized answer plus the
// full reasoning trace.
//
// Two protocols are built in. The debate protocol runs an initial round
// followed by critique/defense cycles; the ranking protocol collects
// independent answers, has the panel rank them anonymously, and aggregates
// the rankings. Both end with a reflection-based synthesis by a chairman
// model.
//
// The engine's sole output is a stream of typed Events consumed from a
// channel; it never writes to stdout. Round execution is a strategy:
// BatchExecutor runs all participants concurrently with per-participant
// events, SequentialExecutor runs them one at a time with per-token events.
// Tool use is available to the panel either through native tool calling or
// through a text-based ReAct loop that surfaces the model's reasoning as
// events.
//
// Adapters live in subpackages: provider/openaicompat talks to any
// OpenAI-compatible chat-completions endpoint, tools/search provides the
// search_web tool, observer adds OpenTelemetry instrumentation, and
// store/... archive finished runs.
package conclave
