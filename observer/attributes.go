package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for deliberation observability spans and metrics.
var (
	AttrLLMModel   = attribute.Key("llm.model")
	AttrLLMGateway = attribute.Key("llm.gateway")
	AttrLLMMethod  = attribute.Key("llm.method")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount    = attribute.Key("llm.tool_count")
	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
)
