package telemetry

// Attribute names recorded on bridge spans
const (
	AttrBridgePort      = "bridge.port"           // Inbound port (e.g. "jsonToYaml")
	AttrBridgeReplyPort = "bridge.reply.port"     // Outbound port the handler answered on
	AttrBridgeSuccess   = "bridge.result.success" // Whether the request succeeded (boolean)
	AttrBridgeError     = "bridge.result.error"   // Formatted error message if failed
	AttrBridgeInputSize = "bridge.input.size"     // Input length in bytes
	AttrRequestID       = "bridge.request.id"     // Correlation id supplied by the host
	AttrTransport       = "bridge.transport"      // Host transport (stdio/sse/http/ports/websocket)
)

// Transport names set with WithTransport
const (
	TransportPorts     = "ports"
	TransportWebsocket = "websocket"
	TransportCLI       = "cli"
)

// Span names
const (
	SpanNameRequest = "bridge.request"
)
