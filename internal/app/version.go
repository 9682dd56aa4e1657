package app

// Build-time variables set via -ldflags. For example:
//
//	go build -ldflags "-X github.com/large-farva/neurotap/internal/app.Version=v0.3.0"
var (
	Version   = "dev"
	GoVersion = "unknown"
	BuiltAt   = "unknown"
)

// Protocol names the connector wire format reported by /api/version.
const Protocol = "thinkgear-json"
