package ir

// Version constants for the model schema and runtime.
const (
	// IRVersion is the symbolic model schema version.
	IRVersion = "1"

	// EngineVersion is the rxnsim runtime version.
	EngineVersion = "0.1.0"
)
