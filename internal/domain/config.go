package domain

// KeyPrefix namespaces all storage keys written by the engine.
var KeyPrefix = "serendex:"

// DefaultVectorConfig returns the default embedding configuration.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:               "text-embedding-3-small",
		Dimensions:          1536,
		DocumentInstruction: "",
		QueryInstruction:    "",
	}
}

// VectorConfig holds internal vectorization settings, not exposed to clients.
type VectorConfig struct {
	Model               string
	Dimensions          int
	DocumentInstruction string
	QueryInstruction    string
}
