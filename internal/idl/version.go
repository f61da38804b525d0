package idl

// Version constants for the description artifact and tooling.
const (
	// ArtifactVersion is the description artifact schema version.
	ArtifactVersion = "1"

	// BuildVersion is recorded in every resolved Interface.
	BuildVersion = "svcidl/0.1.0"
)
