package version

// Package metadata information, used for versioning and metadata generation.
// The release build replaces these variables through -ldflags.
var (
	Version   = "1.17.0"                         // Version of vigiles-buildroot
	Toolname  = "vigiles-buildroot"              // Name of the tool
	Vendor    = "Lynx Software Technologies Inc" // Vendor recorded in SBOM tool entries
	BuildDate = "unknown"                        // Date when the tool was built
	CommitSHA = "unknown"                        // Commit SHA of the tool
)
