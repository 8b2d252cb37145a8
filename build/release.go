package build

// Release and DEBUG select the build's behavior for Critical, Severe and
// the debug-only invariant checks scattered through heap, mutator and
// collector. A single pair of package vars stands in for the three
// separate build-tagged files (standard/dev/testing) a real release
// pipeline would use, so that a test binary can flip DEBUG on with an
// init func without needing a matching build tag.
var (
	// Release identifies which configuration is active: "standard",
	// "dev", or "testing". build.Select switches on it.
	Release = "standard"

	// DEBUG gates every assertion-build invariant check in this module
	// (chunk magic, mutator-frontier invariant, remembered-set
	// accounting) and whether Critical/Severe panic instead of merely
	// logging.
	DEBUG = false
)
