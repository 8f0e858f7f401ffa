package exitcodes

// Exit codes shared by the depot tools
// Scripts driving the tools rely on these values
const (
	Success = 0 // Target removed, already absent, or generation finished
	Failure = 1 // Target rejected, left behind, or a write failed
	Usage   = 2 // Bad flags, arguments, or configuration
)
