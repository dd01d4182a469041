package syncer

// State is the pipeline stage of the engine.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateTransforming State = "transforming"
	StateDeriving     State = "deriving"
	StateRecording    State = "recording"
	StateAborted      State = "aborted"
)
