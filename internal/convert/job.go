package convert

import "time"

// Job is one extract and re-pack request. SourcePath is only read;
// OutputDir is owned by the caller and only written into.
type Job struct {
	ID           string
	SourcePath   string
	OutputDir    string
	TargetFormat string
}

// Result is the outcome handed back to callers. Exactly one of the success
// fields or Error is set.
type Result struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"output_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Error      string `json:"error,omitempty"`

	// Kind is the failure class label; empty on success.
	Kind string `json:"-"`
}

// Success builds a successful result for outputPath.
func Success(outputPath, filename string) Result {
	return Result{Success: true, OutputPath: outputPath, Filename: filename}
}

// Failure builds a failed result carrying message.
func Failure(kind, message string) Result {
	return Result{Success: false, Error: message, Kind: kind}
}

// State is a conversion lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StatePacking    State = "packing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome is reported to observers once a job finishes.
type Outcome struct {
	Job          Job
	Result       Result
	SourceFormat string
	TargetFormat string
	// FailedIn is the state the job was in when it failed.
	FailedIn State
	Started  time.Time
	Duration time.Duration
}

// Observer receives lifecycle notifications. Implementations must be safe for
// concurrent use because every worker reports through the same observers.
type Observer interface {
	StateChanged(job Job, from, to State)
	Completed(outcome Outcome)
	ReleaseFailed(job Job, err error)
}
