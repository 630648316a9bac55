package domain

// PhaseName identifies one of the fixed execution phases of a job.
type PhaseName string

const (
	PhaseInstall      PhaseName = "install"
	PhaseFiles        PhaseName = "files"
	PhaseBeforeScript PhaseName = "before_script"
	PhaseScript       PhaseName = "script"
	PhaseAfterSuccess PhaseName = "after_success"
	PhaseAfterFailure PhaseName = "after_failure"
)

// Command is a single shell command line as written in the pipeline file.
type Command string

// FileSpec is a file generated into the job's workspace before before_script
// runs (e.g. a headless plotting backend config). Path and Content are
// templated with {{var}} placeholders.
type FileSpec struct {
	Path    string
	Content string
	Mode    uint32 // zero means 0644
}

// CheckSpec defines a single JSONPath check against a report document.
// Only the set fields are evaluated.
type CheckSpec struct {
	Exists   bool
	Eq       *string
	Contains *string
	Matches  *string
	Gt       *float64
	Lt       *float64
}

// ReportSpec names a JSON report file produced by the script phase and the
// checks/extractions applied to it. Path is templated.
type ReportSpec struct {
	Path string

	// Checks contains JSONPath checks keyed by expression (e.g. "$.failures").
	Checks map[string]CheckSpec

	// Extract maps variable names to JSONPath expressions whose values are
	// recorded on the job result (e.g. coverage: "$.coverage.percent").
	Extract map[string]string
}

// ArtifactSpec describes files collected and uploaded on job failure.
// Dir is templated; Glob is a filepath.Match pattern applied to base names.
type ArtifactSpec struct {
	Dir  string
	Glob string
}

// Pipeline is a complete build/test definition: runtime axis, env matrix and
// the phased command lists executed per job.
type Pipeline struct {
	Name string

	// Runtimes is the interpreter/runtime version axis. Empty means a single
	// axis value "" (one job per matrix entry).
	Runtimes []string

	Matrix MatrixSpec

	Install      []Command
	Files        []FileSpec
	BeforeScript []Command
	Script       []Command
	AfterSuccess []Command
	AfterFailure []Command

	Reports   []ReportSpec
	Artifacts ArtifactSpec
}

// Phase returns the command list for the given phase name.
func (p Pipeline) Phase(name PhaseName) []Command {
	switch name {
	case PhaseInstall:
		return p.Install
	case PhaseBeforeScript:
		return p.BeforeScript
	case PhaseScript:
		return p.Script
	case PhaseAfterSuccess:
		return p.AfterSuccess
	case PhaseAfterFailure:
		return p.AfterFailure
	default:
		return nil
	}
}

// PipelineRef is a lightweight reference to a pipeline file on disk.
type PipelineRef struct {
	Name string
	Path string
}
