package pipeline

import (
	"time"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/metrics"
)

// BuildOutcome is the final result of a build.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// ReportIssueCode enumerates machine-parseable issue identifiers. Codes are
// a stable contract; append only.
type ReportIssueCode string

const (
	IssueConfigInvalid       ReportIssueCode = "CONFIG_INVALID"
	IssueInvalidOptions      ReportIssueCode = "INVALID_OPTIONS"
	IssueFunctionUnsupported ReportIssueCode = "FUNCTION_UNSUPPORTED"
	IssueChunkIntegrity      ReportIssueCode = "CHUNK_INTEGRITY"
	IssueAssetCollision      ReportIssueCode = "ASSET_COLLISION"
	IssueAssemblyFailure     ReportIssueCode = "ASSEMBLY_FAILURE"
	IssueFilesystem          ReportIssueCode = "FILESYSTEM_ERROR"
	IssueCanceled            ReportIssueCode = "BUILD_CANCELED"
	IssueGenericStageError   ReportIssueCode = "GENERIC_STAGE_ERROR"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ReportIssue is a structured entry describing a discrete problem.
type ReportIssue struct {
	Code      ReportIssueCode `json:"code"`
	Stage     StageName       `json:"stage"`
	Severity  IssueSeverity   `json:"severity"`
	Message   string          `json:"message"`
	Transient bool            `json:"transient"`
}

// StageCount aggregates counts of outcomes for a stage.
type StageCount struct {
	Success  int
	Warning  int
	Fatal    int
	Canceled int
}

// BuildReport captures what happened during one build.
type BuildReport struct {
	Start           time.Time
	End             time.Time
	Errors          []error // fatal errors (at most one)
	Warnings        []error
	StageDurations  map[string]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Outcome         BuildOutcome
	Issues          []ReportIssue
}

// NewBuildReport starts a report.
func NewBuildReport() *BuildReport {
	return &BuildReport{
		Start:           time.Now(),
		StageDurations:  make(map[string]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

// AddIssue appends a structured issue and mirrors severity into Errors/Warnings.
func (r *BuildReport) AddIssue(code ReportIssueCode, stage StageName, severity IssueSeverity, msg string, transient bool, err error) {
	r.Issues = append(r.Issues, ReportIssue{Code: code, Stage: stage, Severity: severity, Message: msg, Transient: transient})
	if err == nil {
		return
	}
	switch severity {
	case SeverityError:
		r.Errors = append(r.Errors, err)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, err)
	}
}

// RecordStageResult updates counters and forwards to the recorder.
func (r *BuildReport) RecordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	sc := r.StageCounts[stage]
	var label metrics.ResultLabel
	switch res {
	case StageResultSuccess:
		sc.Success++
		label = metrics.ResultSuccess
	case StageResultWarning:
		sc.Warning++
		label = metrics.ResultWarning
	case StageResultFatal:
		sc.Fatal++
		label = metrics.ResultFatal
	case StageResultCanceled:
		sc.Canceled++
		label = metrics.ResultCanceled
	}
	r.StageCounts[stage] = sc
	if recorder != nil {
		recorder.IncStageResult(string(stage), label)
	}
}

// DeriveOutcome sets Outcome from the recorded errors and warnings.
func (r *BuildReport) DeriveOutcome() {
	switch {
	case len(r.Errors) > 0:
		r.Outcome = OutcomeFailed
		for _, k := range r.StageErrorKinds {
			if k == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
			}
		}
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Finish sets the end time of the report.
func (r *BuildReport) Finish() { r.End = time.Now() }

// issueCode maps an error to its issue code by category.
func issueCode(err error) ReportIssueCode {
	switch errors.GetCategory(err) {
	case errors.CategoryConfig:
		return IssueConfigInvalid
	case errors.CategoryValidation:
		return IssueInvalidOptions
	case errors.CategoryFunction:
		return IssueFunctionUnsupported
	case errors.CategoryChunkIntegrity:
		return IssueChunkIntegrity
	case errors.CategoryAssetCollision:
		return IssueAssetCollision
	case errors.CategoryAssembly:
		return IssueAssemblyFailure
	case errors.CategoryFileSystem:
		return IssueFilesystem
	default:
		return IssueGenericStageError
	}
}
