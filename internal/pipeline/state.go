package pipeline

import (
	stdErrors "errors"

	"git.home.luguber.info/inful/edgebundle/internal/assemble"
	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/functions"
	"git.home.luguber.info/inful/edgebundle/internal/metrics"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
	"git.home.luguber.info/inful/edgebundle/internal/summary"
)

// BuildState carries stage outputs from one stage to the next. Each field is
// written by exactly one stage.
type BuildState struct {
	Options  Options
	Report   *BuildReport
	Recorder metrics.Recorder
	Observer StageObserver

	Registry *chunks.Registry

	Config    *buildconfig.BuildConfig
	Manifest  *assets.Manifest
	Functions *functions.Result
	Dedup     *chunks.Result
	Table     *routes.Table
	Staging   *assemble.Staging
	Bundle    *assemble.Bundle
	Summary   *summary.Summary

	// Warnings are recoverable problems surfaced in the summary.
	Warnings []*errors.ClassifiedError
}

func newBuildState(opts Options, recorder metrics.Recorder) *BuildState {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &BuildState{
		Options:  opts,
		Report:   NewBuildReport(),
		Recorder: recorder,
		Registry: chunks.NewRegistry(),
	}
}

func (bs *BuildState) warn(ce ...*errors.ClassifiedError) {
	bs.Warnings = append(bs.Warnings, ce...)
}

// warnings turns the warnings added since mark into a warning StageError, or
// nil when there were none.
func (bs *BuildState) warnings(stage StageName, mark int) error {
	if len(bs.Warnings) == mark {
		return nil
	}
	errs := make([]error, 0, len(bs.Warnings)-mark)
	for _, w := range bs.Warnings[mark:] {
		errs = append(errs, w)
	}
	return NewWarnStageError(stage, stdErrors.Join(errs...))
}
