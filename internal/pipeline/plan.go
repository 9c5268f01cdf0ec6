package pipeline

import (
	"context"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/functions"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
)

// Plan is what a build would emit, computed without touching the output
// directory.
type Plan struct {
	Manifest  *assets.Manifest
	Functions *functions.Result
	Dedup     *chunks.Result
	Table     *routes.Table
	Warnings  []*errors.ClassifiedError
	Report    *BuildReport
}

// Inspect runs the analysis stages of a build and stops before assembly.
// OutputDir is not required.
func Inspect(ctx context.Context, opts Options) (*Plan, error) {
	if opts.OutputDir == "" {
		// Only validated, never written.
		opts.OutputDir = opts.InputDir + ".inspect"
	}
	bs := newBuildState(opts, nil)
	plan := &Plan{Report: bs.Report}
	if err := bs.Options.Validate(); err != nil {
		return plan, err
	}
	err := RunStages(ctx, bs, stagesFor(true))
	bs.Report.Finish()
	bs.Report.DeriveOutcome()
	if err != nil {
		return plan, err
	}
	plan.Manifest, plan.Functions, plan.Dedup, plan.Table = bs.Manifest, bs.Functions, bs.Dedup, bs.Table
	plan.Warnings = bs.Warnings
	return plan, nil
}
