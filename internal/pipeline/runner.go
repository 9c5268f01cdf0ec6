package pipeline

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// StageObserver receives stage lifecycle callbacks. The build command uses it
// to print per-stage progress in watch mode; may be nil.
type StageObserver interface {
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, duration time.Duration, result StageResult)
}

// RunStages executes stages in order, recording timings and outcomes in the
// build report. It stops at the first fatal or canceled stage.
func RunStages(ctx context.Context, bs *BuildState, stages []StageDef) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(st.Name, ctx.Err())
			recordIssue(bs, se)
			bs.Report.StageErrorKinds[st.Name] = se.Kind
			bs.Report.RecordStageResult(st.Name, StageResultCanceled, bs.Recorder)
			return se
		default:
		}

		if bs.Observer != nil {
			bs.Observer.OnStageStart(st.Name)
		}
		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)
		bs.Report.StageDurations[string(st.Name)] = dur
		bs.Recorder.ObserveStageDuration(string(st.Name), dur)

		res, se := ClassifyStageResult(st.Name, err)
		if se != nil {
			recordIssue(bs, se)
			bs.Report.StageErrorKinds[st.Name] = se.Kind
		}
		bs.Report.RecordStageResult(st.Name, res, bs.Recorder)
		if bs.Observer != nil {
			bs.Observer.OnStageComplete(st.Name, dur, res)
		}

		if se == nil {
			slog.Debug("Stage complete", logfields.Stage(string(st.Name)), logfields.DurationMS(float64(dur.Microseconds())/1000))
			continue
		}
		switch se.Kind {
		case StageErrorWarning:
			slog.Warn("Stage completed with warnings", logfields.Stage(string(st.Name)), logfields.Error(se.Err))
		case StageErrorFatal, StageErrorCanceled:
			return se
		}
	}
	return nil
}

// ClassifyStageResult maps a stage's returned error to a result and a
// StageError. Context errors are cancellations; classified warnings are
// non-fatal; everything else is fatal.
func ClassifyStageResult(stage StageName, err error) (StageResult, *StageError) {
	if err == nil {
		return StageResultSuccess, nil
	}
	var se *StageError
	if stdErrors.As(err, &se) {
		switch se.Kind {
		case StageErrorWarning:
			return StageResultWarning, se
		case StageErrorCanceled:
			return StageResultCanceled, se
		default:
			return StageResultFatal, se
		}
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return StageResultCanceled, NewCanceledStageError(stage, err)
	}
	if ce, ok := errors.AsClassified(err); ok && (ce.Severity() == errors.SeverityWarning || ce.Severity() == errors.SeverityInfo) {
		return StageResultWarning, NewWarnStageError(stage, err)
	}
	return StageResultFatal, NewFatalStageError(stage, err)
}

func recordIssue(bs *BuildState, se *StageError) {
	var (
		code     ReportIssueCode
		severity IssueSeverity
	)
	switch se.Kind {
	case StageErrorCanceled:
		code, severity = IssueCanceled, SeverityError
	case StageErrorWarning:
		code, severity = issueCode(se.Err), SeverityWarning
	default:
		code, severity = issueCode(se.Err), SeverityError
	}
	bs.Report.AddIssue(code, se.Stage, severity, se.Error(), se.Transient(), se)
}
