package pipeline

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

type recordingObserver struct {
	started   []StageName
	completed map[StageName]StageResult
}

func (o *recordingObserver) OnStageStart(s StageName) { o.started = append(o.started, s) }
func (o *recordingObserver) OnStageComplete(s StageName, _ time.Duration, r StageResult) {
	if o.completed == nil {
		o.completed = map[StageName]StageResult{}
	}
	o.completed[s] = r
}

func TestClassifyStageResult(t *testing.T) {
	warn := errors.FunctionUnsupportedError("skip").Warning().Build()
	fatal := errors.ConfigError("bad").Fatal().Build()
	tests := []struct {
		name string
		err  error
		want StageResult
	}{
		{"nil", nil, StageResultSuccess},
		{"classified warning", warn, StageResultWarning},
		{"classified fatal", fatal, StageResultFatal},
		{"plain error", stdErrors.New("boom"), StageResultFatal},
		{"context canceled", context.Canceled, StageResultCanceled},
		{"wrapped deadline", errors.WrapError(context.DeadlineExceeded, errors.CategoryInternal, "x").Build(), StageResultCanceled},
		{"explicit warning", NewWarnStageError("s", stdErrors.New("w")), StageResultWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, se := ClassifyStageResult("s", tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.err == nil, se == nil)
		})
	}
}

func TestRunStages_StopsAtFatal(t *testing.T) {
	bs := newBuildState(Options{}, nil)
	obs := &recordingObserver{}
	bs.Observer = obs
	ran := 0
	stages := NewPipeline().
		Add("one", func(context.Context, *BuildState) error { ran++; return nil }).
		Add("two", func(context.Context, *BuildState) error {
			ran++
			return NewWarnStageError("two", errors.AssemblyError("minify").Warning().Build())
		}).
		Add("three", func(context.Context, *BuildState) error { ran++; return errors.ChunkIntegrityError("collision").Fatal().Build() }).
		AddIf(false, "skipped", func(context.Context, *BuildState) error { ran++; return nil }).
		Add("four", func(context.Context, *BuildState) error { ran++; return nil }).
		Build()

	err := RunStages(context.Background(), bs, stages)
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageName("three"), se.Stage)
	assert.False(t, se.Transient())
	assert.Equal(t, 3, ran)
	assert.Equal(t, []StageName{"one", "two", "three"}, obs.started)
	assert.Equal(t, StageResultWarning, obs.completed["two"])

	bs.Report.DeriveOutcome()
	assert.Equal(t, OutcomeFailed, bs.Report.Outcome)
	require.Len(t, bs.Report.Issues, 2)
	assert.Equal(t, IssueAssemblyFailure, bs.Report.Issues[0].Code)
	assert.Equal(t, IssueChunkIntegrity, bs.Report.Issues[1].Code)
	assert.Equal(t, 1, bs.Report.StageCounts["three"].Fatal)
	assert.Contains(t, bs.Report.StageDurations, "one")
}

func TestStageError_Transient(t *testing.T) {
	transient := errors.FileSystemError("busy").WithRetry(errors.RetryBackoff).Build()
	assert.True(t, NewFatalStageError("s", transient).Transient())
	assert.False(t, NewCanceledStageError("s", transient).Transient())
	assert.False(t, NewFatalStageError("s", stdErrors.New("x")).Transient())
}
