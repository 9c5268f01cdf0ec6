package assemble

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// Staging is an isolated sibling directory that replaces the output
// directory only when a build succeeds.
type Staging struct {
	output string
	dir    string
}

// BeginStaging creates <output>_stage, clearing leftovers from an interrupted run.
func BeginStaging(output string) (*Staging, error) {
	stage := output + "_stage"
	if err := os.RemoveAll(stage); err != nil {
		return nil, fmt.Errorf("clear stale staging directory: %w", err)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return nil, err
	}
	slog.Debug("Initialized staging directory", slog.String("staging", stage), logfields.Output(output))
	return &Staging{output: output, dir: stage}, nil
}

// Dir is where output is written until Promote.
func (s *Staging) Dir() string { return s.dir }

// Promote replaces the output directory with the staging directory.
//  1. Move the existing output (if any) to <output>.prev.
//  2. Rename staging to output.
//  3. Remove the backup.
func (s *Staging) Promote() error {
	if s.dir == "" {
		return fmt.Errorf("no staging directory initialized")
	}
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("staging directory missing: %w", err)
	}

	prev := s.output + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	if _, err := os.Stat(s.output); err == nil {
		if err := os.Rename(s.output, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
	}
	if err := os.Rename(s.dir, s.output); err != nil {
		// put the previous output back so a failed promote leaves it untouched
		if _, statErr := os.Stat(prev); statErr == nil {
			_ = os.Rename(prev, s.output)
		}
		return fmt.Errorf("promote staging: %w", err)
	}
	s.dir = ""
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	slog.Info("Promoted staging directory", logfields.Output(s.output))
	return nil
}

// Abort removes the staging directory. Safe to call after Promote.
func (s *Staging) Abort() {
	if s == nil || s.dir == "" {
		return
	}
	dir := s.dir
	s.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", slog.String("staging", dir), logfields.Error(err))
		return
	}
	slog.Debug("Removed staging directory after abort", slog.String("staging", dir))
}
