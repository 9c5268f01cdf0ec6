package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/edgebundle/internal/config"
	"git.home.luguber.info/inful/edgebundle/internal/pipeline"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Input   string   `arg:"" optional:"" help:"Intermediate output directory (default: .vercel/output)" type:"path"`
	NoDedup bool     `name:"no-dedup" help:"Show the plan with deduplication disabled"`
	JSON    bool     `name:"json" help:"Print the route table as the router sees it, in JSON"`
	Resolve []string `help:"Resolve request paths against the table and print the outcome"`
}

func (i *InspectCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadOptions()
	if err != nil {
		return err
	}
	plan, err := pipeline.Inspect(context.Background(), i.options(cfg))
	if err != nil {
		return err
	}
	if i.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan.Table.Wire())
	}
	printRoutes(g.Out, plan.Table)
	printChunks(g.Out, plan)
	if len(i.Resolve) > 0 {
		printResolutions(g.Out, plan.Table, i.Resolve)
	}
	for _, w := range plan.Warnings {
		_, _ = fmt.Fprintf(g.Out, "warning: %s\n", w.Error())
	}
	return nil
}

func (i *InspectCmd) options(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		InputDir:     first(i.Input, cfg.Input, DefaultInput),
		DisableDedup: i.NoDedup || !cfg.DedupEnabled(),
		Concurrency:  cfg.Concurrency,
	}
}

func printRoutes(out io.Writer, t *routes.Table) {
	_, _ = fmt.Fprintf(out, "Routes (%d entries, %d unreachable)\n", len(t.Entries), t.Unreachable())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tPHASE\tTYPE\tMATCH\tTARGET\tNOTE")
	for idx, e := range t.Entries {
		match, target := e.Path, ""
		switch e.Kind {
		case routes.EntryRule:
			match = string(e.Route.Kind())
			if src := e.Route.Source(); src != "" {
				match += " " + src
			}
			if e.Target != nil {
				target = string(e.Target.Kind)
				if e.Target.Function != "" {
					target += " " + e.Target.Function
				} else if e.Target.Path != "" {
					target += " " + e.Target.Path
				}
			}
		case routes.EntryFunction, routes.EntryPrerender:
			target = e.Function
		case routes.EntryAsset:
			if e.Asset != nil {
				target = e.Asset.File
			}
		}
		note := ""
		if e.Unreachable {
			note = fmt.Sprintf("unreachable (shadowed by #%d)", e.ShadowedBy)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", idx, e.Phase, e.Kind, match, target, note)
	}
	_ = tw.Flush()
}

func printChunks(out io.Writer, plan *pipeline.Plan) {
	set := plan.Dedup.Chunks
	_, _ = fmt.Fprintf(out, "\nChunks (%d, %s, %s saved)\n",
		set.Len(), humanize.Bytes(uint64(set.TotalBytes())), humanize.Bytes(uint64(plan.Dedup.BytesSaved)))
	if set.Len() == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tSIZE\tREFERENCED BY")
	for _, c := range set.All() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.File(), humanize.Bytes(uint64(len(c.Content))), strings.Join(c.ReferencedBy, ", "))
	}
	_ = tw.Flush()
}

func printResolutions(out io.Writer, t *routes.Table, paths []string) {
	_, _ = fmt.Fprintln(out, "\nResolutions")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range paths {
		r := t.Resolve(p)
		detail := r.Asset
		switch r.Outcome {
		case routes.OutcomeFunction:
			detail = r.Function
		case routes.OutcomeRedirect, routes.OutcomeExternal:
			detail = r.Location
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p, r.Outcome, r.Status, detail)
	}
	_ = tw.Flush()
}
