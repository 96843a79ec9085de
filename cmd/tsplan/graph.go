package main

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-faster/tsplan/internal/memstore"
	"github.com/go-faster/tsplan/internal/plan"
	"github.com/go-faster/tsplan/internal/tsq"
)

func newGraphCommand() *cobra.Command {
	var arg struct {
		File    string
		Rollups bool
		ByteIDs bool
		Verbose bool
	}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Plan a JSON query and render the pipeline as Graphviz DOT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if arg.Verbose {
				lg, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer func() {
					_ = lg.Sync()
				}()
				ctx = zctx.Base(ctx, lg)
			}

			data, err := readQuery(arg.File)
			if err != nil {
				return err
			}
			q, err := tsq.ParseQuery(data)
			if err != nil {
				return err
			}

			opts := memstore.Options{
				ByteKeys: arg.ByteIDs,
			}
			if arg.Rollups {
				opts.Rollups = memstore.DefaultRollups()
			}
			planner := plan.NewPlanner(memstore.New(opts), plan.Factories{
				Downsample: opFactory{},
				Rate:       opFactory{},
				GroupBy:    opFactory{},
			}, plan.Options{})

			pipe, err := planner.Build(ctx, q, plan.QueryContext{}, []plan.Sink{stdoutSink{}})
			if err != nil {
				return errors.Wrap(err, "build pipeline")
			}
			return pipe.Graph().WriteDOT(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&arg.File, "file", "f", "-", `Query file ("-" for stdin)`)
	cmd.Flags().BoolVar(&arg.Rollups, "rollups", false, "Pretend the backend stores rollup summaries")
	cmd.Flags().BoolVar(&arg.ByteIDs, "byte-ids", false, "Pretend the backend encodes tag keys as byte identifiers")
	cmd.Flags().BoolVarP(&arg.Verbose, "verbose", "v", false, "Log planner decisions")
	return cmd
}

func readQuery(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

// opFactory creates inert operator nodes: the CLI only renders the graph,
// it never executes it.
type opFactory struct{}

type opNode struct {
	id string
}

func (n opNode) ID() string { return n.id }

func (opFactory) NewDownsample(_ context.Context, _ *plan.Pipeline, cfg plan.DownsampleConfig) (plan.Node, error) {
	return opNode{id: cfg.ID}, nil
}

func (opFactory) NewRate(_ context.Context, _ *plan.Pipeline, cfg plan.RateConfig) (plan.Node, error) {
	return opNode{id: cfg.ID}, nil
}

func (opFactory) NewGroupBy(_ context.Context, _ *plan.Pipeline, cfg plan.GroupByConfig) (plan.Node, error) {
	return opNode{id: cfg.ID}, nil
}

type stdoutSink struct{}

func (stdoutSink) ID() string { return "stdout" }
