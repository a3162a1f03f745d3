package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

// TypeCount is the number of stored entities of one type.
type TypeCount struct {
	Type     string `json:"type"`
	StoredAs string `json:"stored_as"`
	Count    int    `json:"count"`
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	Backend string      `json:"backend"`
	Total   int         `json:"total"`
	Types   []TypeCount `json:"types"`
}

func (r StatsResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s) in %s store", r.Total, r.Backend)
	for _, t := range r.Types {
		fmt.Fprintf(&b, "\n  %-20s %d", t.Type, t.Count)
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Count stored entities per type",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return runStats(cmd.Context(), rootOpts, formatter)
		},
	}
}

func runStats(ctx context.Context, opts *RootOptions, formatter *OutputFormatter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(opts, newLogger(formatter.GetErrWriter(), opts.Verbose))
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, err)
	}
	defer s.Close()

	total, err := s.records.Count(ctx, record.MatchAll{})
	if err != nil {
		return formatter.Fail(ErrCodeStore, err)
	}
	result := StatsResult{Backend: s.config.Store.Backend, Total: total, Types: []TypeCount{}}
	for _, t := range s.registry.Types() {
		if !t.Entity {
			continue
		}
		n, err := s.records.Count(ctx, record.Term{Field: record.TypeField, Value: ir.IRString(t.StoreName())})
		if err != nil {
			return formatter.Fail(ErrCodeStore, err)
		}
		result.Types = append(result.Types, TypeCount{Type: t.Name, StoredAs: t.StoreName(), Count: n})
	}
	return formatter.Success(result)
}
