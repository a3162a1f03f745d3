package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	Type  string
	Limit int
}

// DumpedDocument is one raw stored document.
type DumpedDocument struct {
	ID      string      `json:"id"`
	Version string      `json:"version"`
	Fields  ir.IRObject `json:"fields"`
}

// DumpResult is the output of the dump command.
type DumpResult struct {
	Documents []DumpedDocument `json:"documents"`
}

func (r DumpResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s)", len(r.Documents))
	for _, d := range r.Documents {
		fmt.Fprintf(&b, "\n%s %s", d.ID, ir.String(d.Fields))
	}
	return b.String()
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print raw stored documents",
		Long: `Print the flat documents in the record store, ordered by id.

Documents are shown as stored: composite and collection fields appear
under their path names with their __size__ counters.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return runDump(cmd.Context(), rootOpts, opts, formatter)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "only documents of this entity type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of documents (0 = all)")

	return cmd
}

func runDump(ctx context.Context, rootOpts *RootOptions, opts *DumpOptions, formatter *OutputFormatter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(rootOpts, newLogger(formatter.GetErrWriter(), rootOpts.Verbose))
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, err)
	}
	defer s.Close()

	search := record.Search{Limit: opts.Limit}
	if opts.Type != "" {
		typ, err := s.registry.Entity(opts.Type)
		if err != nil {
			return formatter.Fail(ErrCodeNotFound, err)
		}
		search.Filter = record.Term{Field: record.TypeField, Value: ir.IRString(typ.StoreName())}
	}

	cur, err := s.records.Find(ctx, search)
	if err != nil {
		return formatter.Fail(ErrCodeStore, err)
	}
	defer cur.Close()

	result := DumpResult{Documents: []DumpedDocument{}}
	for cur.Next() {
		doc := cur.Document()
		result.Documents = append(result.Documents, DumpedDocument{
			ID:      doc.ID,
			Version: doc.Version,
			Fields:  doc.Fields,
		})
	}
	if err := cur.Err(); err != nil {
		return formatter.Fail(ErrCodeStore, err)
	}
	return formatter.Success(result)
}
