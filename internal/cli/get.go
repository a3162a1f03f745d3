package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show one entity",
		Long: `Load one entity through a unit of work and print its properties.

Associations are shown as target ids. Exits with status 1 if the entity
does not exist.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return runGet(cmd.Context(), rootOpts, formatter, args[0], args[1])
		},
	}
	return cmd
}

func runGet(ctx context.Context, opts *RootOptions, formatter *OutputFormatter, typeName, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(opts, newLogger(formatter.GetErrWriter(), opts.Verbose))
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, err)
	}
	defer s.Close()

	u, err := s.repo.NewUnitOfWork(ctx)
	if err != nil {
		return formatter.Fail(ErrCodeUnitOfWork, err)
	}
	defer u.Close()

	e, err := u.Entity(ctx, typeName, id)
	if err != nil {
		return formatter.Fail(ErrCodeNotFound, err)
	}
	if e == nil {
		return formatter.Fail(ErrCodeNotFound, fmt.Errorf("%s %q not found", typeName, id))
	}

	view, err := viewEntity(ctx, e)
	if err != nil {
		return formatter.Fail(ErrCodeStore, err)
	}
	return formatter.Success(view)
}
