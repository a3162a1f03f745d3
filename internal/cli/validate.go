package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entigraph/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool            `json:"valid"`
	Types  []TypeSummary   `json:"types,omitempty"`
	Errors []SchemaProblem `json:"errors,omitempty"`
}

// TypeSummary describes one declared type.
type TypeSummary struct {
	Name       string   `json:"name"`
	Entity     bool     `json:"entity"`
	StoredAs   string   `json:"stored_as"`
	Properties []string `json:"properties"`
}

// SchemaProblem is one error found in a schema file.
type SchemaProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	if !r.Valid {
		fmt.Fprintf(&b, "✗ Validation failed with %d error(s):\n", len(r.Errors))
		for _, p := range r.Errors {
			if p.Line > 0 {
				fmt.Fprintf(&b, "  line %d: %s: %s\n", p.Line, p.Field, p.Message)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", p.Field, p.Message)
			}
		}
		return strings.TrimSuffix(b.String(), "\n")
	}
	fmt.Fprintf(&b, "✓ Schema valid: %d type(s)\n", len(r.Types))
	for _, t := range r.Types {
		kind := "composite"
		if t.Entity {
			kind = "entity"
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", kind, t.Name, strings.Join(t.Properties, ", "))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema.cue]",
		Short: "Validate an entity schema",
		Long: `Compile a CUE entity schema and check it for consistency.

Without an argument the schema named by the config file is checked.
Reports every problem found: unknown kinds and value types, dangling
targets, mismatched back references and reserved names.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig(rootOpts.Config, rootOpts.configSet)
				if err != nil {
					return formatter.Fail(ErrCodeConfig, &LoadError{Code: ErrCodeConfig, Message: "failed to load config", Err: err})
				}
				path = cfg.Schema
			}
			return runValidate(formatter, path)
		},
	}

	return cmd
}

func runValidate(formatter *OutputFormatter, path string) error {
	formatter.VerboseLog("Validating schema %s", path)

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ErrCodeSchema, &LoadError{Code: ErrCodeSchema, Message: "schema file not readable", Err: err})
	}

	reg, err := schema.LoadCUEFile(path)
	if err != nil {
		result := ValidationResult{Errors: schemaProblems(err)}
		if outErr := formatter.Success(result); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	result := ValidationResult{Valid: true}
	for _, t := range reg.Types() {
		result.Types = append(result.Types, TypeSummary{
			Name:       t.Name,
			Entity:     t.Entity,
			StoredAs:   t.StoreName(),
			Properties: t.PropertyNames(),
		})
	}
	return formatter.Success(result)
}

// schemaProblems flattens a schema load error into one problem per cause.
func schemaProblems(err error) []SchemaProblem {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []SchemaProblem
		for _, e := range joined.Unwrap() {
			out = append(out, schemaProblems(e)...)
		}
		return out
	}

	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		p := SchemaProblem{Field: compileErr.Field, Message: compileErr.Message}
		if compileErr.Pos.IsValid() {
			p.Line = compileErr.Pos.Line()
		}
		return []SchemaProblem{p}
	}

	var validationErr schema.ValidationError
	if errors.As(err, &validationErr) {
		field := validationErr.Type
		if validationErr.Property != "" {
			field += "." + validationErr.Property
		}
		return []SchemaProblem{{Field: field, Message: validationErr.Message}}
	}

	return []SchemaProblem{{Field: "schema", Message: err.Error()}}
}
