package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxsql/internal/harness"
)

// FileValidation is the outcome of loading one scenario file.
type FileValidation struct {
	File  string `json:"file" yaml:"file"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps int    `json:"steps" yaml:"steps"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid" yaml:"valid"`
	Files []FileValidation `json:"files" yaml:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file|dir>...",
		Short: "Validate scenarios without running them",
		Long: `Load and validate scenario files without executing them.

Checks YAML and CUE syntax, unknown keys, step shapes and references to
declared subscriptions. Faster than test for editing feedback.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := findScenarioFiles(paths, "")
	if err != nil {
		_ = formatter.Error("E_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		_ = formatter.Error("E_NOT_FOUND", "no scenario files found", paths)
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		fv := FileValidation{File: file}
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			fv.Error = err.Error()
			result.Valid = false
		} else {
			fv.Name = scenario.Name
			fv.Steps = len(scenario.Steps)
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.Structured() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_INVALID", Message: "one or more scenarios are invalid"}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, fv := range result.Files {
			if fv.Error != "" {
				fmt.Fprintf(w, "✗ %s\n  %s\n", fv.File, fv.Error)
				continue
			}
			fmt.Fprintf(w, "✓ %s (%s, %d steps)\n", fv.File, fv.Name, fv.Steps)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
