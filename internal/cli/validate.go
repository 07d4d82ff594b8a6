package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klikkflow/collab/internal/config"
	"github.com/klikkflow/collab/internal/harness"
)

// FileValidation holds the validation result for one file.
type FileValidation struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"` // "scenario" or "config"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds the validation results for a whole invocation.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario and config files",
		Long: `Validate convergence scenario YAML files and room config CUE files.

File kinds are selected by extension: .yaml and .yml files are parsed as
scenarios, .cue files as room configs. Validation checks syntax, required
fields, unknown-field typos, and delivery-order coverage without executing
anything.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (unsupported file kind)

Examples:
  collab validate scenarios/label_race.yaml
  collab validate room.cue scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true}
	for _, path := range paths {
		fv, err := validateFile(path)
		if err != nil {
			return err
		}
		formatter.VerboseLog("validated %s (%s): valid=%v", fv.Path, fv.Kind, fv.Valid)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if opts.Format == "json" {
		return outputValidateJSON(formatter, result)
	}
	return outputValidateText(formatter, result)
}

func validateFile(path string) (FileValidation, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		fv := FileValidation{Path: path, Kind: "scenario", Valid: true}
		if _, err := harness.LoadScenario(path); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
		}
		return fv, nil
	case ".cue":
		fv := FileValidation{Path: path, Kind: "config", Valid: true}
		if _, err := config.Load(path); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
		}
		return fv, nil
	default:
		return FileValidation{}, NewExitError(ExitCommandError,
			fmt.Sprintf("unsupported file kind: %s (expected .yaml, .yml, or .cue)", path))
	}
}

func outputValidateJSON(formatter *OutputFormatter, result ValidationResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.Valid {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_INVALID",
			Message: "validation failed",
		}
	}

	enc := json.NewEncoder(formatter.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func outputValidateText(formatter *OutputFormatter, result ValidationResult) error {
	w := formatter.Writer
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s (%s)\n", fv.Path, fv.Kind)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", fv.Path, fv.Kind)
		fmt.Fprintf(w, "  %s\n", fv.Error)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	fmt.Fprintf(w, "✓ %d file(s) valid\n", len(result.Files))
	return nil
}
