package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/CodeCouncil/internal/config"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

// errGateFailed makes the process exit non-zero when the quality gate fails.
var errGateFailed = errors.New("quality gate failed")

func newReviewCmd(configPath *string) *cobra.Command {
	var (
		file     string
		language string
		gates    []string
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review a source file with the council specialists and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := readSource(file)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			router := buildRouter(cmd.Context(), cfg)
			reviews := service.NewReviewService(router, cfg.Council.CallTimeout, nil, 0, nil, nil)
			out, err := reviews.Review(cmd.Context(), service.ReviewRequest{
				Code:     code,
				Language: language,
				Gates:    gates,
				Profile:  council.ParseProfile(profile),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out.Report); err != nil {
				return err
			}
			if out.Report.QualityGate != council.GatePassed {
				return errGateFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "source file to review (default: stdin)")
	cmd.Flags().StringVarP(&language, "language", "l", "python", "language of the source")
	cmd.Flags().StringSliceVar(&gates, "gates", nil, "roles to run (default: qa,security,performance)")
	cmd.Flags().StringVar(&profile, "profile", string(council.ProfileBalanced), "task profile: fast, cheap, quality or balanced")
	return cmd
}

// readSource reads path, or stdin when path is empty. An interactive
// terminal on stdin is refused so the command never waits on the keyboard.
func readSource(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // G115: fd fits in int
		return "", errors.New("no --file given and stdin is a terminal")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("stdin is empty")
	}
	return string(data), nil
}
