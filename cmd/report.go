package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/metadata"
)

// reportCmd generates the PDF report of one project.
var reportCmd = &cobra.Command{
	Use:   "report <project-id>",
	Short: "Generate the site-visit report of a project",
	Long: `Generate the site-visit PDF report of a Revizto project.

The cover page is filled from a YAML metadata file:

  project_name: Centre sportif
  visit_number: "3"
  visit_date: 2024-03-14
  visited_by: A. Tremblay
  presence: [A. Tremblay, B. Roy]
  distribution: [Propriétaire, Entrepreneur]

Closed issues are left out. When the report cannot be composed, an error
document naming the failure is written instead and the command fails.

Example:
  visitreport report 1234 --metadata visit.yaml --output rapport.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID := args[0]

		metadataPath, err := cmd.Flags().GetString("metadata")
		if err != nil {
			return err
		}
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		since, err := cmd.Flags().GetString("since")
		if err != nil {
			return err
		}
		if output == "" {
			output = defaultOutputPath(projectID)
		}

		meta, err := metadata.Load(metadataPath)
		if err != nil {
			return err
		}
		meta = metadata.Normalize(meta, time.Now())
		if err := metadata.Validate(meta); err != nil {
			return fmt.Errorf("invalid metadata %s: %w", metadataPath, err)
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		service, err := a.reportService(since)
		if err != nil {
			return err
		}

		logging.Info("generating report", "project_id", projectID, "project", meta.ProjectName)
		res, err := service.Generate(ctx, projectID, meta)
		if err != nil {
			return err
		}
		if err := writeReport(output, res.PDF); err != nil {
			return err
		}

		if res.Failed() {
			return fmt.Errorf("report generation failed, error document written to %s: %w", output, res.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s (%d pages, %d issues)\n", output, res.Pages, len(res.Cards))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringP("metadata", "m", "", "YAML file with the cover page metadata")
	reportCmd.Flags().StringP("output", "o", "", "output PDF path (default rapport-<project-id>.pdf)")
	reportCmd.Flags().String("since", "", "only fetch comments from this date (YYYY-MM-DD)")
	_ = reportCmd.MarkFlagRequired("metadata")
}

func defaultOutputPath(projectID string) string {
	return fmt.Sprintf("rapport-%s.pdf", projectID)
}

// writeReport writes data to path through a temporary file so a failed
// write never leaves a truncated PDF behind.
func writeReport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".visitreport-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
