package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/stgm/visitreport/internal/status"
	"github.com/stgm/visitreport/pkg/models"
)

// projectsCmd lists the projects of the licence.
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects of the Revizto licence",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.client.Projects(ctx)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		renderProjects(cmd.OutOrStdout(), projects)
		return nil
	},
}

// statusesCmd prints the workflow status catalogue used for badges.
var statusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "Show the workflow statuses used for issue badges",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := a.client.WorkflowSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch workflow settings: %w", err)
		}
		smap := status.BuildMap(payload)
		if smap.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No workflow statuses available; built-in statuses apply.")
			return nil
		}
		renderStatuses(cmd.OutOrStdout(), smap.Descriptors())
		return nil
	},
}

func renderProjects(w io.Writer, projects []models.Project) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "UUID", "Title", "Updated"})
	for _, p := range projects {
		tw.AppendRow(table.Row{p.ID, p.UUID, p.Title.String(), p.Updated.String()})
	}
	tw.Render()
}

func hexColor(c status.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func renderStatuses(w io.Writer, descriptors []status.Descriptor) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"UUID", "Name", "Badge", "Background", "Text", "Category"})
	for _, d := range descriptors {
		tw.AppendRow(table.Row{d.UUID, d.Name, d.DisplayName, hexColor(d.Background), hexColor(d.Text), d.Category})
	}
	tw.Render()
}
