package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maclay/research-assistant/internal/model"
)

var (
	reportsLimit  int
	reportsSearch string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage persisted research reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var reports []model.Report
		if reportsSearch != "" {
			reports, err = st.SearchReports(ctx, reportsSearch)
		} else {
			reports, err = st.ListRecentReports(ctx, reportsLimit)
		}
		if err != nil {
			return err
		}

		if len(reports) == 0 {
			cmd.Println("no reports")
			return nil
		}
		for _, r := range reports {
			cmd.Println(fmt.Sprintf("%s  %s  %-8s  %s",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Kind, r.Title))
		}
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print a report's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Println(report.Content)
		return nil
	},
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Soft-delete a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.DeleteReport(ctx, args[0]); err != nil {
			return err
		}
		cmd.Println("deleted", args[0])
		return nil
	},
}

func init() {
	reportsListCmd.Flags().IntVar(&reportsLimit, "limit", 10, "number of reports to list")
	reportsListCmd.Flags().StringVar(&reportsSearch, "search", "", "search reports by title or content")
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsDeleteCmd)
	rootCmd.AddCommand(reportsCmd)
}
