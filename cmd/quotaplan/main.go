// quotaplan 命令行配额规划工具，不依赖数据库，直接调用规划器输出配额结构与单元格
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"fieldwork-service/service/quota"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "quotaplan",
		Short:         "调研配额规划工具",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(modesCmd())
	return rootCmd
}

func planCmd() *cobra.Command {
	var (
		geography string
		detail    string
		mode      string
		sample    int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "按地理范围与配额模式生成配额方案",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := quota.ParseGeographyScope(geography)
			if err != nil {
				return err
			}
			m, err := quota.ParseQuotaMode(mode)
			if err != nil {
				return err
			}
			plan, err := quota.Plan(quota.PlanRequest{
				Geography:        g,
				GeographyDetail:  detail,
				Mode:             m,
				TargetSampleSize: sample,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			return printPlan(cmd.OutOrStdout(), plan)
		},
	}

	cmd.Flags().StringVarP(&geography, "geography", "g", "National", "地理范围: National/State/Federal Electorate/State Electorate")
	cmd.Flags().StringVarP(&detail, "detail", "d", "", "地理范围细节，如州缩写 NSW")
	cmd.Flags().StringVarP(&mode, "mode", "m", "non-interlocking", "配额模式")
	cmd.Flags().IntVarP(&sample, "sample", "n", 1000, "目标样本量")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以JSON输出")
	return cmd
}

func modesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "列出全部配额模式及复杂度",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODE\tLEVEL\tMULTIPLIER\tDESCRIPTION")
			for _, c := range quota.AllComplexities() {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", c.Mode, c.Level, c.Multiplier, c.Description)
			}
			return tw.Flush()
		},
	}
}

func printPlan(w io.Writer, plan *quota.QuotaPlan) error {
	fmt.Fprintf(w, "地理范围: %s", plan.Geography)
	if plan.GeographyDetail != "" {
		fmt.Fprintf(w, " (%s)", plan.GeographyDetail)
	}
	fmt.Fprintf(w, "\n配额模式: %s  复杂度: %s  乘数: %.2f\n", plan.Mode, plan.Complexity.Level, plan.Complexity.Multiplier)
	fmt.Fprintf(w, "目标样本: %d  建议样本: %d  单元格: %d\n\n", plan.TargetSampleSize, plan.AdjustedSampleSize, plan.Structure.TotalCells)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCODE\tNAME\tPERCENT\tTARGET")
	for _, cell := range plan.Cells {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\n", cell.Category, cell.Code, cell.Name, cell.PopulationPercent, cell.TargetCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range plan.Warnings {
		fmt.Fprintf(w, "警告: %s\n", warning)
	}
	return nil
}
