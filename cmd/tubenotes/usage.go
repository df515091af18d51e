package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the monthly API spend ledger",
	Long:  `Prints each recorded month's total spend from the usage ledger. With --export, additionally writes the full breakdown to an Excel workbook, one sheet per month.`,
	RunE:  runUsage,
}

var (
	usageConfigPath string
	usageExportPath string
)

func init() {
	usageCmd.Flags().StringVar(&usageConfigPath, "config", "", "Path to config.json file")
	usageCmd.Flags().StringVar(&usageExportPath, "export", "", "Write the ledger to this .xlsx file")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(_ *cobra.Command, _ []string) error {
	a, err := newApp(usageConfigPath, nil)
	if err != nil {
		return err
	}

	snapshot := a.usage.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("No usage recorded yet.")
	} else {
		months := make([]string, 0, len(snapshot))
		for m := range snapshot {
			months = append(months, m)
		}
		sort.Strings(months)
		for _, m := range months {
			fmt.Printf("%s  $%.4f  (%d calls)\n", m, snapshot[m].TotalCost, len(snapshot[m].Breakdown))
		}
		fmt.Printf("Monthly cap: $%.2f\n", a.usage.Limit)
	}

	if usageExportPath != "" {
		if err := a.usage.ExportXLSX(usageExportPath); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Ledger exported to %s\n", usageExportPath)
	}
	return nil
}
