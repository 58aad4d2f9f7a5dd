package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"recipeflow/internal/recipe"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderRecipe(r recipe.Recipe) string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString("\n")
	if r.Description != "" {
		b.WriteString(r.Description)
		b.WriteString("\n")
	}
	if r.VideoURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", r.VideoURL)
	}

	rows := make([][]string, 0, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		rows = append(rows, []string{strconv.Itoa(i + 1), ing.Name, string(ing.Amount), ing.Unit})
	}
	b.WriteString("\nIngredients\n")
	b.WriteString(renderTable([]string{"#", "Name", "Amount", "Unit"}, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	b.WriteString("\n")

	rows = make([][]string, 0, len(r.Steps))
	for i, step := range r.Steps {
		rows = append(rows, []string{strconv.Itoa(i + 1), step.Description})
	}
	b.WriteString("\nSteps\n")
	b.WriteString(renderTable([]string{"#", "Step"}, rows, []columnAlignment{alignRight, alignLeft}))
	b.WriteString("\n")
	return b.String()
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    72,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
