package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/zhe.chen/manifest-compiler/internal/client"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func scenesTable(m *manifest.ProductionManifest) string {
	rows := make([][]string, 0, len(m.Scenes))
	for _, s := range m.Scenes {
		rows = append(rows, []string{
			s.ID,
			s.Purpose,
			formatSeconds(s.StartAtSec),
			formatSeconds(s.DurationSeconds),
			strings.Join(s.Effects.EffectIDs(), ", "),
		})
	}
	return renderTable(
		[]string{"Scene", "Purpose", "Start", "Duration", "Effects"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func jobsTable(js []manifest.Job) string {
	rows := make([][]string, 0, len(js))
	for _, j := range js {
		rows = append(rows, []string{
			j.ID,
			string(j.Type),
			fmt.Sprintf("%d", j.Priority),
			strings.Join(j.DependsOn, ", "),
		})
	}
	return renderTable(
		[]string{"Job", "Type", "Priority", "Depends On"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func violationsTable(vs []validate.Violation) string {
	rows := make([][]string, 0, len(vs))
	for _, v := range vs {
		rows = append(rows, []string{string(v.Severity), v.Rule, v.Path, v.Message})
	}
	return renderTable([]string{"Severity", "Rule", "Path", "Message"}, rows, nil)
}

func outcomesTable(r *client.Report) string {
	rows := make([][]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		detail := o.ResultURL
		if o.Error != "" {
			detail = o.Error
		}
		rows = append(rows, []string{
			o.JobID,
			string(o.Status),
			fmt.Sprintf("%d", o.Attempts),
			o.Tool,
			detail,
		})
	}
	return renderTable(
		[]string{"Job", "Status", "Attempts", "Tool", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.2fs", s)
}
