package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/installer"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/registry"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// shortDigest trims a digest for table output.
func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

type cycleSummary struct {
	Cycle       string   `json:"cycle,omitempty"`
	Changes     int      `json:"changes"`
	Transformed int      `json:"transformed"`
	Denied      int      `json:"denied"`
	Executed    int      `json:"executed"`
	Failures    []string `json:"failures,omitempty"`
	Saved       bool     `json:"saved"`
}

func printCycle(w io.Writer, report *installer.CycleReport) error {
	s := cycleSummary{
		Changes:     report.Changes,
		Transformed: report.Transformed,
		Denied:      report.Denied,
		Saved:       report.Saved,
	}
	if c := report.Cycle; c != nil {
		s.Cycle = c.ID
		s.Executed = c.Executed
		for _, f := range c.Failures {
			s.Failures = append(s.Failures, fmt.Sprintf("%s: %v", f.Task.SortKey(), f.Err))
		}
	}

	if jsonOutput {
		return printJSON(w, s)
	}

	fmt.Fprintf(w, "Changes:     %d\n", s.Changes)
	fmt.Fprintf(w, "Transformed: %d\n", s.Transformed)
	fmt.Fprintf(w, "Denied:      %d\n", s.Denied)
	fmt.Fprintf(w, "Executed:    %d\n", s.Executed)
	fmt.Fprintf(w, "Saved:       %t\n", s.Saved)
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "Failures:\n  %s\n", strings.Join(s.Failures, "\n  "))
	}
	return nil
}

type resourceRow struct {
	EntityID string `json:"entity_id,omitempty"`
	Active   bool   `json:"active"`
	State    string `json:"state"`
	Type     string `json:"type"`
	Version  string `json:"version,omitempty"`
	Priority int    `json:"priority"`
	URL      string `json:"url"`
	Digest   string `json:"digest"`
}

func registryRows(reg *registry.PersistentResourceList) []resourceRow {
	var rows []resourceRow
	for _, id := range reg.EntityIDs() {
		group := reg.EntityResourceList(id)
		active := group.Active()
		for _, r := range group.Resources() {
			rows = append(rows, resourceRow{
				EntityID: id,
				Active:   r == active,
				State:    string(r.State),
				Type:     r.Type,
				Version:  r.Version,
				Priority: r.Priority,
				URL:      r.URL,
				Digest:   r.Digest,
			})
		}
	}
	for _, r := range reg.UntransformedResources() {
		rows = append(rows, resourceRow{
			State:    string(r.State),
			Type:     r.Type,
			Priority: r.Priority,
			URL:      r.URL,
			Digest:   r.Digest,
		})
	}
	return rows
}

func printRegistry(w io.Writer, reg *registry.PersistentResourceList) error {
	rows := registryRows(reg)
	if jsonOutput {
		return printJSON(w, rows)
	}

	t := newTable(w, table.Row{"Entity", "", "State", "Type", "Version", "Priority", "URL", "Digest"})
	for _, r := range rows {
		marker := ""
		if r.Active {
			marker = "*"
		}
		entity := r.EntityID
		if entity == "" {
			entity = "(untransformed)"
		}
		t.AppendRow(table.Row{entity, marker, r.State, r.Type, r.Version, r.Priority, r.URL, shortDigest(r.Digest)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	t.Render()
	return nil
}
