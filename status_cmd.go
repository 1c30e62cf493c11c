package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
)

var (
	statusJSON bool

	statusCmd = &cobra.Command{
		Use:   "status [INSTANCE]",
		Short: "Show instance queues",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			c := newClient()
			var instances []daemon.InstanceStatus
			if len(args) == 1 {
				st, err := c.Instance(ctx, args[0])
				if err != nil {
					return err
				}
				instances = []daemon.InstanceStatus{st}
			} else {
				all, err := c.Instances(ctx)
				if err != nil {
					return err
				}
				instances = all
			}

			if statusJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(instances)
			}
			renderStatus(cmd.OutOrStdout(), instances, time.Now(), terminalWidth())
			return nil
		},
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status as JSON")
}

// renderStatus writes one table row per instance, followed by the pending
// announcements of each instance that has any.
func renderStatus(w io.Writer, instances []daemon.InstanceStatus, now time.Time, width int) {
	if len(instances) == 0 {
		fmt.Fprintln(w, "No instances configured.")
		return
	}

	msgWidth := uint(max(width-70, 16)) //nolint:gosec

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Instance", "Target", "State", "Since", "Queue", "Current", "Last", "Done", "Failed"})
	for _, st := range instances {
		current := "-"
		if st.Current != nil {
			current = truncate.StringWithTail(st.Current.Message, msgWidth, "…")
		}
		last := "-"
		if f := st.LastFinished; f != nil {
			last = f.Outcome + " " + humanize.RelTime(f.FinishedAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{
			st.Name,
			st.Target,
			st.State,
			humanize.RelTime(st.StateSince, now, "ago", "from now"),
			st.QueueSize,
			current,
			last,
			humanize.Comma(st.Processed),
			humanize.Comma(st.Failed),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	tw.Render()

	for _, st := range instances {
		if len(st.Pending) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%d pending on %s\n", len(st.Pending), st.Name)
		for i, a := range st.Pending {
			fmt.Fprintf(w, "  %2d. [p%d] %s %s\n", i+1, a.Priority,
				truncate.StringWithTail(a.Message, uint(max(width-30, 16)), "…"), //nolint:gosec
				humanize.RelTime(a.EnqueuedAt, now, "ago", "from now"))
		}
	}
}
