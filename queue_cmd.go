package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	clearCmd = &cobra.Command{
		Use:   "clear [INSTANCE]",
		Short: "Drop pending announcements",
		Long:  paragraph(fmt.Sprintf("\n%s every pending announcement of an instance. The one playing keeps playing; use skip for that.", keyword("Drop"))),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			c := newClient()
			name, err := instanceArg(ctx, c, args)
			if err != nil {
				return err
			}
			dropped, err := c.Clear(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d pending on %s\n", keyword("Cleared"), dropped, bright(name))
			return nil
		},
	}

	skipCmd = &cobra.Command{
		Use:   "skip [INSTANCE]",
		Short: "Stop the current announcement",
		Long:  paragraph(fmt.Sprintf("\n%s the announcement playing on an instance and move on to the next one. Pending announcements are kept.", keyword("Stop"))),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			c := newClient()
			name, err := instanceArg(ctx, c, args)
			if err != nil {
				return err
			}
			resp, err := c.Skip(ctx, name)
			if err != nil {
				return err
			}
			if resp.Skipped == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing playing on %s; sent stop\n", bright(name))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s\n", keyword("Skipped"), shortID(resp.Skipped), bright(name))
			return nil
		},
	}
)

type instanceLister interface {
	Instances(ctx context.Context) ([]daemon.InstanceStatus, error)
}

// instanceArg returns the named instance, or the daemon's first instance
// when none was given.
func instanceArg(ctx context.Context, c instanceLister, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	all, err := c.Instances(ctx)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", errors.New("the daemon has no instances")
	}
	return all[0].Name, nil
}
