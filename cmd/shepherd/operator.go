package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/shepherd/pkg/client"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("api")
	return client.NewClient(addr)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		r, err := newClient(cmd).Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Node:      %s\n", r.Node)
		fmt.Printf("Leader:    %t\n", r.Leader)
		fmt.Printf("Phase:     %s\n", r.Phase)
		fmt.Printf("Status:    %s (%s)\n", r.Status, r.Status.Message)
		fmt.Printf("Readiness: %s\n", r.Readiness)
		fmt.Printf("Lock:      %s\n", r.Lock)
		if r.Holder != "" {
			fmt.Printf("Holder:    %s\n", r.Holder)
		}
		if len(r.Deferred) > 0 {
			fmt.Printf("Deferred:  %s\n", strings.Join(r.Deferred, ", "))
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NODE\tORDINAL\tHOST\tLOCAL")
		for _, n := range r.Nodes {
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", n.Name, n.Ordinal, n.Host, n.Local)
		}
		return w.Flush()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the node diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		h, err := newClient(cmd).Health(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Verdict: %s\n\n", h.Verdict)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CHECK\tHEALTHY\tATTEMPTS\tMESSAGE")
		for _, c := range h.Checks {
			fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", c.Name, c.Healthy, c.Attempts, c.Message)
		}
		return w.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent event deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		notices, err := newClient(cmd).Notices(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tOUTCOME\tATTEMPTS\tERROR")
		for _, n := range notices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				n.Event.Timestamp.Format(time.RFC3339), n.Event.Kind, n.Outcome, n.Event.Attempts, n.Error)
		}
		return w.Flush()
	},
}

var eventCmd = &cobra.Command{
	Use:   "event KIND",
	Short: "Deliver a lifecycle event to the agent",
	Long:  "Deliver a lifecycle event to the agent. Kinds: " + kindList() + ".",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := events.ParseKind(args[0])
		if err != nil {
			return err
		}
		meta, _ := cmd.Flags().GetStringToString("meta")

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		acc, err := newClient(cmd).SendEvent(ctx, kind, meta)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s accepted (%s)\n", acc.Kind, acc.ID)
		return nil
	},
}

var rollingRestartCmd = &cobra.Command{
	Use:   "rolling-restart",
	Short: "Restart every node in turn (leader only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		acc, err := newClient(cmd).RollingRestart(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Rolling restart requested (%s)\n", acc.ID)
		return nil
	},
}

func kindList() string {
	names := make([]string, len(events.Kinds))
	for i, k := range events.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
