package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
	"github.com/SmitUplenchwar2687/Folio/internal/recorder"
	"github.com/SmitUplenchwar2687/Folio/internal/replay"
	"github.com/SmitUplenchwar2687/Folio/internal/storage"
)

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Work with recorded usage events",
	}

	var outputJSON bool
	summarize := &cobra.Command{
		Use:   "summarize FILE",
		Short: "Summarize a usage file written by serve --record",
		Example: `  folio usage summarize usage.json
  folio usage summarize usage.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := recorder.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading usage events: %w", err)
			}
			summary := recorder.Summarize(events)

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(out, "%d events, %d keys\n\n", len(events), len(summary))
			var allowed, denied int
			for _, ks := range summary {
				fmt.Fprintf(out, "  %s: %d allowed, %d denied, %d errors, last count %d\n",
					ks.Key, ks.Allowed, ks.Denied, ks.Errors, ks.LastCount)
				allowed += ks.Allowed
				denied += ks.Denied
			}
			if denied > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.Repeat("=", 50))
				fmt.Fprintf(out, "Deny rate: %.1f%% (%d/%d uses denied)\n",
					float64(denied)/float64(allowed+denied)*100, denied, allowed+denied)
				fmt.Fprintln(out, strings.Repeat("=", 50))
			}
			return nil
		},
	}
	summarize.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	cmd.AddCommand(summarize, newUsageReplayCmd())
	return cmd
}

func newUsageReplayCmd() *cobra.Command {
	var (
		limit      int64
		speed      float64
		ips        []string
		userIDs    []string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay recorded usage against a different daily limit",
		Long: `Replays the use attempts in a file written by serve --record through a
fresh in-memory accountant with the given limit. The virtual clock follows
the recorded timestamps, so UTC day windows roll over exactly as they did
in production, at any speed you choose.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  folio usage replay usage.json --limit 5
  folio usage replay usage.json --limit 1 --ip 203.0.113.7 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := recorder.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading usage events: %w", err)
			}

			vc := clock.NewVirtualClock(time.Unix(0, 0).UTC())
			store, err := storage.NewMemoryStore(&storage.MemoryConfig{Clock: vc, CleanupInterval: time.Hour})
			if err != nil {
				return err
			}
			defer store.Close()

			opts := quota.DefaultOptions(vc)
			opts.Limit = limit
			// Recorded attempts already passed identification.
			opts.RequireKnownClient = false
			acct, err := quota.New(store, opts)
			if err != nil {
				return err
			}

			r := replay.New(acct, vc, speed, replay.Filter{IPs: ips, UserIDs: userIDs})
			r.LoadEvents(events)

			out := cmd.OutOrStdout()
			var results []replay.Result
			summary, err := r.Run(cmd.Context(), func(res replay.Result) {
				if outputJSON {
					results = append(results, res)
					return
				}
				status := "ALLOW"
				if !res.Allowed {
					status = "DENY "
				}
				changed := ""
				if res.Changed {
					changed = " (changed)"
				}
				fmt.Fprintf(out, "  [%s] %s %s count=%d/%d%s\n",
					status,
					res.Time.Format(time.DateTime),
					res.Event.IP,
					res.State.Count,
					res.State.Limit,
					changed)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"results": results,
					"summary": summary,
				})
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "--- Replay Summary ---")
			fmt.Fprintf(out, "  Total events:   %d\n", summary.TotalEvents)
			fmt.Fprintf(out, "  Use attempts:   %d\n", summary.Attempts)
			fmt.Fprintf(out, "  Replayed:       %d\n", summary.Replayed)
			fmt.Fprintf(out, "  Allowed:        %d\n", summary.Allowed)
			fmt.Fprintf(out, "  Denied:         %d\n", summary.Denied)
			fmt.Fprintf(out, "  Changed:        %d\n", summary.Changed)
			fmt.Fprintf(out, "  Virtual time:   %s\n", summary.Duration)
			fmt.Fprintf(out, "  Wall time:      %s\n", summary.WallDuration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", quota.DefaultLimit, "daily limit to evaluate")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&ips, "ip", nil, "only replay these client IPs")
	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "only replay these user tokens")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}
