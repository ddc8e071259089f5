package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
	"github.com/SmitUplenchwar2687/Folio/internal/storage"
)

type quotaOptions struct {
	ip         string
	userID     string
	outputJSON bool
	storage    storageOptions
}

func newQuotaCmd(g *globalOptions) *cobra.Command {
	opts := &quotaOptions{}

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or record usage for a client directly against storage",
		Long: `Reads or records usage for one client without going through HTTP. Uses
the same config, storage backend and key layout as the server, which makes
it useful for support and for checking a Redis or SQLite deployment.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print a client's usage for today",
		Example: `  folio quota show --ip 203.0.113.7
  folio quota show --ip 203.0.113.7 --user 5f0c... --storage redis --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuota(cmd, g, opts, false)
		},
	}
	track := &cobra.Command{
		Use:   "track",
		Short: "Record one use for a client",
		Example: `  folio quota track --ip 203.0.113.7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuota(cmd, g, opts, true)
		},
	}

	for _, sub := range []*cobra.Command{show, track} {
		sub.Flags().StringVar(&opts.ip, "ip", "", "client IP address (required)")
		sub.Flags().StringVar(&opts.userID, "user", "", "client user token")
		sub.Flags().BoolVar(&opts.outputJSON, "json", false, "output as JSON")
		opts.storage.addFlags(sub)
		_ = sub.MarkFlagRequired("ip")
		cmd.AddCommand(sub)
	}

	return cmd
}

func runQuota(cmd *cobra.Command, g *globalOptions, opts *quotaOptions, record bool) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if err := opts.storage.applyTo(cmd, &cfg.Storage); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	clk := clock.NewRealClock()
	store, err := storage.Open(cfg.Storage, clk)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	acct, err := newAccountant(cfg, store, clk, nil)
	if err != nil {
		return err
	}

	client := identity.Client{IP: opts.ip, UserID: opts.userID}
	key, _ := acct.Key(client)

	var st quota.State
	if record {
		st, err = acct.RecordUse(cmd.Context(), client)
	} else {
		st, err = acct.QueryState(cmd.Context(), client)
	}
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		st = exceeded.State
	} else if err != nil {
		return err
	}

	return printQuota(cmd.OutOrStdout(), key, st, exceeded != nil, opts.outputJSON)
}

func printQuota(w io.Writer, key string, st quota.State, denied, asJSON bool) error {
	if asJSON {
		out := struct {
			Key string `json:"key"`
			quota.State
			Remaining int64 `json:"remaining"`
			Denied    bool  `json:"denied,omitempty"`
		}{Key: key, State: st, Remaining: st.Remaining(), Denied: denied}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	status := "OK    "
	switch {
	case denied:
		status = "DENIED"
	case st.Exhausted():
		status = "FULL  "
	}
	_, err := fmt.Fprintf(w, "[%s] key=%s count=%d/%d remaining=%d date=%s\n",
		status, key, st.Count, st.Limit, st.Remaining(), st.Date)
	return err
}
