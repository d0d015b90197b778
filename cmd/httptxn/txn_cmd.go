package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/httptxn/peer"
	"pkt.systems/httptxn/xid"
)

type beginResult struct {
	XidView        `yaml:",inline"`
	Location       string `json:"location" yaml:"location"`
	TimeoutSeconds int32  `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func newBeginCommand(app *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Begin a new transaction on the coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := durationSeconds(timeout)
			if err != nil {
				return err
			}
			return app.withPeer(cmd, func(ctx context.Context, p *peer.Peer) error {
				handle, err := p.Begin(ctx, seconds)
				if err != nil {
					return err
				}
				res := beginResult{
					XidView:        viewXid(handle.Xid()),
					Location:       handle.Location().String(),
					TimeoutSeconds: seconds,
				}
				return render(cmd.OutOrStdout(), app.output(), res, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, res.Xid)
					return err
				})
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "tx-timeout", 0, "transaction timeout on the coordinator, whole seconds (0 = coordinator default)")
	return cmd
}

func durationSeconds(d time.Duration) (int32, error) {
	if d < 0 {
		return 0, fmt.Errorf("--tx-timeout must be >= 0, got %s", d)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("--tx-timeout must be whole seconds, got %s", d)
	}
	secs := int64(d / time.Second)
	if secs > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("--tx-timeout %s is too large", d)
	}
	return int32(secs), nil
}

type recoverResult struct {
	Parent string    `json:"parent" yaml:"parent"`
	Flags  string    `json:"flags" yaml:"flags"`
	Count  int       `json:"count" yaml:"count"`
	Xids   []XidView `json:"xids" yaml:"xids"`
}

func newRecoverCommand(app *cli) *cobra.Command {
	var parent, flagSpec string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "List in-doubt transaction branches recorded under a parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flag, err := parseScanFlags(flagSpec)
			if err != nil {
				return err
			}
			return app.withPeer(cmd, func(ctx context.Context, p *peer.Peer) error {
				list, err := p.Recover(ctx, flag, parent)
				if err != nil {
					return err
				}
				res := recoverResult{
					Parent: parent,
					Flags:  formatScanFlags(flag),
					Count:  len(list),
					Xids:   make([]XidView, 0, len(list)),
				}
				for _, id := range list {
					res.Xids = append(res.Xids, viewXid(id))
				}
				return render(cmd.OutOrStdout(), app.output(), res, func(w io.Writer) error {
					for _, v := range res.Xids {
						if _, err := fmt.Fprintln(w, v.Xid); err != nil {
							return err
						}
					}
					_, err := fmt.Fprintf(cmd.ErrOrStderr(), "recovered %s xid(s) for %q\n", humanize.Comma(int64(res.Count)), parent)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "recovery parent name")
	cmd.Flags().StringVar(&flagSpec, "flags", "start,end", "scan flags: none, start, end, start,end, or a raw integer")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

// parseScanFlags accepts "none", "start", "end", comma-separated combinations
// of those, or a raw integer.
func parseScanFlags(raw string) (int32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return xid.TMNoFlags, nil
	}
	if n, err := strconv.ParseInt(raw, 0, 32); err == nil {
		return int32(n), nil
	}
	var flag int32
	for _, part := range strings.Split(raw, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "none", "":
		case "start":
			flag |= xid.TMStartRScan
		case "end":
			flag |= xid.TMEndRScan
		default:
			return 0, fmt.Errorf("unknown scan flag %q (none|start|end)", part)
		}
	}
	return flag, nil
}

func formatScanFlags(flag int32) string {
	var parts []string
	if flag&xid.TMStartRScan != 0 {
		parts = append(parts, "start")
	}
	if flag&xid.TMEndRScan != 0 {
		parts = append(parts, "end")
	}
	if rest := flag &^ (xid.TMStartRScan | xid.TMEndRScan); rest != 0 {
		parts = append(parts, strconv.FormatInt(int64(rest), 10))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

type lookupResult struct {
	XidView  `yaml:",inline"`
	Location string `json:"location" yaml:"location"`
}

func newLookupCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <format:global-hex:branch-hex>",
		Short: "Bind a subordinate handle to a known Xid (no coordinator round trip)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := xid.Parse(args[0])
			if err != nil {
				return err
			}
			return app.withPeer(cmd, func(_ context.Context, p *peer.Peer) error {
				handle := p.LookupXid(id)
				res := lookupResult{
					XidView:  viewXid(handle.Xid()),
					Location: handle.Location().String(),
				}
				return render(cmd.OutOrStdout(), app.output(), res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s @ %s\n", res.Xid, res.Location)
					return err
				})
			})
		},
	}
}
