package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/export"
	"github.com/hamed0406/storemonitor/internal/ingest"
	"github.com/hamed0406/storemonitor/internal/reconcile"
	"github.com/hamed0406/storemonitor/internal/repo/memory"
	"github.com/hamed0406/storemonitor/internal/scheduler"
)

type computeOpts struct {
	stores      []string
	now         string
	format      string
	out         string
	defaultTZ   string
	concurrency int
}

func newComputeCmd(g *globals) *cobra.Command {
	o := &computeOpts{}
	cmd := &cobra.Command{
		Use:   "compute <dir>",
		Short: "Compute a report locally from a CSV directory",
		Long: `compute loads the three CSV files into memory and prints report rows
without contacting the API. With --store only those stores are computed;
--now (RFC 3339) overrides the reference instant, which otherwise is the
latest poll in the data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(o.format)
			if err != nil {
				return err
			}
			rows, err := runCompute(cmd.Context(), g, o, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd, o.out, func(w io.Writer) error {
				return export.Write(w, format, rows)
			})
		},
	}
	cmd.Flags().StringSliceVar(&o.stores, "store", nil, "store id(s) to compute (default all)")
	cmd.Flags().StringVar(&o.now, "now", "", "reference instant, RFC 3339")
	cmd.Flags().StringVar(&o.format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&o.out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&o.defaultTZ, "default-timezone", domain.DefaultTimezone, "zone for stores without one")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 8, "stores computed in parallel")
	return cmd
}

func runCompute(ctx context.Context, g *globals, o *computeOpts, dir string) ([]domain.ReportRow, error) {
	log := g.logger()
	store := memory.New()
	ds, err := ingest.New(store, log, nil).Run(ctx, dir)
	if err != nil {
		return nil, err
	}
	if n := ds.Counts().Skipped; n > 0 {
		log.Sugar().Warnf("skipped %d invalid rows", n)
	}

	rec := reconcile.NewReconciler(log, store, store, store, o.defaultTZ)
	rep := scheduler.NewReporter(log, store, store, rec, 0, o.concurrency)

	var now time.Time
	if o.now != "" {
		if now, err = time.Parse(time.RFC3339Nano, o.now); err != nil {
			return nil, fmt.Errorf("--now: %w", err)
		}
		now = now.UTC()
	} else if now, err = rep.ReferenceInstant(ctx); err != nil {
		return nil, err
	}

	if len(o.stores) == 0 && o.now == "" {
		id, err := rep.Trigger(ctx)
		if err != nil {
			return nil, err
		}
		rep.Wait()
		r, err := store.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status == domain.ReportError {
			return nil, fmt.Errorf("report failed: %s", r.Error)
		}
		return store.ReportRows(ctx, id)
	}

	ids := make([]domain.StoreID, 0, len(o.stores))
	for _, s := range o.stores {
		ids = append(ids, domain.StoreID(s))
	}
	if len(ids) == 0 {
		if ids, err = store.StoreIDs(ctx); err != nil {
			return nil, err
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]domain.ReportRow, len(ids))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(o.concurrency, 1))
	for i, id := range ids {
		eg.Go(func() error {
			sr, err := rec.ComputeStore(gctx, id, now)
			if err != nil {
				return err
			}
			rows[i] = domain.NewReportRow("", sr)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
