// Package reconcile drives field synchronisation across the stores of one or
// more installations. Stores are handled one at a time in the order given.
package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/maloquacious/telesync/internal/compare"
	"github.com/maloquacious/telesync/internal/discover"
	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/logger"
	"github.com/maloquacious/telesync/internal/store"
	"github.com/maloquacious/telesync/internal/store/jsonfile"
	"github.com/maloquacious/telesync/internal/store/sqlite"
)

// Group is a set of stores that must agree with each other, usually one
// editor installation.
type Group struct {
	Name string
	// Stores carry identity fields. The first readable one with any fields
	// is the reference in reconcile mode.
	Stores []store.Store
	// Extra stores are only touched by a purge.
	Extra []store.Store
}

// Open returns the store implementation for path, chosen by file name.
func Open(path string) store.Store {
	if isJSON(path) {
		return jsonfile.New(path)
	}
	return sqlite.New(path)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// FromInstallations builds one Group per installation.
func FromInstallations(insts []discover.Installation) []Group {
	groups := make([]Group, 0, len(insts))
	for _, inst := range insts {
		g := Group{Name: inst.Product}
		for _, p := range inst.GlobalStores() {
			g.Stores = append(g.Stores, Open(p))
		}
		for _, p := range inst.WorkspaceDBs {
			g.Extra = append(g.Extra, Open(p))
		}
		groups = append(groups, g)
	}
	return groups
}

// FromPaths builds a single Group from explicit store paths, in order.
func FromPaths(name string, paths []string) Group {
	g := Group{Name: name}
	for _, p := range paths {
		g.Stores = append(g.Stores, Open(p))
	}
	return g
}

// Options controls a run.
type Options struct {
	DryRun      bool
	GenerateNew bool // write fresh values instead of reconciling against the reference
	Backup      bool
	Lock        bool
	Purge       []string      // LIKE patterns; empty disables the purge
	Timeout     time.Duration // per store operation; zero means none

	Generator fields.Generator
	Now       func() time.Time
	Log       logger.Logger
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) log() logger.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.Nop
}

func (o Options) storeOptions() store.Options {
	return store.Options{
		Commit: !o.DryRun,
		Backup: o.Backup,
		Lock:   o.Lock,
		Purge:  o.Purge,
		Now:    o.Now,
		Log:    o.Log,
	}
}

func (o Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

type readable struct {
	s   store.Store
	set fields.Set
}

// snapshot reads every store of g. Stores that fail are recorded in the report
// and left out of the returned slice.
func snapshot(ctx context.Context, g Group, opts Options, rep *Report) []readable {
	log := opts.log()
	var out []readable
	for _, s := range g.Stores {
		rctx, cancel := opts.withTimeout(ctx)
		set, err := s.Read(rctx, fields.All)
		cancel()
		if err != nil {
			log.Warn("%s: skipped: %v", s.Path(), err)
			rep.Outcomes = append(rep.Outcomes, Outcome{
				Group: g.Name, Path: s.Path(), Kind: s.Kind(), Status: Classify(err), Err: err,
			})
			continue
		}
		log.Debug("%s: read %d field(s)", s.Path(), set.Len())
		rep.Snapshots = append(rep.Snapshots, Snapshot{Group: g.Name, Path: s.Path(), Kind: s.Kind(), Set: set})
		out = append(out, readable{s: s, set: set})
	}
	return out
}

func reference(stores []readable) (readable, bool) {
	for _, r := range stores {
		if r.set.Len() > 0 {
			return r, true
		}
	}
	return readable{}, false
}

// Run synchronises every group and returns the aggregated report.
func Run(ctx context.Context, groups []Group, opts Options) Report {
	log := opts.log()
	rep := Report{DryRun: opts.DryRun}

	for _, g := range groups {
		log.Info("%s: %d store(s)", g.Name, len(g.Stores))
		stores := snapshot(ctx, g, opts, &rep)

		var target fields.Set
		var ref readable
		hasRef := false
		if opts.GenerateNew {
			set, err := opts.Generator.Generate(opts.now())
			if err != nil {
				log.Error("%s: %v", g.Name, err)
				for _, r := range stores {
					rep.Outcomes = append(rep.Outcomes, Outcome{
						Group: g.Name, Path: r.s.Path(), Kind: r.s.Kind(), Status: StatusFailed, Err: err,
					})
				}
				continue
			}
			target = set
		} else {
			ref, hasRef = reference(stores)
			if !hasRef {
				log.Warn("%s: no store holds identity fields; nothing to reconcile", g.Name)
			}
			target = ref.set
		}

		for _, r := range stores {
			isRef := hasRef && r.s.Path() == ref.s.Path()
			o := Outcome{Group: g.Name, Path: r.s.Path(), Kind: r.s.Kind(), Reference: isRef}

			var res store.Result
			var err error
			sctx, cancel := opts.withTimeout(ctx)
			switch {
			case opts.GenerateNew || (hasRef && !isRef):
				res, err = store.Apply(sctx, r.s, target, opts.storeOptions())
			case len(opts.Purge) > 0:
				res, err = store.PurgeStore(sctx, r.s, opts.Purge, opts.storeOptions())
			}
			cancel()

			fill(&o, res, err)
			if err != nil {
				log.Error("%s: %v", r.s.Path(), err)
			}
			rep.Outcomes = append(rep.Outcomes, o)
		}

		if len(opts.Purge) > 0 {
			for _, s := range g.Extra {
				o := Outcome{Group: g.Name, Path: s.Path(), Kind: s.Kind()}
				sctx, cancel := opts.withTimeout(ctx)
				res, err := store.PurgeStore(sctx, s, opts.Purge, opts.storeOptions())
				cancel()
				fill(&o, res, err)
				if err != nil {
					log.Error("%s: %v", s.Path(), err)
				}
				rep.Outcomes = append(rep.Outcomes, o)
			}
		}
	}
	return rep
}

func fill(o *Outcome, res store.Result, err error) {
	o.Status = Classify(err)
	o.Err = err
	o.Changed = res.Changed
	o.BackupPath = res.BackupPath
	o.Purged = res.Purged
	for _, n := range fields.All {
		if _, failed := res.Failed[n]; failed {
			o.Failed = append(o.Failed, n)
		}
	}
}

// Purge deletes keys matching opts.Purge from every store of every group,
// extra stores included. Identity fields are never touched.
func Purge(ctx context.Context, groups []Group, opts Options) Report {
	log := opts.log()
	rep := Report{DryRun: opts.DryRun}
	for _, g := range groups {
		for _, s := range append(append([]store.Store(nil), g.Stores...), g.Extra...) {
			o := Outcome{Group: g.Name, Path: s.Path(), Kind: s.Kind()}
			sctx, cancel := opts.withTimeout(ctx)
			res, err := store.PurgeStore(sctx, s, opts.Purge, opts.storeOptions())
			cancel()
			fill(&o, res, err)
			if err != nil {
				log.Error("%s: %v", s.Path(), err)
			}
			rep.Outcomes = append(rep.Outcomes, o)
		}
	}
	return rep
}

// Check reads every group and compares its reference store against each other
// readable store. Nothing is written.
func Check(ctx context.Context, groups []Group, opts Options) Report {
	rep := Report{DryRun: true}
	for _, g := range groups {
		stores := snapshot(ctx, g, opts, &rep)
		ref, ok := reference(stores)
		for _, r := range stores {
			rep.Outcomes = append(rep.Outcomes, Outcome{
				Group: g.Name, Path: r.s.Path(), Kind: r.s.Kind(), Status: StatusOK,
				Reference: ok && r.s.Path() == ref.s.Path(),
			})
			if !ok || r.s.Path() == ref.s.Path() {
				continue
			}
			rep.Comparisons = append(rep.Comparisons, Comparison{
				Group:  g.Name,
				First:  ref.s.Path(),
				Second: r.s.Path(),
				Labels: labels(ref.s.Kind(), r.s.Kind()),
				Result: compare.Compare(ref.set, r.set, fields.All),
			})
		}
	}
	return rep
}

func labels(first, second store.Kind) compare.Labels {
	if first == second {
		return compare.Labels{First: "reference", Second: "candidate"}
	}
	return compare.Labels{First: first.String(), Second: second.String()}
}
