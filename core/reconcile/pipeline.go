// Package reconcile runs the per-carrier pricing reconciliation: load the
// device list, build support and rebate indexes per plan group, load the
// policy snapshot, and price every requested (model, plan group, opening
// type) triple.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"subsidy-recon/core/determinism"
	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
	"subsidy-recon/core/policy"
	"subsidy-recon/core/subsidy"
	"subsidy-recon/core/tables"
	errs "subsidy-recon/internal/errors"
	"subsidy-recon/internal/logging"
)

// Carrier describes where one carrier's tables live
type Carrier struct {
	Name        string
	ModelsRange string

	// SupportRanges and RebateRanges map plan group to range reference
	SupportRanges map[string]string
	RebateRanges  map[string]string

	// Policy table ranges; an empty reference skips that table
	MarginRange    string
	AddonsRange    string
	InsuranceRange string
	SpecialsRange  string

	// PolicyOverride replaces the tabular policy when set
	PolicyOverride *policy.Settings

	PreferFlipFoldInsurance bool
	PlanGroups              subsidy.PlanGroups

	// CanonicalOrderRange lists model codes in display order, first column
	CanonicalOrderRange string
}

// Request selects what to price. Empty fields mean everything.
type Request struct {
	Carriers     []string
	PlanGroups   []string
	OpeningTypes []opening.Type
	Models       []string

	// CanonicalOrder overrides a carrier's configured order range
	CanonicalOrder map[string][]string
}

// Pipeline prices carriers against a tabular source
type Pipeline struct {
	source      tables.Source
	carriers    map[string]Carrier
	order       []string
	logger      *zap.Logger
	misses      *logging.Throttle
	parallelism int
	observe     func(carrier string, s State)
	now         func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMissThrottle shares one lookup-miss throttle across every index
func WithMissThrottle(th *logging.Throttle) Option {
	return func(p *Pipeline) { p.misses = th }
}

// WithParallelism bounds how many carriers run at once
func WithParallelism(n int) Option {
	return func(p *Pipeline) { p.parallelism = n }
}

// WithStateObserver is called on every carrier state transition
func WithStateObserver(fn func(carrier string, s State)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// New creates a pipeline. source is normally a gateway.Tables.
func New(source tables.Source, carriers []Carrier, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:      source,
		carriers:    make(map[string]Carrier, len(carriers)),
		parallelism: 4,
		now:         time.Now,
	}
	for _, c := range carriers {
		if _, dup := p.carriers[c.Name]; !dup {
			p.order = append(p.order, c.Name)
		}
		p.carriers[c.Name] = c
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrDefault(p.logger, "reconcile")
	if p.misses == nil {
		p.misses = logging.NewThrottle(keyindex.DefaultMissCooldown)
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	return p
}

// Carriers returns configured carrier names in configuration order
func (p *Pipeline) Carriers() []string {
	return append([]string(nil), p.order...)
}

// CarrierConfig returns one carrier's configuration
func (p *Pipeline) CarrierConfig(name string) (Carrier, bool) {
	c, ok := p.carriers[name]
	return c, ok
}

// Run prices every requested carrier. A carrier whose data cannot be loaded
// ends Failed with no results; the run itself only fails on a bad request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	names := req.Carriers
	if len(names) == 0 {
		names = p.order
	}
	for _, n := range names {
		if _, ok := p.carriers[n]; !ok {
			return nil, errs.Input(fmt.Sprintf("unknown carrier %q", n))
		}
	}
	for _, t := range req.OpeningTypes {
		if t.Expand() == nil {
			return nil, errs.Input(fmt.Sprintf("unknown opening type %d", int(t)))
		}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Carriers:  make([]CarrierReport, len(names)),
	}
	log := p.logger.With(zap.String("run_id", report.RunID))
	log.Info("reconciliation started", zap.Strings("carriers", names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, name := range names {
		g.Go(func() error {
			report.Carriers[i] = p.runCarrier(gctx, log, p.carriers[name], req)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = p.now()
	log.Info("reconciliation finished",
		zap.Int("results", len(report.Results())),
		zap.Strings("degraded", report.Degraded()),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (p *Pipeline) runCarrier(ctx context.Context, log *zap.Logger, c Carrier, req Request) (cr CarrierReport) {
	start := p.now()
	log = log.With(zap.String("carrier", c.Name))
	cr = CarrierReport{Carrier: c.Name, State: Idle}

	set := func(s State) {
		cr.State = s
		log.Debug("carrier state", zap.Stringer("state", s))
		if p.observe != nil {
			p.observe(c.Name, s)
		}
	}
	fail := func(table string, err error) CarrierReport {
		cr.Results = nil
		cr.Err = err
		cr.Error = err.Error()
		cr.Retryable = errs.IsRetryable(err)
		set(Failed)
		log.Warn("carrier degraded to empty result",
			zap.String("table", table),
			zap.String("error_type", string(errs.TypeOf(err))),
			zap.Bool("fatal", errs.IsFatal(err)),
			zap.Error(err))
		cr.Duration = p.now().Sub(start)
		return cr
	}

	set(LoadingModels)
	devices, err := p.loadDevices(ctx, c, &cr)
	if err != nil {
		return fail(string(tables.KindModels), err)
	}
	devices = filterModels(devices, req.Models)
	p.applyOrder(ctx, c, req, devices, &cr)
	devices = determinism.DedupeFirst(devices, func(d tables.Device) string { return d.NormalizedCode })
	cr.Devices = len(devices)

	set(BuildingIndexes)
	groups := planGroups(c, req)
	support, rebate := p.loadIndexes(ctx, c, groups, &cr)
	settings, err := p.loadPolicy(ctx, c, &cr)
	if err != nil {
		return fail("policy", err)
	}

	set(Calculating)
	calc := subsidy.NewCalculator(c.Name, settings, support, rebate, c.PlanGroups)
	types := req.OpeningTypes
	if len(types) == 0 {
		types = opening.Concrete
	}
	for _, d := range devices {
		for _, group := range deviceGroups(d, c, req) {
			for _, t := range types {
				cr.Results = append(cr.Results, calc.ComputeAll(d, group, t)...)
			}
		}
	}

	set(Done)
	cr.Duration = p.now().Sub(start)
	log.Info("carrier priced",
		zap.Int("devices", cr.Devices),
		zap.Int("results", len(cr.Results)),
		zap.Int("warnings", len(cr.Warnings)),
		zap.Duration("duration", cr.Duration))
	return cr
}

func (p *Pipeline) loadDevices(ctx context.Context, c Carrier, cr *CarrierReport) ([]tables.Device, error) {
	if c.ModelsRange == "" {
		return nil, errs.Config(fmt.Sprintf("carrier %s has no models range", c.Name))
	}
	rows, err := p.source.Get(ctx, c.ModelsRange)
	if err != nil {
		return nil, err
	}
	devices, issues, err := tables.Devices(rows)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		cr.warn(string(tables.KindModels), is.String())
	}
	return devices, nil
}

func filterModels(devices []tables.Device, models []string) []tables.Device {
	if len(models) == 0 {
		return devices
	}
	want := make(map[string]struct{}, len(models))
	for _, m := range models {
		want[modelkey.Normalize(m)] = struct{}{}
	}
	out := devices[:0:0]
	for _, d := range devices {
		if _, ok := want[d.NormalizedCode]; ok {
			out = append(out, d)
		}
	}
	return out
}

// applyOrder sorts devices by the caller's canonical order, or the carrier's
// configured order range. Without either, source order stands.
func (p *Pipeline) applyOrder(ctx context.Context, c Carrier, req Request, devices []tables.Device, cr *CarrierReport) {
	order, ok := req.CanonicalOrder[c.Name]
	if !ok && c.CanonicalOrderRange != "" {
		rows, err := p.source.Get(ctx, c.CanonicalOrderRange)
		if err != nil {
			cr.warn("canonical_order", fmt.Sprintf("using source order: %v", err))
		} else {
			_, body := tables.SplitHeader(rows)
			for _, row := range body {
				if len(row) > 0 {
					order = append(order, tables.CellString(row[0]))
				}
			}
		}
	}
	if len(order) == 0 {
		return
	}
	normalized := make([]string, len(order))
	for i, code := range order {
		normalized[i] = modelkey.Normalize(code)
	}
	determinism.OrderBy(devices, normalized, func(d tables.Device) string { return d.NormalizedCode })
}

// planGroups lists the groups whose tables must be indexed
func planGroups(c Carrier, req Request) []string {
	if len(req.PlanGroups) > 0 {
		return req.PlanGroups
	}
	groups := []string{c.PlanGroups.Default}
	if c.PlanGroups.Budget != "" && c.PlanGroups.Budget != c.PlanGroups.Default {
		groups = append(groups, c.PlanGroups.Budget)
	}
	return groups
}

// deviceGroups lists the groups one device is priced under
func deviceGroups(d tables.Device, c Carrier, req Request) []string {
	if len(req.PlanGroups) > 0 {
		return req.PlanGroups
	}
	return []string{subsidy.SelectPlanGroup(d, c.PlanGroups)}
}
