package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/policy"
	"subsidy-recon/core/subsidy"
	"subsidy-recon/core/tables"
	errs "subsidy-recon/internal/errors"
)

type tableRef struct {
	kind  tables.Kind
	group string
	ref   string
}

func (t tableRef) name(carrier string) string {
	return fmt.Sprintf("%s/%s/%s", carrier, t.kind, t.group)
}

func scaleFor(kind tables.Kind) decimal.Decimal {
	if kind == tables.KindRebate {
		return tables.RebateScale
	}
	return decimal.NewFromInt(1)
}

// rangeFor returns the configured range of a support or rebate table
func rangeFor(c Carrier, kind tables.Kind, group string) (string, error) {
	var ranges map[string]string
	switch kind {
	case tables.KindSupport:
		ranges = c.SupportRanges
	case tables.KindRebate:
		ranges = c.RebateRanges
	default:
		return "", errs.Input(fmt.Sprintf("table kind %q is not indexed", kind))
	}
	ref, ok := ranges[group]
	if !ok || ref == "" {
		return "", errs.Config(fmt.Sprintf("carrier %s has no %s range for plan group %q", c.Name, kind, group))
	}
	return ref, nil
}

// loadIndexes builds support and rebate indexes for every plan group. All
// ranges are fetched in one batch; if the batch fails each range is fetched
// alone so a bad table degrades only itself to an empty index.
func (p *Pipeline) loadIndexes(ctx context.Context, c Carrier, groups []string, cr *CarrierReport) (support, rebate map[string]subsidy.Lookup) {
	support = make(map[string]subsidy.Lookup, len(groups))
	rebate = make(map[string]subsidy.Lookup, len(groups))
	cr.Fingerprints = make(map[string]string)

	var refs []tableRef
	for _, group := range groups {
		for _, kind := range []tables.Kind{tables.KindSupport, tables.KindRebate} {
			ref, err := rangeFor(c, kind, group)
			if err != nil {
				p.degradeTable(c, cr, tableRef{kind: kind, group: group}, err)
				p.put(support, rebate, kind, group, p.emptyIndex(c, tableRef{kind: kind, group: group}))
				continue
			}
			refs = append(refs, tableRef{kind: kind, group: group, ref: ref})
		}
	}

	fetched := p.fetchAll(ctx, refs)
	for i, t := range refs {
		ix, err := p.indexFrom(c, t, fetched[i].rows, fetched[i].err, cr)
		if err != nil {
			p.degradeTable(c, cr, t, err)
			ix = p.emptyIndex(c, t)
		}
		cr.Fingerprints[t.name(c.Name)] = ix.Fingerprint()
		p.put(support, rebate, t.kind, t.group, ix)
	}
	return support, rebate
}

type fetchResult struct {
	rows [][]any
	err  error
}

func (p *Pipeline) fetchAll(ctx context.Context, refs []tableRef) []fetchResult {
	out := make([]fetchResult, len(refs))
	if len(refs) == 0 {
		return out
	}
	list := make([]string, len(refs))
	for i, t := range refs {
		list[i] = t.ref
	}
	if batch, err := p.source.BatchGet(ctx, list); err == nil && len(batch) == len(refs) {
		for i := range refs {
			out[i].rows = batch[i]
		}
		return out
	} else if err != nil {
		p.logger.Debug("batch fetch failed, fetching ranges one by one", zap.Error(err))
	}
	for i, t := range refs {
		out[i].rows, out[i].err = p.source.Get(ctx, t.ref)
	}
	return out
}

func (p *Pipeline) indexFrom(c Carrier, t tableRef, rows [][]any, fetchErr error, cr *CarrierReport) (*keyindex.Index, error) {
	if fetchErr != nil {
		return nil, fetchErr
	}
	records, issues, err := tables.SubsidyRows(t.kind, rows, scaleFor(t.kind))
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		cr.warn(t.name(c.Name), is.String())
	}
	ix := keyindex.Build(records,
		keyindex.WithName(t.name(c.Name)),
		keyindex.WithLogger(p.logger.Named("keyindex")),
		keyindex.WithMissThrottle(p.misses))
	if n := ix.DroppedBlanketRows(); n > 0 {
		p.logger.Debug("blanket rows dropped for explicitly covered models",
			zap.String("table", ix.Name()), zap.Int("rows", n))
	}
	return ix, nil
}

func (p *Pipeline) emptyIndex(c Carrier, t tableRef) *keyindex.Index {
	return keyindex.New(
		keyindex.WithName(t.name(c.Name)),
		keyindex.WithLogger(p.logger.Named("keyindex")),
		keyindex.WithMissThrottle(p.misses))
}

func (p *Pipeline) put(support, rebate map[string]subsidy.Lookup, kind tables.Kind, group string, ix *keyindex.Index) {
	if kind == tables.KindRebate {
		rebate[group] = ix
		return
	}
	support[group] = ix
}

func (p *Pipeline) degradeTable(c Carrier, cr *CarrierReport, t tableRef, err error) {
	name := t.name(c.Name)
	cr.warn(name, fmt.Sprintf("empty index: %v", err))
	p.logger.Warn("table degraded to empty index",
		zap.String("carrier", c.Name),
		zap.String("table", name),
		zap.String("error_type", string(errs.TypeOf(err))),
		zap.Error(err))
}

// loadPolicy returns the carrier's policy snapshot: the override when one is
// configured, else the policy tables.
func (p *Pipeline) loadPolicy(ctx context.Context, c Carrier, cr *CarrierReport) (*policy.Settings, error) {
	var s *policy.Settings
	if c.PolicyOverride != nil {
		copied := *c.PolicyOverride
		s = &copied
	} else {
		var ranges policy.Ranges
		for _, t := range []struct {
			ref  string
			dest *[][]any
		}{
			{c.MarginRange, &ranges.Margin},
			{c.AddonsRange, &ranges.Addons},
			{c.InsuranceRange, &ranges.Insurance},
			{c.SpecialsRange, &ranges.Specials},
		} {
			if t.ref == "" {
				continue
			}
			rows, err := p.source.Get(ctx, t.ref)
			if err != nil {
				return nil, fmt.Errorf("policy range %s: %w", t.ref, err)
			}
			*t.dest = rows
		}

		var issues []tables.Issue
		var err error
		s, issues, err = policy.FromTables(c.Name, ranges)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			cr.warn("policy", is.String())
		}
	}
	s.Carrier = c.Name
	if c.PreferFlipFoldInsurance {
		s.PreferFlipFoldInsurance = true
	}
	return s, nil
}

// BuildIndex fetches and indexes one support or rebate table. Unlike Run,
// failures are returned rather than degraded.
func (p *Pipeline) BuildIndex(ctx context.Context, carrier string, kind tables.Kind, group string) (*keyindex.Index, error) {
	c, ok := p.carriers[carrier]
	if !ok {
		return nil, errs.Input(fmt.Sprintf("unknown carrier %q", carrier))
	}
	if group == "" {
		group = c.PlanGroups.Default
	}
	ref, err := rangeFor(c, kind, group)
	if err != nil {
		return nil, err
	}
	rows, err := p.source.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	var cr CarrierReport
	return p.indexFrom(c, tableRef{kind: kind, group: group, ref: ref}, rows, nil, &cr)
}
