package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	errs "subsidy-recon/internal/errors"
)

// A policy file declares carrier policy blocks:
//
//	carrier "SK" {
//	  base_margin                = 50000
//	  prefer_flip_fold_insurance = true
//
//	  addon "vcoloring" {
//	    fee       = 3300
//	    incentive = 10000
//	  }
//
//	  insurance "fold care" {
//	    min_price = 1500000
//	    max_price = 3000000
//	    incentive = 20000
//	    flip_fold = true
//	  }
//
//	  special "weekend" {
//	    addition = 30000
//	    active   = true
//	  }
//	}
type fileSpec struct {
	Carriers []carrierBlock `hcl:"carrier,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

type carrierBlock struct {
	Name             string           `hcl:"name,label"`
	BaseMargin       float64          `hcl:"base_margin,optional"`
	PreferFlipFold   bool             `hcl:"prefer_flip_fold_insurance,optional"`
	FlipFoldKeywords []string         `hcl:"flip_fold_keywords,optional"`
	Addons           []addonBlock     `hcl:"addon,block"`
	Insurance        []insuranceBlock `hcl:"insurance,block"`
	Specials         []specialBlock   `hcl:"special,block"`
}

type addonBlock struct {
	Name      string  `hcl:"name,label"`
	Fee       float64 `hcl:"fee,optional"`
	Incentive float64 `hcl:"incentive,optional"`
	Deduction float64 `hcl:"deduction,optional"`
}

type insuranceBlock struct {
	Name      string  `hcl:"name,label"`
	MinPrice  float64 `hcl:"min_price,optional"`
	MaxPrice  float64 `hcl:"max_price,optional"`
	Fee       float64 `hcl:"fee,optional"`
	Incentive float64 `hcl:"incentive,optional"`
	Deduction float64 `hcl:"deduction,optional"`
	FlipFold  bool    `hcl:"flip_fold,optional"`
}

type specialBlock struct {
	Name      string  `hcl:"name,label"`
	Addition  float64 `hcl:"addition,optional"`
	Deduction float64 `hcl:"deduction,optional"`
	Active    *bool   `hcl:"active,optional"`
}

// LoadFile reads a policy file and returns settings keyed by carrier name
func LoadFile(path string) (map[string]*Settings, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("policy file", path)
		}
		return nil, errs.Wrap(errs.TypeConfig, "read policy file", err)
	}
	return Parse(src, path)
}

// Parse decodes policy HCL source
func Parse(src []byte, filename string) (map[string]*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError(filename, diags)
	}

	var spec fileSpec
	if diags := gohcl.DecodeBody(file.Body, nil, &spec); diags.HasErrors() {
		return nil, diagError(filename, diags)
	}

	out := make(map[string]*Settings, len(spec.Carriers))
	for _, c := range spec.Carriers {
		if _, dup := out[c.Name]; dup {
			return nil, errs.Config(fmt.Sprintf("%s: carrier %q declared twice", filename, c.Name))
		}
		out[c.Name] = c.settings()
	}
	return out, nil
}

func (c carrierBlock) settings() *Settings {
	s := &Settings{
		Carrier:                 c.Name,
		BaseMargin:              decimal.NewFromFloat(c.BaseMargin),
		PreferFlipFoldInsurance: c.PreferFlipFold,
		FlipFoldKeywords:        c.FlipFoldKeywords,
	}
	for _, a := range c.Addons {
		s.Addons = append(s.Addons, Addon{
			Name:      a.Name,
			Fee:       decimal.NewFromFloat(a.Fee),
			Incentive: decimal.NewFromFloat(a.Incentive),
			Deduction: decimal.NewFromFloat(a.Deduction),
		})
	}
	for _, i := range c.Insurance {
		s.Insurance = append(s.Insurance, Insurance{
			Name:      i.Name,
			MinPrice:  decimal.NewFromFloat(i.MinPrice),
			MaxPrice:  decimal.NewFromFloat(i.MaxPrice),
			Fee:       decimal.NewFromFloat(i.Fee),
			Incentive: decimal.NewFromFloat(i.Incentive),
			Deduction: decimal.NewFromFloat(i.Deduction),
			FlipFold:  i.FlipFold,
		})
	}
	for _, sp := range c.Specials {
		active := true
		if sp.Active != nil {
			active = *sp.Active
		}
		s.Specials = append(s.Specials, Special{
			Name:      sp.Name,
			Addition:  decimal.NewFromFloat(sp.Addition),
			Deduction: decimal.NewFromFloat(sp.Deduction),
			Active:    active,
		})
	}
	return s
}

func diagError(filename string, diags hcl.Diagnostics) error {
	var msgs []string
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		line := 0
		if d.Subject != nil {
			line = d.Subject.Start.Line
		}
		msgs = append(msgs, fmt.Sprintf("%s:%d: %s: %s", filename, line, d.Summary, d.Detail))
	}
	return errs.Config(strings.Join(msgs, "; "))
}
