package reconcile

import (
	"context"
	"fmt"

	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
	"subsidy-recon/core/subsidy"
	"subsidy-recon/core/tables"
	errs "subsidy-recon/internal/errors"
)

// Service is the surface CRUD and UI collaborators call
type Service struct {
	pipeline *Pipeline
}

// NewService wraps a pipeline
func NewService(p *Pipeline) *Service {
	return &Service{pipeline: p}
}

// Pipeline returns the underlying pipeline
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Reconcile runs the pipeline
func (s *Service) Reconcile(ctx context.Context, req Request) (*Report, error) {
	return s.pipeline.Run(ctx, req)
}

// ComputePricing prices one model. An empty planGroup selects the device's
// default group. t must be a concrete opening type.
func (s *Service) ComputePricing(ctx context.Context, carrier, planGroup string, t opening.Type, model string) (subsidy.Result, error) {
	if !t.IsConcrete() {
		return subsidy.Result{}, errs.Input(fmt.Sprintf("opening type %s cannot be priced directly", t))
	}
	if modelkey.Normalize(model) == "" {
		return subsidy.Result{}, errs.Input("model code is empty")
	}

	req := Request{
		Carriers:     []string{carrier},
		OpeningTypes: []opening.Type{t},
		Models:       []string{model},
	}
	if planGroup != "" {
		req.PlanGroups = []string{planGroup}
	}

	report, err := s.pipeline.Run(ctx, req)
	if err != nil {
		return subsidy.Result{}, err
	}
	cr, _ := report.Carrier(carrier)
	if cr.State == Failed {
		return subsidy.Result{}, cr.Err
	}
	if len(cr.Results) == 0 {
		return subsidy.Result{}, errs.NotFound("model", fmt.Sprintf("%s/%s", carrier, model))
	}
	return cr.Results[0], nil
}

// BuildIndex builds the index of one carrier table
func (s *Service) BuildIndex(ctx context.Context, carrier string, kind tables.Kind, planGroup string) (*keyindex.Index, error) {
	return s.pipeline.BuildIndex(ctx, carrier, kind, planGroup)
}

// Normalize canonicalizes a model code
func (s *Service) Normalize(code string) string {
	return modelkey.Normalize(code)
}

// ClassifyOpeningType maps a raw label to opening types
func (s *Service) ClassifyOpeningType(label string) opening.Set {
	return opening.Classify(label)
}
