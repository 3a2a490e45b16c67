// Package source provides tabular sources for the reconciliation pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	errs "subsidy-recon/internal/errors"
)

// Sheets reads ranges from one Google spreadsheet. Cells are fetched
// unformatted so amounts arrive as numbers where the sheet stores them so.
type Sheets struct {
	spreadsheetID string
	values        *sheets.SpreadsheetsValuesService
}

// NewSheets creates a Sheets source. opts are passed to the API client,
// e.g. option.WithCredentialsFile or option.WithAPIKey.
func NewSheets(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, errs.Config("spreadsheet id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.TypeConfig, "failed to create sheets client", err)
	}
	return &Sheets{spreadsheetID: spreadsheetID, values: svc.Spreadsheets.Values}, nil
}

// Get fetches one A1 range
func (s *Sheets) Get(ctx context.Context, ref string) ([][]any, error) {
	resp, err := s.values.Get(s.spreadsheetID, ref).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(ref, err)
	}
	return resp.Values, nil
}

// BatchGet fetches several ranges in one request, aligned with refs
func (s *Sheets) BatchGet(ctx context.Context, refs []string) ([][][]any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	resp, err := s.values.BatchGet(s.spreadsheetID).
		Ranges(refs...).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(strings.Join(refs, ","), err)
	}
	if len(resp.ValueRanges) != len(refs) {
		return nil, errs.Transient(fmt.Sprintf("batch returned %d ranges for %d refs", len(resp.ValueRanges), len(refs)), nil)
	}
	out := make([][][]any, len(refs))
	for i, vr := range resp.ValueRanges {
		if vr != nil {
			out[i] = vr.Values
		}
	}
	return out, nil
}

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// classify maps API failures onto the error taxonomy the gateway retries on
func classify(ref string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || strings.Contains(apiErr.Body, "RESOURCE_EXHAUSTED"):
			return errs.QuotaExceeded("sheets quota exceeded", err).WithContext("range", ref)
		case apiErr.Code == http.StatusForbidden:
			for _, item := range apiErr.Errors {
				if quotaReasons[item.Reason] {
					return errs.QuotaExceeded("sheets quota exceeded", err).WithContext("range", ref)
				}
			}
			return errs.PermissionDenied(ref, err)
		case apiErr.Code == http.StatusNotFound:
			return errs.NotFound("range", ref)
		case apiErr.Code == http.StatusBadRequest:
			return errs.MalformedRange(ref, apiErr.Message)
		case apiErr.Code >= 500:
			return errs.Transient("sheets unavailable", err).WithContext("range", ref)
		}
		return errs.Wrap(errs.TypeInternal, "sheets request failed", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Transient("sheets request failed", err).WithContext("range", ref)
	}
	return err
}
