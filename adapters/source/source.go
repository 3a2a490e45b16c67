package source

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"subsidy-recon/core/tables"
	errs "subsidy-recon/internal/errors"
)

// Kind selects a source implementation
type Kind string

const (
	KindSheets Kind = "sheets"
	KindCSV    Kind = "csv"
)

// Options configures Open
type Options struct {
	Kind            Kind
	SpreadsheetID   string
	CredentialsFile string
	APIKey          string
	Dir             string
}

// Open builds the source described by opts
func Open(ctx context.Context, opts Options) (tables.Source, error) {
	switch opts.Kind {
	case KindSheets:
		var clientOpts []option.ClientOption
		switch {
		case opts.CredentialsFile != "":
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		case opts.APIKey != "":
			clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
		}
		return NewSheets(ctx, opts.SpreadsheetID, clientOpts...)
	case KindCSV:
		return NewCSVDir(opts.Dir)
	default:
		return nil, errs.Config(fmt.Sprintf("unsupported source kind: %q", opts.Kind))
	}
}
