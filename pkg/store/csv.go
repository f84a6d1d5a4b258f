package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"shelf-sync/pkg/models"
)

// ExportCSV writes every record of source with a header row.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, source string) (int, error) {
	records, err := s.Records(ctx, source)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(records) == 0 {
		if err := enc.EncodeHeader(models.CatalogRecord{}); err != nil {
			return 0, err
		}
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return 0, fmt.Errorf("encode %s: %w", r.Identity, err)
		}
	}
	cw.Flush()
	return len(records), cw.Error()
}

// ImportCSV upserts the records of r into source, e.g. to seed a catalog from an earlier export.
// The source column of the file is ignored.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, source string) (int, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	var records []models.CatalogRecord
	for {
		var rec models.CatalogRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("decode line %d: %w", len(records)+2, err)
		}
		if rec.Identity == "" {
			return 0, fmt.Errorf("line %d: %w", len(records)+2, models.ErrMissingIdentity)
		}
		rec.Source = source
		records = append(records, rec)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.insert(ctx, tx, source, records, s.now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}
