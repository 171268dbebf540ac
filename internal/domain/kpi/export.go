package kpi

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
)

// SnapshotRow is the parquet layout of a snapshot. Money columns are
// written as float64.
type SnapshotRow struct {
	OrganizationID    string  `parquet:"organization_id"`
	Date              string  `parquet:"date"`
	DaysInAR          float64 `parquet:"days_in_ar"`
	CollectionRate    float64 `parquet:"collection_rate"`
	DenialRate        float64 `parquet:"denial_rate"`
	CostToCollect     float64 `parquet:"cost_to_collect"`
	NetCollectionRate float64 `parquet:"net_collection_rate"`
	GrossCharges      float64 `parquet:"gross_charges"`
	NetCharges        float64 `parquet:"net_charges"`
	Payments          float64 `parquet:"payments"`
	Adjustments       float64 `parquet:"adjustments"`
	WriteOffs         float64 `parquet:"write_offs"`
}

func rowOf(s *Snapshot) SnapshotRow {
	return SnapshotRow{
		OrganizationID:    s.OrganizationID.String(),
		Date:              s.Date.Format("2006-01-02"),
		DaysInAR:          s.DaysInAR,
		CollectionRate:    s.CollectionRate,
		DenialRate:        s.DenialRate,
		CostToCollect:     s.CostToCollect,
		NetCollectionRate: s.NetCollectionRate,
		GrossCharges:      s.GrossCharges.InexactFloat64(),
		NetCharges:        s.NetCharges.InexactFloat64(),
		Payments:          s.Payments.InexactFloat64(),
		Adjustments:       s.Adjustments.InexactFloat64(),
		WriteOffs:         s.WriteOffs.InexactFloat64(),
	}
}

// WriteParquet writes snaps as a snappy-compressed parquet file.
func WriteParquet(w io.Writer, snaps []*Snapshot) (int, error) {
	writer := parquet.NewGenericWriter[SnapshotRow](w,
		parquet.Compression(&parquet.Snappy),
	)
	rows := make([]SnapshotRow, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, rowOf(s))
	}
	n, err := writer.Write(rows)
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("close parquet writer: %w", err)
	}
	return n, nil
}

// ExportToStore writes snaps to key in the blob store.
func ExportToStore(ctx context.Context, store blobstore.Store, key string, snaps []*Snapshot) (int, error) {
	var buf bytes.Buffer
	n, err := WriteParquet(&buf, snaps)
	if err != nil {
		return 0, err
	}
	if err := store.Put(ctx, key, "application/vnd.apache.parquet", &buf, int64(buf.Len())); err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return n, nil
}
