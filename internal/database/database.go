package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mavleo96/h2sync/internal/orchestrator"
	"go.etcd.io/bbolt"
)

var reportsBucket = []byte("reports")

// ErrReportNotFound is returned by Get for an unknown run id
var ErrReportNotFound = errors.New("report not found")

// StoredReport is a run report together with when it was stored
type StoredReport struct {
	orchestrator.Report
	StoredAt time.Time `json:"stored_at"`
}

// Database keeps run reports in a bbolt file, keyed by run id
type Database struct {
	db *bbolt.DB
}

// InitDB opens the database file and creates the "reports" bucket if needed
func (d *Database) InitDB(dbPath string) error {
	boltDB, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open report database %s: %w", dbPath, err)
	}
	d.db = boltDB

	err = d.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		d.db.Close()
		return err
	}
	return nil
}

// PutReport stores the report of a finished run
func (d *Database) PutReport(report *orchestrator.Report) error {
	data, err := json.Marshal(StoredReport{Report: *report, StoredAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		return b.Put([]byte(report.RunID), data)
	})
}

// GetReport returns the report of a run
func (d *Database) GetReport(runID string) (*StoredReport, error) {
	var report StoredReport
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, runID)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns all stored reports, oldest first
func (d *Database) ListReports() ([]*StoredReport, error) {
	reports := make([]*StoredReport, 0)
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		return b.ForEach(func(_, v []byte) error {
			var report StoredReport
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByStoredAt(reports)
	return reports, nil
}

// Close closes the database
func (d *Database) Close() error {
	return d.db.Close()
}
