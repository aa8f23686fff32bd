package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type sampleMaterial struct {
	project, date, description string
	cost                       float64
}

type sampleLabor struct {
	project, date, worker string
	hours, rate           float64
}

var (
	sampleMaterials = []sampleMaterial{
		{"101", "2024-01-03", "Concrete", 4200.00},
		{"101", "2024-01-17", "Rebar", 1850.50},
		{"101", "2024-02-06", "Lumber", 2975.25},
		{"102", "2024-01-09", "Drywall", 1320.00},
		{"102", "2024-02-14", "Paint", 640.75},
		{"103", "2024-01-22", "Roofing shingles", 3890.00},
		{"103", "2024-03-04", "Gutters", 720.00},
	}

	sampleLabors = []sampleLabor{
		{"101", "2024-01-03", "Crew A", 32, 45.00},
		{"101", "2024-01-18", "Crew A", 40, 45.00},
		{"101", "2024-02-07", "Electrician", 16, 68.50},
		{"102", "2024-01-10", "Crew B", 24, 42.00},
		{"102", "2024-02-15", "Painter", 18, 38.00},
		{"103", "2024-01-23", "Roofers", 36, 51.25},
		{"103", "2024-03-05", "Crew B", 8, 42.00},
	}

	sampleOverhead = []sampleMaterial{
		{"101", "2024-01-31", "Equipment rental", 950.00},
		{"101", "2024-02-29", "Permits", 410.00},
		{"102", "2024-02-29", "Site insurance", 275.00},
		{"103", "2024-03-31", "Waste disposal", 330.00},
	}
)

// SeedSample inserts a small deterministic data set for three projects.
func SeedSample(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range sampleMaterials {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO materials (project_id, date, description, cost) VALUES (?, ?, ?, ?)`,
			m.project, m.date, m.description, m.cost); err != nil {
			return fmt.Errorf("insert material: %w", err)
		}
	}
	for _, l := range sampleLabors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO labor (project_id, date, worker, hours_worked, hourly_rate) VALUES (?, ?, ?, ?, ?)`,
			l.project, l.date, l.worker, l.hours, l.rate); err != nil {
			return fmt.Errorf("insert labor: %w", err)
		}
	}
	for _, o := range sampleOverhead {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO overhead (project_id, date, description, cost) VALUES (?, ?, ?, ?)`,
			o.project, o.date, o.description, o.cost); err != nil {
			return fmt.Errorf("insert overhead: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}
