package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateSchema creates the lab tables and indexes if they do not exist.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
		createLabTestsTable,
		createLabTechniciansTable,
		createLabTestRequestsTable,
		createLabDashboardsTable,
		createOutboxEventsTable,
		createIndexes,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const (
	createLabTestsTable = `
		CREATE TABLE IF NOT EXISTS lab_tests (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(200) NOT NULL,
			category VARCHAR(50) NOT NULL,
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes >= 1),
			sample_type VARCHAR(20) NOT NULL,
			preparation_instructions TEXT,
			normal_range TEXT,
			units VARCHAR(50),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (name, category)
		)`

	createLabTechniciansTable = `
		CREATE TABLE IF NOT EXISTS lab_technicians (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL UNIQUE,
			employee_id VARCHAR(50) NOT NULL UNIQUE,
			specialization VARCHAR(200) NOT NULL DEFAULT '',
			current_workload INTEGER NOT NULL DEFAULT 0 CHECK (current_workload >= 0),
			max_concurrent_tests INTEGER NOT NULL CHECK (max_concurrent_tests > 0),
			is_available BOOLEAN NOT NULL DEFAULT TRUE,
			performance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	createLabTestRequestsTable = `
		CREATE TABLE IF NOT EXISTS lab_test_requests (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			patient_id UUID NOT NULL,
			doctor_id UUID NOT NULL,
			lab_test_id UUID NOT NULL REFERENCES lab_tests(id),
			lab_technician_id UUID REFERENCES lab_technicians(id),
			status VARCHAR(20) NOT NULL,
			priority VARCHAR(10) NOT NULL,
			requested_date TIMESTAMPTZ NOT NULL,
			sample_collected_date TIMESTAMPTZ,
			started_date TIMESTAMPTZ,
			completed_date TIMESTAMPTZ,
			verified_date TIMESTAMPTZ,
			results TEXT,
			findings TEXT,
			notes TEXT,
			is_critical BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	createLabDashboardsTable = `
		CREATE TABLE IF NOT EXISTS lab_dashboards (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			lab_technician_id UUID NOT NULL UNIQUE REFERENCES lab_technicians(id),
			total_tests_completed INTEGER NOT NULL DEFAULT 0,
			tests_today INTEGER NOT NULL DEFAULT 0,
			pending_tests INTEGER NOT NULL DEFAULT 0,
			average_turnaround_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			critical_findings INTEGER NOT NULL DEFAULT 0,
			last_activity TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	createOutboxEventsTable = `
		CREATE TABLE IF NOT EXISTS outbox_events (
			id UUID PRIMARY KEY,
			event_type VARCHAR(100) NOT NULL,
			aggregate_id UUID NOT NULL,
			payload JSONB NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	createIndexes = `
		CREATE INDEX IF NOT EXISTS idx_lab_tests_category ON lab_tests(category) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_lab_technicians_workload ON lab_technicians(current_workload) WHERE is_active AND is_available;
		CREATE INDEX IF NOT EXISTS idx_lab_requests_status ON lab_test_requests(status);
		CREATE INDEX IF NOT EXISTS idx_lab_requests_patient ON lab_test_requests(patient_id);
		CREATE INDEX IF NOT EXISTS idx_lab_requests_technician_status ON lab_test_requests(lab_technician_id, status);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events(created_at) WHERE status = 'PENDING';
	`
)
