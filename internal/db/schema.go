package db

import "context"

// Schema for the three fact collections and the two report ledgers. The GIST
// indexes over the geography columns are the spatial index every proximity
// query goes through; ST_DWithin retrieves candidates from them and the
// services re-apply exact distance filtering.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,

	`CREATE TABLE IF NOT EXISTS speed_cameras (
		id UUID PRIMARY KEY,
		location GEOGRAPHY(POINT, 4326) NOT NULL,
		speed_limit_kmh INT NOT NULL,
		camera_type TEXT NOT NULL,
		direction_degrees INT,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_count INT NOT NULL DEFAULT 0,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.5
			CHECK (confidence_score >= 0 AND confidence_score <= 1),
		is_removed BOOLEAN NOT NULL DEFAULT FALSE,
		reported_by UUID,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_speed_cameras_location
		ON speed_cameras USING GIST (location)`,

	`CREATE TABLE IF NOT EXISTS road_speed_limits (
		id UUID PRIMARY KEY,
		road_segment GEOGRAPHY(LINESTRING, 4326) NOT NULL,
		speed_limit_kmh INT NOT NULL,
		road_name TEXT,
		road_type TEXT,
		direction TEXT,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_count INT NOT NULL DEFAULT 0,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.5
			CHECK (confidence_score >= 0 AND confidence_score <= 1),
		is_removed BOOLEAN NOT NULL DEFAULT FALSE,
		reported_by UUID,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_road_speed_limits_segment
		ON road_speed_limits USING GIST (road_segment)`,

	`CREATE TABLE IF NOT EXISTS hazard_detections (
		id UUID PRIMARY KEY,
		location GEOGRAPHY(POINT, 4326) NOT NULL,
		hazard_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.5
			CHECK (confidence_score >= 0 AND confidence_score <= 1),
		detected_by UUID,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT,
		image_url TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hazard_detections_location
		ON hazard_detections USING GIST (location)`,
	`CREATE INDEX IF NOT EXISTS idx_hazard_detections_active
		ON hazard_detections (is_active, expires_at)`,

	`CREATE TABLE IF NOT EXISTS camera_reports (
		id UUID PRIMARY KEY,
		camera_id UUID NOT NULL REFERENCES speed_cameras(id) ON DELETE CASCADE,
		reported_by UUID,
		report_type TEXT NOT NULL,
		reported_location GEOGRAPHY(POINT, 4326),
		reported_speed_limit_kmh INT,
		confidence_score DOUBLE PRECISION
			CHECK (confidence_score IS NULL OR (confidence_score >= 0 AND confidence_score <= 1)),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_camera_reports_camera
		ON camera_reports (camera_id)`,

	`CREATE TABLE IF NOT EXISTS speed_limit_reports (
		id UUID PRIMARY KEY,
		speed_limit_id UUID NOT NULL REFERENCES road_speed_limits(id) ON DELETE CASCADE,
		reported_by UUID,
		report_type TEXT NOT NULL,
		reported_segment GEOGRAPHY(LINESTRING, 4326),
		reported_speed_limit_kmh INT,
		confidence_score DOUBLE PRECISION
			CHECK (confidence_score IS NULL OR (confidence_score >= 0 AND confidence_score <= 1)),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_speed_limit_reports_target
		ON speed_limit_reports (speed_limit_id)`,
}

// Init creates the schema. Safe to run on every startup.
func Init(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
