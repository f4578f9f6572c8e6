// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.mau.fi/util/dbutil"
)

// SQL is a Documents implementation on a single documents table managed
// by dbutil. Each row is one JSON document addressed by (kind, id).
type SQL struct {
	db *dbutil.Database
}

var _ Documents = (*SQL)(nil)

// NewSQL runs the schema upgrades on the given database and returns a
// typed Store backed by it.
func NewSQL(ctx context.Context, db *dbutil.Database) (*Store, error) {
	db.UpgradeTable = UpgradeTable
	db.VersionTable = "modmail_version"
	if err := db.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade database schema: %w", err)
	}
	return New(&SQL{db: db}), nil
}

const (
	fetchAllQuery = `SELECT data FROM document WHERE kind=$1`
	getQuery      = `SELECT data FROM document WHERE kind=$1 AND id=$2`
	insertQuery   = `INSERT INTO document (kind, id, data) VALUES ($1, $2, $3)`
	updateQuery   = `UPDATE document SET data=$3 WHERE kind=$1 AND id=$2`
	upsertQuery   = `
		INSERT INTO document (kind, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (kind, id) DO UPDATE SET data=excluded.data
	`
	deleteQuery = `DELETE FROM document WHERE kind=$1 AND id=$2`
)

func (s *SQL) FetchAll(ctx context.Context, kind string) ([]json.RawMessage, error) {
	rows, err := s.db.Query(ctx, fetchAllQuery, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}

func (s *SQL) Get(ctx context.Context, kind, id string) (json.RawMessage, error) {
	var data []byte
	err := s.db.QueryRow(ctx, getQuery, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *SQL) Insert(ctx context.Context, kind, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	_, err = s.db.Exec(ctx, insertQuery, kind, id, data)
	return err
}

func (s *SQL) Update(ctx context.Context, kind, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	res, err := s.db.Exec(ctx, updateQuery, kind, id, data)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Upsert(ctx context.Context, kind, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	_, err = s.db.Exec(ctx, upsertQuery, kind, id, data)
	return err
}

func (s *SQL) Delete(ctx context.Context, kind, id string) error {
	_, err := s.db.Exec(ctx, deleteQuery, kind, id)
	return err
}
