// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package memo

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the optional shared L3 memoization backend for filtering
// farms where several hosts filter the same sources against the same
// filters and want to share completed work.
type MySQLStore struct {
	db *sql.DB
}

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS josh_memo (
	filter_id   BINARY(32)    NOT NULL,
	object_id   VARBINARY(64) NOT NULL,
	kind        TINYINT       NOT NULL,
	result_id   VARBINARY(64) NOT NULL,
	result_empty BOOLEAN      NOT NULL,
	PRIMARY KEY (filter_id, object_id, kind)
)`

// NewMySQLStore opens (and migrates) the shared memo table at dsn.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Get(ctx context.Context, key Key) (string, bool, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result_id, result_empty FROM josh_memo WHERE filter_id = ? AND object_id = ? AND kind = ?`,
		key.FilterID[:], key.ObjectID, key.Kind)
	var id string
	var empty bool
	if err := row.Scan(&id, &empty); err != nil {
		if err == sql.ErrNoRows {
			return "", false, false, nil
		}
		return "", false, false, err
	}
	return id, empty, true, nil
}

func (s *MySQLStore) Put(ctx context.Context, key Key, id string, empty bool) error {
	if old, oldEmpty, ok, err := s.Get(ctx, key); err != nil {
		return err
	} else if ok && (old != id || oldEmpty != empty) {
		return &ErrValueMismatch{Key: key, Old: old, New: id, OldE: oldEmpty, NewE: empty}
	} else if ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO josh_memo (filter_id, object_id, kind, result_id, result_empty) VALUES (?, ?, ?, ?, ?)`,
		key.FilterID[:], key.ObjectID, key.Kind, id, empty)
	return err
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
