package database

import (
	"database/sql"
)

type PgSparkRepository struct {
	conn *sql.DB
}

func NewPgSparkRepository(dsn string) (*PgSparkRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgSparkRepository{conn: db}, nil
}

func (db *PgSparkRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgSparkRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
