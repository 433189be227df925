package database

import (
	"database/sql"
)

type PgCommHubRepository struct {
	conn *sql.DB
}

func NewPgCommHubRepository(dsn string) (*PgCommHubRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgCommHubRepository{conn: db}, nil
}

func (db *PgCommHubRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgCommHubRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
