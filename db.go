package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

var (
	errNoMatches   = errors.New("no conversations matched the given input")
	errManyMatches = errors.New("multiple conversations matched the given input")
)

// Timestamps carry milliseconds so HEAD ordering works across quick
// consecutive saves.
const dbTimeFormat = `strftime('%Y-%m-%dT%H:%M:%fZ','now')`

func openDB(path string) (*convoDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("could not create db path: %w", err)
		}
		path = filepath.Join(path, "db.sqlite")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping db: %w", err)
	}
	if _, err := db.Exec(`
		create table if not exists conversations(
			id string not null primary key,
			title string not null,
			updated_at datetime not null default (` + dbTimeFormat + `)
		);
	`); err != nil {
		return nil, fmt.Errorf("could not migrate db: %w", err)
	}
	return &convoDB{db: db}, nil
}

type convoDB struct {
	db *sqlx.DB
}

type dbConvo struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (c *convoDB) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	return nil
}

func (c *convoDB) Save(id, title string) error {
	if id == "" || title == "" {
		return errors.New("both id and title are required to save a conversation")
	}
	if _, err := c.db.Exec(`
		insert into conversations (id, title, updated_at)
		values ($1, $2, `+dbTimeFormat+`)
		on conflict(id) do update set
			title = excluded.title,
			updated_at = excluded.updated_at
	`, id, title); err != nil {
		return fmt.Errorf("could not save conversation: %w", err)
	}
	return nil
}

func (c *convoDB) Delete(id string) error {
	if _, err := c.db.Exec(`
		delete from conversations
		where id = $1
	`, id); err != nil {
		return fmt.Errorf("could not delete conversation: %w", err)
	}
	return nil
}

func (c *convoDB) FindHEAD() (*dbConvo, error) {
	var convo dbConvo
	if err := c.db.Get(&convo, "select * from conversations order by updated_at desc limit 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNoMatches
		}
		return nil, fmt.Errorf("could not find last conversation: %w", err)
	}
	return &convo, nil
}

// Find resolves an id prefix or an exact title. Short inputs only match
// titles so a 1-letter title can't shadow id prefixes.
func (c *convoDB) Find(in string) (*dbConvo, error) {
	var convos []dbConvo
	var err error
	if len(in) < convIDMinLen {
		err = c.db.Select(&convos, "select * from conversations where title = $1", in)
	} else {
		err = c.db.Select(&convos, "select * from conversations where id like $1 or title = $2", in+"%", in)
	}
	if err != nil {
		return nil, fmt.Errorf("could not find conversation: %w", err)
	}
	switch len(convos) {
	case 0:
		return nil, errNoMatches
	case 1:
		return &convos[0], nil
	default:
		return nil, errManyMatches
	}
}

func (c *convoDB) List() ([]dbConvo, error) {
	var convos []dbConvo
	if err := c.db.Select(&convos, "select * from conversations order by updated_at desc"); err != nil {
		return convos, fmt.Errorf("could not list conversations: %w", err)
	}
	return convos, nil
}
