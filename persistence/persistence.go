// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_checkpoints",
			Up: []string{
				`CREATE TABLE checkpoints (
					account TEXT NOT NULL,
					folder TEXT NOT NULL,
					uidvalidity INTEGER NOT NULL,
					nextseqnum INTEGER NOT NULL,
					updated DATETIME NOT NULL,
					PRIMARY KEY (account, folder)
				)`,
			},
			Down: []string{`DROP TABLE checkpoints`},
		},
		{
			// sequence numbers shift on expunge, checkpoints are kept as uids from now on
			Id: "2_checkpoint_uids",
			Up: []string{
				`DROP TABLE checkpoints`,
				`CREATE TABLE checkpoints (
					account TEXT NOT NULL,
					folder TEXT NOT NULL,
					uidvalidity INTEGER NOT NULL,
					nextuid INTEGER NOT NULL,
					updated DATETIME NOT NULL,
					PRIMARY KEY (account, folder)
				)`,
			},
			Down: []string{
				`DROP TABLE checkpoints`,
				`CREATE TABLE checkpoints (
					account TEXT NOT NULL,
					folder TEXT NOT NULL,
					uidvalidity INTEGER NOT NULL,
					nextseqnum INTEGER NOT NULL,
					updated DATETIME NOT NULL,
					PRIMARY KEY (account, folder)
				)`,
			},
		},
	},
}

type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrations, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

type dbCheckpoint struct {
	Account     string
	Folder      string
	UidValidity uint32
	NextUid     uint32
	Updated     time.Time
}

func (c *dbCheckpoint) checkpoint() *domain.Checkpoint {
	return &domain.Checkpoint{
		Account:     c.Account,
		Folder:      c.Folder,
		UidValidity: c.UidValidity,
		NextUid:     c.NextUid,
		Updated:     c.Updated,
	}
}

func (p *Persistence) Checkpoints(account string) ([]*domain.Checkpoint, error) {
	dbCheckpoints := []dbCheckpoint{}

	err := p.db.Select(
		&dbCheckpoints,
		`SELECT account, folder, uidvalidity, nextuid, updated FROM checkpoints WHERE account = ? ORDER BY folder`,
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	checkpoints := []*domain.Checkpoint{}
	for i := range dbCheckpoints {
		checkpoints = append(checkpoints, dbCheckpoints[i].checkpoint())
	}

	p.l.WithFields(logrus.Fields{"Account": account, "Count": len(checkpoints)}).Debug("Found checkpoints")

	return checkpoints, nil
}

// Checkpoint returns nil without error if the folder has no checkpoint.
func (p *Persistence) Checkpoint(account, folder string) (*domain.Checkpoint, error) {
	dbCp := dbCheckpoint{}

	err := p.db.Get(
		&dbCp,
		`SELECT account, folder, uidvalidity, nextuid, updated FROM checkpoints WHERE account = ? AND folder = ?`,
		account,
		folder,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	return dbCp.checkpoint(), nil
}

func (p *Persistence) SaveCheckpoint(cp domain.Checkpoint) error {
	if cp.Updated.IsZero() {
		cp.Updated = time.Now()
	}

	_, err := p.db.Exec(
		"INSERT OR REPLACE INTO checkpoints (account, folder, uidvalidity, nextuid, updated) VALUES (?, ?, ?, ?, ?)",
		cp.Account,
		cp.Folder,
		cp.UidValidity,
		cp.NextUid,
		cp.Updated.UTC(),
	)

	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	p.l.WithFields(logrus.Fields{"Folder": cp.Folder, "UidValidity": cp.UidValidity, "NextUid": cp.NextUid}).Debug("Persisted checkpoint")
	return nil
}

func (p *Persistence) DeleteCheckpoint(account, folder string) error {
	_, err := p.db.Exec(
		"DELETE FROM checkpoints WHERE account = ? AND folder = ?",
		account,
		folder,
	)
	if err != nil {
		return fmt.Errorf("could not delete checkpoint: %w", err)
	}

	p.l.WithFields(logrus.Fields{"Folder": folder}).Debug("Deleted checkpoint")
	return nil
}
