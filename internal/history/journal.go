// internal/history/journal.go
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"smartvault-go/internal/smartaccount"
)

// Journal records every submission the orchestrator makes
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Entry is one recorded submission
type Entry struct {
	ID               int64
	Kind             smartaccount.SubmissionKind
	Multisig         string
	VaultIndex       uint8
	TransactionIndex uint64
	Signature        string // empty when the submission failed before a signature existed
	Error            string
	ErrorKind        string
	CreatedAt        time.Time
}

// Failed reports whether the submission returned an error
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Open opens (or creates) the journal database at dbPath
func Open(dbPath string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dbPath, err)
	}
	// one writer at a time; sqlite locks the whole file anyway
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return j, nil
}

// createTables creates the database schema
func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		multisig TEXT NOT NULL,
		vault_index INTEGER NOT NULL,
		transaction_index INTEGER NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_multisig
		ON submissions(multisig, transaction_index);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Record stores one submission and returns its row id
func (j *Journal) Record(s smartaccount.Submission) (int64, error) {
	var sig, errMsg string
	if s.Signature != (solana.Signature{}) {
		sig = s.Signature.String()
	}
	if s.Err != nil {
		errMsg = s.Err.Error()
	}
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	result, err := j.db.Exec(
		`INSERT INTO submissions (kind, multisig, vault_index, transaction_index, signature, error, error_kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.Kind), s.Multisig.String(), s.VaultIndex, int64(s.TransactionIndex),
		sig, errMsg, smartaccount.Kind(s.Err), at.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Submitted implements smartaccount.Observer. Write failures are logged;
// they never affect the submission itself.
func (j *Journal) Submitted(s smartaccount.Submission) {
	if _, err := j.Record(s); err != nil {
		j.logger.Error().Err(err).Str("kind", string(s.Kind)).Msg("failed to record submission")
	}
}

// Recent lists up to limit submissions, newest first
func (j *Journal) Recent(limit int) ([]Entry, error) {
	return j.query(
		`SELECT id, kind, multisig, vault_index, transaction_index, signature, error, error_kind, created_at
		 FROM submissions ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

// ForMultisig lists submissions against one multisig, oldest first
func (j *Journal) ForMultisig(multisig solana.PublicKey) ([]Entry, error) {
	return j.query(
		`SELECT id, kind, multisig, vault_index, transaction_index, signature, error, error_kind, created_at
		 FROM submissions WHERE multisig = ? ORDER BY id ASC`,
		multisig.String(),
	)
}

func (j *Journal) query(query string, args ...interface{}) ([]Entry, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var txIndex int64
		if err := rows.Scan(&e.ID, &kind, &e.Multisig, &e.VaultIndex, &txIndex,
			&e.Signature, &e.Error, &e.ErrorKind, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = smartaccount.SubmissionKind(kind)
		e.TransactionIndex = uint64(txIndex)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}
