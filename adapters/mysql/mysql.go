package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// DefaultTable is the table summaries are written to when none is configured
const DefaultTable = "eval_runs"

// ErrRunNotFound is returned by Load for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// Config holds the connection settings for a SummaryStore
type Config struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string

	// Table defaults to DefaultTable.
	Table string
}

// DSN formats the connection string for the go-sql-driver
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// SummaryStore implements results.SummaryPersistence on a MySQL table, one row per run
type SummaryStore struct {
	db    *sql.DB
	table string
}

var _ results.SummaryPersistence = (*SummaryStore)(nil)

// Open connects to MySQL. The connection is checked lazily on first use.
func Open(cfg Config) (*SummaryStore, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	store, err := NewSummaryStore(db, cfg.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSummaryStore wraps an open database
func NewSummaryStore(db *sql.DB, table string) (*SummaryStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SummaryStore{db: db, table: table}, nil
}

// Close closes the underlying database
func (s *SummaryStore) Close() error {
	return s.db.Close()
}

// EnsureTable creates the summary table if it does not exist
func (s *SummaryStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id CHAR(36) NOT NULL PRIMARY KEY,
		host VARCHAR(255) NOT NULL,
		program_version VARCHAR(64) NOT NULL,
		started_at DATETIME(6) NOT NULL,
		finished_at DATETIME(6) NOT NULL,
		samples INT NOT NULL,
		correct INT NOT NULL,
		incorrect INT NOT NULL,
		class_names JSON NOT NULL,
		confusion JSON NOT NULL,
		accuracy JSON NOT NULL
	)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Save inserts the summary of a run
func (s *SummaryStore) Save(ctx context.Context, summary results.Summary) error {
	classNames, err := json.Marshal(summary.ClassNames)
	if err != nil {
		return fmt.Errorf("failed to marshal class names: %w", err)
	}
	confusion, err := json.Marshal(summary.Confusion)
	if err != nil {
		return fmt.Errorf("failed to marshal confusion matrix: %w", err)
	}
	accuracy, err := json.Marshal(summary.Accuracy)
	if err != nil {
		return fmt.Errorf("failed to marshal accuracy: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = os.Getenv("HOSTNAME")
	}

	query := fmt.Sprintf("INSERT INTO %s (run_id, host, program_version, started_at, finished_at, samples, correct, incorrect, class_names, confusion, accuracy) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err = s.db.ExecContext(ctx, query,
		summary.RunID.String(),
		hostname,
		runtime.Version(),
		summary.StartedAt.UTC(),
		summary.FinishedAt.UTC(),
		summary.Samples,
		summary.Correct,
		summary.Incorrect,
		string(classNames),
		string(confusion),
		string(accuracy),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary into MySQL: %w", err)
	}
	return nil
}

// Load reads the summary of a run
func (s *SummaryStore) Load(ctx context.Context, runID uuid.UUID) (*results.Summary, error) {
	query := fmt.Sprintf("SELECT started_at, finished_at, samples, correct, incorrect, class_names, confusion, accuracy FROM %s WHERE run_id = ?", s.table)

	summary := results.Summary{RunID: runID}
	var classNames, confusion, accuracy []byte
	err := s.db.QueryRowContext(ctx, query, runID.String()).Scan(
		&summary.StartedAt,
		&summary.FinishedAt,
		&summary.Samples,
		&summary.Correct,
		&summary.Incorrect,
		&classNames,
		&confusion,
		&accuracy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}

	if err := json.Unmarshal(classNames, &summary.ClassNames); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class names: %w", err)
	}
	if err := json.Unmarshal(confusion, &summary.Confusion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confusion matrix: %w", err)
	}
	if err := json.Unmarshal(accuracy, &summary.Accuracy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accuracy: %w", err)
	}

	return &summary, nil
}

func validIdentifier(name string) bool {
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return name != ""
}
