package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	dbconfig "drawbridge/pkg/database"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Manager implements the DiagramStore interface on SQLite. Reads go to the
// pool concurrently; writes funnel through a single goroutine because SQLite
// allows only one writer at a time.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new database manager.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				// Retry once; transient SQLITE_BUSY errors usually clear.
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateDiagram inserts a new diagram document.
func (m *Manager) CreateDiagram(ctx context.Context, diagram *types.Diagram) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO diagrams (id, title, owner_id, problem_id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			diagram.ID,
			diagram.Title,
			diagram.OwnerID,
			diagram.ProblemID,
			string(diagram.Data),
			diagram.CreatedAt,
			diagram.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert diagram: %w", err)
		}

		return nil
	})
}

// GetDiagram retrieves a diagram by ID.
func (m *Manager) GetDiagram(ctx context.Context, diagramID string) (*types.Diagram, error) {
	query := `
		SELECT id, title, owner_id, problem_id, data, created_at, updated_at
		FROM diagrams
		WHERE id = ?
	`

	row := m.db.QueryRowContext(ctx, query, diagramID)

	diagram, err := scanDiagram(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrDiagramNotFound
		}
		return nil, fmt.Errorf("failed to query diagram: %w", err)
	}

	return diagram, nil
}

// UpdateDiagram overwrites a diagram's mutable fields. The whole document is
// replaced; concurrent saves resolve to the last writer.
func (m *Manager) UpdateDiagram(ctx context.Context, diagram *types.Diagram) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE diagrams
			SET title = ?, data = ?, updated_at = ?
			WHERE id = ?
		`

		result, err := db.ExecContext(ctx, query,
			diagram.Title,
			string(diagram.Data),
			diagram.UpdatedAt,
			diagram.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update diagram: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrDiagramNotFound
		}

		return nil
	})
}

// DeleteDiagram removes a diagram by ID.
func (m *Manager) DeleteDiagram(ctx context.Context, diagramID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM diagrams WHERE id = ?", diagramID)
		if err != nil {
			return fmt.Errorf("failed to delete diagram: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrDiagramNotFound
		}

		return nil
	})
}

// ListDiagramsByOwner returns a user's diagrams, most recently updated first.
func (m *Manager) ListDiagramsByOwner(ctx context.Context, ownerID string) ([]*types.Diagram, error) {
	query := `
		SELECT id, title, owner_id, problem_id, data, created_at, updated_at
		FROM diagrams
		WHERE owner_id = ?
		ORDER BY updated_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagrams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var diagrams []*types.Diagram

	for rows.Next() {
		diagram, err := scanDiagram(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagram row: %w", err)
		}
		diagrams = append(diagrams, diagram)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagram rows: %w", err)
	}

	return diagrams, nil
}

// scanDiagram reads one diagram row through the given scan function.
func scanDiagram(scan func(dest ...interface{}) error) (*types.Diagram, error) {
	var diagram types.Diagram
	var problemID sql.NullString
	var data string

	err := scan(
		&diagram.ID,
		&diagram.Title,
		&diagram.OwnerID,
		&problemID,
		&data,
		&diagram.CreatedAt,
		&diagram.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if problemID.Valid {
		diagram.ProblemID = &problemID.String
	}
	diagram.Data = []byte(data)

	return &diagram, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, "SELECT COUNT(*) FROM diagrams LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}
