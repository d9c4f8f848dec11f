package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	AgentID   string                 `json:"agent_id"`
	TaskID    *string                `json:"task_id,omitempty"`
}

// RecordRow is a persisted execution record: one command attempt and
// its outcome.
type RecordRow struct {
	RecordID     int64     `json:"record_id"`
	TaskID       string    `json:"task_id"`
	Command      string    `json:"command"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	EdgesAdded   []string  `json:"edges_added,omitempty"`
	EdgesRemoved []string  `json:"edges_removed,omitempty"`
	ErrorReason  *string   `json:"error_reason,omitempty"`
}

// Client manages the Postgres connection for event and record storage.
type Client struct {
	db      *sql.DB
	agentID string
}

// New creates a new Postgres client using environment variables.
// Returns nil if connection fails (caller should handle gracefully).
func New(agentID string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "tableplan")
	dbname := getEnv("PGDATABASE", "tableplan")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:      db,
		agentID: agentID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			agent_id TEXT NOT NULL,
			task_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_agent_id ON events(agent_id);

		CREATE TABLE IF NOT EXISTS execution_records (
			record_id     BIGSERIAL PRIMARY KEY,
			agent_id      TEXT NOT NULL,
			task_id       TEXT NOT NULL,
			command       TEXT NOT NULL,
			status        TEXT NOT NULL,
			start_time    TIMESTAMPTZ NOT NULL,
			end_time      TIMESTAMPTZ NOT NULL,
			edges_added   JSONB,
			edges_removed JSONB,
			error_reason  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_records_task_id ON execution_records(task_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
// Returns error if insert fails.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, taskID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var taskPtr *string
	if taskID != "" {
		taskPtr = &taskID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, agent_id, task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.agentID, taskPtr)
	return err
}

// AppendRecord inserts one execution record.
func (c *Client) AppendRecord(taskID, command, status string, start, end time.Time, edgesAdded, edgesRemoved []string, errorReason string) error {
	addedJSON, err := json.Marshal(edgesAdded)
	if err != nil {
		return fmt.Errorf("failed to marshal edges_added: %w", err)
	}
	removedJSON, err := json.Marshal(edgesRemoved)
	if err != nil {
		return fmt.Errorf("failed to marshal edges_removed: %w", err)
	}

	var reasonPtr *string
	if errorReason != "" {
		reasonPtr = &errorReason
	}

	query := `
		INSERT INTO execution_records (agent_id, task_id, command, status, start_time, end_time, edges_added, edges_removed, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = c.db.Exec(query, c.agentID, taskID, command, status, start, end, addedJSON, removedJSON, reasonPtr)
	return err
}

// Query returns the last N events from the database in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, agent_id, task_id
		FROM events
		WHERE agent_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, taskID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.AgentID, &taskID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// QueryRecords returns the execution records of one task, oldest first.
func (c *Client) QueryRecords(taskID string) ([]RecordRow, error) {
	query := `
		SELECT record_id, task_id, command, status, start_time, end_time, edges_added, edges_removed, error_reason
		FROM execution_records
		WHERE agent_id = $1 AND task_id = $2
		ORDER BY start_time ASC
	`
	rows, err := c.db.Query(query, c.agentID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		var addedJSON, removedJSON []byte
		var reason sql.NullString

		if err := rows.Scan(&r.RecordID, &r.TaskID, &r.Command, &r.Status, &r.StartTime, &r.EndTime, &addedJSON, &removedJSON, &reason); err != nil {
			return nil, err
		}
		if reason.Valid {
			r.ErrorReason = &reason.String
		}
		if len(addedJSON) > 0 {
			if err := json.Unmarshal(addedJSON, &r.EdgesAdded); err != nil {
				return nil, fmt.Errorf("failed to unmarshal edges_added: %w", err)
			}
		}
		if len(removedJSON) > 0 {
			if err := json.Unmarshal(removedJSON, &r.EdgesRemoved); err != nil {
				return nil, fmt.Errorf("failed to unmarshal edges_removed: %w", err)
			}
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
