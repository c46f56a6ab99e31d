package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/beacon-notify/beacon/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection and initializes schema
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	wrapper := &DB{db}
	if err := wrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return wrapper, nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Configured push servers
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		token TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_connected DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Applications registered on a server; app_id is server-assigned and
	-- only unique within that server
	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		app_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		image TEXT,
		notify_enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(server_id, app_id)
	);

	-- Ingested messages
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		msg_id INTEGER NOT NULL,
		app_id INTEGER NOT NULL,
		title TEXT,
		body TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		date DATETIME NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		extras TEXT,
		received_at DATETIME NOT NULL
	);

	-- Singleton client settings
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		show_notifications INTEGER NOT NULL DEFAULT 1,
		play_sound INTEGER NOT NULL DEFAULT 1
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_applications_server ON applications(server_id);
	CREATE INDEX IF NOT EXISTS idx_messages_server_date ON messages(server_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(is_read) WHERE is_read = 0;
	`

	_, err := db.Exec(schema)
	return err
}

// --- Server Operations ---

// CreateServer inserts a new server configuration
func (db *DB) CreateServer(server *models.ServerConfig) error {
	_, err := db.Exec(`
		INSERT INTO servers (id, name, url, token, enabled, last_connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		server.ID.String(), server.Name, server.URL, server.Token, server.Enabled,
		server.LastConnected, server.CreatedAt, server.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

// GetServer retrieves a server configuration by its ID
func (db *DB) GetServer(id uuid.UUID) (*models.ServerConfig, error) {
	row := db.QueryRow(`
		SELECT id, name, url, token, enabled, last_connected, created_at, updated_at
		FROM servers WHERE id = ?`, id.String())
	return scanServer(row)
}

// ListServers returns all configured servers ordered by creation time
func (db *DB) ListServers() ([]*models.ServerConfig, error) {
	rows, err := db.Query(`
		SELECT id, name, url, token, enabled, last_connected, created_at, updated_at
		FROM servers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	servers := make([]*models.ServerConfig, 0)
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// UpdateServer updates a server's mutable configuration fields
func (db *DB) UpdateServer(server *models.ServerConfig) error {
	res, err := db.Exec(`
		UPDATE servers SET name = ?, url = ?, token = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		server.Name, server.URL, server.Token, server.Enabled, time.Now(), server.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	return requireRow(res)
}

// UpdateServerLastConnected stamps the last successful connection time
func (db *DB) UpdateServerLastConnected(id uuid.UUID, at time.Time) error {
	res, err := db.Exec(`UPDATE servers SET last_connected = ? WHERE id = ?`, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to update last connected: %w", err)
	}
	return requireRow(res)
}

// DeleteServer removes a server; its applications and messages cascade
func (db *DB) DeleteServer(id uuid.UUID) error {
	res, err := db.Exec(`DELETE FROM servers WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return requireRow(res)
}

// --- Application Operations ---

// ListApplications returns all cached applications for a server
func (db *DB) ListApplications(serverID uuid.UUID) ([]*models.Application, error) {
	rows, err := db.Query(`
		SELECT id, server_id, app_id, name, description, image, notify_enabled, created_at, updated_at
		FROM applications WHERE server_id = ? ORDER BY app_id`, serverID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// GetApplication retrieves an application by its server and server-assigned id
func (db *DB) GetApplication(serverID uuid.UUID, appID int64) (*models.Application, error) {
	row := db.QueryRow(`
		SELECT id, server_id, app_id, name, description, image, notify_enabled, created_at, updated_at
		FROM applications WHERE server_id = ? AND app_id = ?`, serverID.String(), appID)
	return scanApplication(row)
}

// CreateApplication inserts a new application record
func (db *DB) CreateApplication(app *models.Application) error {
	_, err := db.Exec(`
		INSERT INTO applications (id, server_id, app_id, name, description, image, notify_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID.String(), app.ServerID.String(), app.AppID, app.Name, app.Description,
		app.Image, app.NotifyEnabled, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// SetApplicationNotify toggles per-application notification eligibility
func (db *DB) SetApplicationNotify(id uuid.UUID, enabled bool) error {
	res, err := db.Exec(`UPDATE applications SET notify_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return requireRow(res)
}

// ApplyApplicationChanges applies a registry reconciliation result in one
// transaction: inserts, in-place updates, and deletions of unseen records.
// Nothing is applied if any step fails.
func (db *DB) ApplyApplicationChanges(creates, updates []*models.Application, deletes []uuid.UUID) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, app := range creates {
		if _, err := tx.Exec(`
			INSERT INTO applications (id, server_id, app_id, name, description, image, notify_enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			app.ID.String(), app.ServerID.String(), app.AppID, app.Name, app.Description,
			app.Image, app.NotifyEnabled, app.CreatedAt, app.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert application %d: %w", app.AppID, err)
		}
	}

	for _, app := range updates {
		if _, err := tx.Exec(`
			UPDATE applications SET name = ?, description = ?, image = ?, updated_at = ?
			WHERE id = ?`,
			app.Name, app.Description, app.Image, app.UpdatedAt, app.ID.String()); err != nil {
			return fmt.Errorf("failed to update application %d: %w", app.AppID, err)
		}
	}

	for _, id := range deletes {
		if _, err := tx.Exec(`DELETE FROM applications WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete application %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit application changes: %w", err)
	}
	return nil
}

// --- Message Operations ---

// CreateMessage inserts an ingested message
func (db *DB) CreateMessage(msg *models.Message) error {
	var extras interface{}
	if msg.Extras != nil {
		data, err := json.Marshal(msg.Extras)
		if err != nil {
			return fmt.Errorf("failed to encode extras: %w", err)
		}
		extras = string(data)
	}

	_, err := db.Exec(`
		INSERT INTO messages (id, server_id, msg_id, app_id, title, body, priority, date, is_read, extras, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ServerID.String(), msg.MsgID, msg.AppID, msg.Title, msg.Body,
		msg.Priority, msg.Date, msg.Read, extras, msg.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by its ID
func (db *DB) GetMessage(id uuid.UUID) (*models.Message, error) {
	row := db.QueryRow(`
		SELECT id, server_id, msg_id, app_id, title, body, priority, date, is_read, extras, received_at
		FROM messages WHERE id = ?`, id.String())
	return scanMessage(row)
}

// ListMessages returns messages across all servers, newest first
func (db *DB) ListMessages(limit int) ([]*models.Message, error) {
	return db.queryMessages(`
		SELECT id, server_id, msg_id, app_id, title, body, priority, date, is_read, extras, received_at
		FROM messages ORDER BY date DESC LIMIT ?`, limit)
}

// ListMessagesByServer returns a server's messages, newest first
func (db *DB) ListMessagesByServer(serverID uuid.UUID, limit int) ([]*models.Message, error) {
	return db.queryMessages(`
		SELECT id, server_id, msg_id, app_id, title, body, priority, date, is_read, extras, received_at
		FROM messages WHERE server_id = ? ORDER BY date DESC LIMIT ?`, serverID.String(), limit)
}

// MarkMessageRead sets the read flag on a message. It reports whether the
// flag actually changed so the caller can adjust the unread counter.
func (db *DB) MarkMessageRead(id uuid.UUID) (bool, error) {
	res, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE id = ? AND is_read = 0`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	return n > 0, nil
}

// MarkAllMessagesRead sets the read flag on every unread message in a single
// bulk statement and returns the number of messages affected
func (db *DB) MarkAllMessagesRead() (int64, error) {
	res, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark all messages read: %w", err)
	}
	return n, nil
}

// CountUnreadMessages returns the number of unread messages across all servers
func (db *DB) CountUnreadMessages() (int64, error) {
	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE is_read = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// DeleteMessage removes a single message
func (db *DB) DeleteMessage(id uuid.UUID) error {
	res, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return requireRow(res)
}

// DeleteAllMessages removes every message
func (db *DB) DeleteAllMessages() error {
	if _, err := db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// DeleteMessagesByServer removes every message belonging to one server
func (db *DB) DeleteMessagesByServer(serverID uuid.UUID) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE server_id = ?`, serverID.String()); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// --- Settings Operations ---

// GetSettings returns the singleton settings row, or defaults if absent
func (db *DB) GetSettings() (*models.Settings, error) {
	settings := &models.Settings{}
	err := db.QueryRow(`SELECT show_notifications, play_sound FROM settings WHERE id = 1`).
		Scan(&settings.ShowNotifications, &settings.PlaySound)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings upserts the singleton settings row
func (db *DB) SaveSettings(settings *models.Settings) error {
	_, err := db.Exec(`
		INSERT INTO settings (id, show_notifications, play_sound) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET show_notifications = excluded.show_notifications, play_sound = excluded.play_sound`,
		settings.ShowNotifications, settings.PlaySound)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// --- Scan helpers ---

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServer(row rowScanner) (*models.ServerConfig, error) {
	server := &models.ServerConfig{}
	var idStr string
	var lastConnected sql.NullTime

	err := row.Scan(&idStr, &server.Name, &server.URL, &server.Token, &server.Enabled,
		&lastConnected, &server.CreatedAt, &server.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	server.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid server id %q: %w", idStr, err)
	}
	if lastConnected.Valid {
		server.LastConnected = &lastConnected.Time
	}
	return server, nil
}

func scanApplication(row rowScanner) (*models.Application, error) {
	app := &models.Application{}
	var idStr, serverIDStr string
	var description, image sql.NullString

	err := row.Scan(&idStr, &serverIDStr, &app.AppID, &app.Name, &description, &image,
		&app.NotifyEnabled, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	if app.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid application id %q: %w", idStr, err)
	}
	if app.ServerID, err = uuid.Parse(serverIDStr); err != nil {
		return nil, fmt.Errorf("invalid server id %q: %w", serverIDStr, err)
	}
	app.Description = description.String
	app.Image = image.String
	return app, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var idStr, serverIDStr string
	var title, extras sql.NullString

	err := row.Scan(&idStr, &serverIDStr, &msg.MsgID, &msg.AppID, &title, &msg.Body,
		&msg.Priority, &msg.Date, &msg.Read, &extras, &msg.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	if msg.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", idStr, err)
	}
	if msg.ServerID, err = uuid.Parse(serverIDStr); err != nil {
		return nil, fmt.Errorf("invalid server id %q: %w", serverIDStr, err)
	}
	msg.Title = title.String
	if extras.Valid && extras.String != "" {
		if err := json.Unmarshal([]byte(extras.String), &msg.Extras); err != nil {
			return nil, fmt.Errorf("failed to decode extras: %w", err)
		}
	}
	return msg, nil
}

func (db *DB) queryMessages(query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// requireRow maps zero affected rows to ErrNotFound
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
