package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database and runs migrations.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			role          TEXT NOT NULL DEFAULT 'customer',
			password_hash TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS products (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			subject     TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			bot_active  INTEGER NOT NULL DEFAULT 1,
			customer_id TEXT NOT NULL REFERENCES users(id),
			agent_id    TEXT,
			product_id  TEXT REFERENCES products(id),
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			ticket_id  TEXT NOT NULL REFERENCES tickets(id),
			sender_id  TEXT,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets(customer_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// --- users ---

func (s *SQLiteStore) CreateUser(u *protocol.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, name, email, role, password_hash) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, string(u.Role), u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: user %q: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(id string) (*protocol.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, name, email, role, password_hash FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(email string) (*protocol.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, name, email, role, password_hash FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*protocol.User, error) {
	var u protocol.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	u.Role = protocol.Role(role)
	return &u, nil
}

// --- products ---

func (s *SQLiteStore) CreateProduct(p *protocol.Product) error {
	_, err := s.db.Exec(`INSERT INTO products (id, name) VALUES (?, ?)`, p.ID, p.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: product %q: %w", p.Name, ErrDuplicate)
		}
		return fmt.Errorf("store: create product: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListProducts() ([]*protocol.Product, error) {
	rows, err := s.db.Query(`SELECT id, name FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var products []*protocol.Product
	for rows.Next() {
		var p protocol.Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *SQLiteStore) DeleteProduct(id string) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tickets WHERE product_id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("store: delete product: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("store: product used by %d ticket(s): %w", n, ErrInUse)
	}
	res, err := s.db.Exec(`DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete product: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("store: product %q: %w", id, ErrNotFound)
	}
	return nil
}

// --- tickets ---

func (s *SQLiteStore) CreateTicket(t *protocol.Ticket) error {
	_, err := s.db.Exec(`
		INSERT INTO tickets (id, subject, status, bot_active, customer_id, agent_id, product_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Subject, string(t.Status), boolToInt(t.BotActive),
		t.CustomerID, nullable(t.AgentID), nullable(t.ProductID), t.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("store: create ticket: referenced record: %w", ErrNotFound)
		}
		return fmt.Errorf("store: create ticket: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTicket(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`
		SELECT id, subject, status, bot_active, customer_id, agent_id, product_id, created_at
		FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: ticket %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get ticket: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTickets(f TicketFilter) ([]*protocol.Ticket, error) {
	query := `SELECT id, subject, status, bot_active, customer_id, agent_id, product_id, created_at FROM tickets`
	var args []any
	if f.CustomerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, f.CustomerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) UpdateTicket(t *protocol.Ticket) error {
	res, err := s.db.Exec(`
		UPDATE tickets SET subject = ?, status = ?, bot_active = ?, agent_id = ? WHERE id = ?`,
		t.Subject, string(t.Status), boolToInt(t.BotActive), nullable(t.AgentID), t.ID)
	if err != nil {
		return fmt.Errorf("store: update ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: ticket %q: %w", t.ID, ErrNotFound)
	}
	return nil
}

// --- messages ---

func (s *SQLiteStore) AppendMessage(m *protocol.Message) error {
	var sender any
	if m.Sender.IsHuman() {
		sender = m.Sender.UserID()
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, ticket_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.TicketID, sender, m.Content, m.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ticketID string) ([]protocol.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, content, created_at FROM messages
		WHERE ticket_id = ? ORDER BY created_at, id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, ticketID)
}

// RecentMessages returns the last limit messages for a ticket in
// chronological order.
func (s *SQLiteStore) RecentMessages(ticketID string, limit int) ([]protocol.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, content, created_at FROM (
			SELECT id, sender_id, content, created_at FROM messages
			WHERE ticket_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at, id`, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, ticketID)
}

// DB returns the underlying database connection (for testing).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

func scanMessages(rows *sql.Rows, ticketID string) ([]protocol.Message, error) {
	var msgs []protocol.Message
	for rows.Next() {
		var m protocol.Message
		var sender sql.NullString
		var ts string
		if err := rows.Scan(&m.ID, &sender, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		if sender.Valid {
			m.Sender = protocol.HumanSender(sender.String)
		} else {
			m.Sender = protocol.Automated
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		m.TicketID = ticketID
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt string
	var botActive int
	var agentID, productID sql.NullString

	err := row.Scan(&t.ID, &t.Subject, &status, &botActive, &t.CustomerID, &agentID, &productID, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Status = protocol.TicketStatus(status)
	t.BotActive = botActive != 0
	if agentID.Valid {
		t.AgentID = agentID.String
	}
	if productID.Valid {
		t.ProductID = productID.String
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
