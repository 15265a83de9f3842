package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound é retornado quando o registro não existe
	ErrNotFound = errors.New("registro não encontrado")

	// ErrSearchLimit é retornado quando o limite de buscas salvas foi atingido
	ErrSearchLimit = errors.New("limite de buscas atingido")
)

// DB encapsula a conexão com o banco de dados
type DB struct {
	conn *sql.DB
}

// New cria uma nova instância do banco de dados.
// Toda transação é aberta com BEGIN IMMEDIATE para serializar escritas
// concorrentes sobre a mesma URL.
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Println("Banco de dados inicializado com sucesso")
	return db, nil
}

// Close fecha a conexão com o banco de dados
func (db *DB) Close() error {
	return db.conn.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS search_configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term TEXT NOT NULL,
	min_price REAL,
	max_price REAL,
	sizes TEXT,
	last_run DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	search_config_id INTEGER NOT NULL REFERENCES search_configs(id) ON DELETE CASCADE,
	url TEXT NOT NULL UNIQUE,
	title TEXT,
	brand TEXT,
	price REAL NOT NULL DEFAULT 0,
	size TEXT,
	image_url TEXT,
	state TEXT NOT NULL DEFAULT 'active',
	discovered_at DATETIME NOT NULL,
	sold_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_listings_search ON listings(search_config_id, discovered_at);
CREATE INDEX IF NOT EXISTS idx_listings_state ON listings(state, discovered_at);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	price REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_listing ON price_history(listing_id);

CREATE TABLE IF NOT EXISTS alert_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	brands TEXT,
	max_price REAL,
	active BOOLEAN DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alert_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	history_id INTEGER NOT NULL REFERENCES price_history(id) ON DELETE CASCADE,
	trigger_key TEXT NOT NULL,
	sent_at DATETIME NOT NULL,
	UNIQUE(history_id, trigger_key)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_runs (
	id TEXT PRIMARY KEY,
	search_config_id INTEGER REFERENCES search_configs(id) ON DELETE CASCADE,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	pages INTEGER DEFAULT 0,
	found INTEGER DEFAULT 0,
	new_count INTEGER DEFAULT 0,
	updated_count INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0,
	alert_count INTEGER DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT
);
`

// column é uma coluna adicionada depois da criação inicial da tabela
type column struct {
	table string
	name  string
	ddl   string
}

// migrations só acrescenta colunas anuláveis, na ordem em que foram criadas.
// Nunca remover ou reordenar itens desta lista.
var migrations = []column{
	{"search_configs", "condition", "TEXT"},
	{"search_configs", "brand", "TEXT"},
	{"search_configs", "colors", "TEXT"},
	{"search_configs", "categories", "TEXT"},
	{"search_configs", "max_pages", "INTEGER"},
	{"search_configs", "max_items", "INTEGER"},
	{"listings", "sold_reason", "TEXT"},
	{"alert_rules", "min_discount", "REAL"},
	{"alert_rules", "max_z", "REAL"},
}

// init cria as tabelas necessárias e aplica as migrações pendentes
func (db *DB) init() error {
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("erro ao criar schema: %w", err)
	}

	for _, m := range migrations {
		if err := db.addColumnIfMissing(m); err != nil {
			return fmt.Errorf("erro na migração %s.%s: %w", m.table, m.name, err)
		}
	}
	return nil
}

func (db *DB) addColumnIfMissing(m column) error {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", m.table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, ctyp string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctyp, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, m.name) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.conn.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.name, m.ddl))
	if err == nil {
		log.Printf("Migração aplicada: %s.%s", m.table, m.name)
	}
	return err
}

// Ping verifica se o banco responde
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rowScanner é satisfeito por *sql.Row e *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func splitList(s sql.NullString) []string {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return []string{}
	}
	parts := strings.Split(s.String, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	return strings.Join(clean, ",")
}
