package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore is the relational Store variant. The whole lending state is
// rewritten inside a single transaction on every SaveAll, so books, users
// and borrow records can never diverge on disk.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and
// applies schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            total_copies INTEGER NOT NULL,
            available_copies INTEGER NOT NULL,
            active BOOLEAN NOT NULL DEFAULT 1,
            download_link TEXT,
            download_limit INTEGER,
            CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            phone TEXT NOT NULL,
            active BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS borrows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL REFERENCES users(id),
            book_id TEXT NOT NULL,
            borrow_date TEXT NOT NULL,
            return_date TEXT,
            returned BOOLEAN NOT NULL DEFAULT 0
        );`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return errors.Wrap(err, "record schema version")
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Store contract
// ---------------------------------------------------------------------------

// LoadCatalog reads every book. rowid order preserves insertion order.
func (s *SQLiteStore) LoadCatalog() ([]*Book, error) {
	rows, err := s.db.Query(`SELECT id,title,author,total_copies,available_copies,active,download_link,download_limit
        FROM books ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		var b Book
		var link sql.NullString
		var limit sql.NullInt64
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &link, &limit); err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		if link.Valid {
			b.Digital = &DigitalExtras{DownloadLink: link.String, DownloadLimit: int(limit.Int64)}
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// LoadRoster reads every user and attaches their borrow history in
// borrow order.
func (s *SQLiteStore) LoadRoster() ([]*User, error) {
	rows, err := s.db.Query(`SELECT id,name,email,phone,active FROM users ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "load roster")
	}
	defer rows.Close()

	var users []*User
	byID := make(map[string]*User)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Active); err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, &u)
		byID[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	brows, err := s.db.Query(`SELECT user_id,book_id,borrow_date,return_date,returned FROM borrows ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "load borrows")
	}
	defer brows.Close()

	for brows.Next() {
		var userID, bookID, borrowDate string
		var returnDate sql.NullString
		var returned bool
		if err := brows.Scan(&userID, &bookID, &borrowDate, &returnDate, &returned); err != nil {
			return nil, errors.Wrap(err, "scan borrow")
		}
		u, ok := byID[userID]
		if !ok {
			return nil, errors.Errorf("borrow record references unknown user %s", userID)
		}
		rec := BorrowRecord{BookID: bookID, Returned: returned}
		if rec.BorrowDate, err = ParseDate(borrowDate); err != nil {
			return nil, err
		}
		if returnDate.Valid {
			if rec.ReturnDate, err = ParseDate(returnDate.String); err != nil {
				return nil, err
			}
		}
		u.Borrows = append(u.Borrows, rec)
	}
	return users, brows.Err()
}

// SaveAll rewrites the full state in one transaction.
func (s *SQLiteStore) SaveAll(books []*Book, users []*User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin save")
	}
	defer tx.Rollback()

	for _, table := range []string{"borrows", "users", "books"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	bookStmt, err := tx.Prepare(`INSERT INTO books(id,title,author,total_copies,available_copies,active,download_link,download_limit)
        VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer bookStmt.Close()
	for _, b := range books {
		var link sql.NullString
		var limit sql.NullInt64
		if b.Digital != nil {
			link = sql.NullString{String: b.Digital.DownloadLink, Valid: true}
			limit = sql.NullInt64{Int64: int64(b.Digital.DownloadLimit), Valid: true}
		}
		if _, err := bookStmt.Exec(b.ID, b.Title, b.Author, b.TotalCopies, b.AvailableCopies, b.Active, link, limit); err != nil {
			return errors.Wrapf(err, "save book %s", b.ID)
		}
	}

	userStmt, err := tx.Prepare(`INSERT INTO users(id,name,email,phone,active) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer userStmt.Close()
	borrowStmt, err := tx.Prepare(`INSERT INTO borrows(user_id,book_id,borrow_date,return_date,returned) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer borrowStmt.Close()

	for _, u := range users {
		if _, err := userStmt.Exec(u.ID, u.Name, u.Email, u.Phone, u.Active); err != nil {
			return errors.Wrapf(err, "save user %s", u.ID)
		}
		for i := range u.Borrows {
			rec := &u.Borrows[i]
			var returnDate sql.NullString
			if rec.Returned {
				returnDate = sql.NullString{String: FormatDate(rec.ReturnDate), Valid: true}
			}
			if _, err := borrowStmt.Exec(u.ID, rec.BookID, FormatDate(rec.BorrowDate), returnDate, rec.Returned); err != nil {
				return errors.Wrapf(err, "save borrow %s/%s", u.ID, rec.BookID)
			}
		}
	}

	return errors.Wrap(tx.Commit(), "commit save")
}
