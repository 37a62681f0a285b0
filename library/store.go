package library

// Store persists the combined catalog and roster state. SaveAll must commit
// both sides atomically: a crash mid-save may lose the whole save but never
// half of it. The SQLite variant wraps the save in a transaction; the flat
// file variant rewrites a snapshot and renames it into place.
type Store interface {
	LoadCatalog() ([]*Book, error)
	LoadRoster() ([]*User, error)
	SaveAll(books []*Book, users []*User) error
	Close() error
}
