package library

import "time"

// Book represents one title in the catalog. Copy counts track how many
// physical copies exist and how many are currently on the shelf.
type Book struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Author          string         `json:"author"`
	TotalCopies     int            `json:"total_copies"`
	AvailableCopies int            `json:"available_copies"`
	Active          bool           `json:"active"`
	Digital         *DigitalExtras `json:"digital,omitempty"`
}

// DigitalExtras carries the extra attributes of a digital edition. A book
// with a nil Digital field is an ordinary physical title.
type DigitalExtras struct {
	DownloadLink  string `json:"download_link"`
	DownloadLimit int    `json:"download_limit"`
}

// IsAvailable reports whether at least one copy can be issued right now.
func (b *Book) IsAvailable() bool {
	return b.Active && b.AvailableCopies > 0
}

// clone returns an independent copy, including the digital payload.
func (b *Book) clone() *Book {
	dup := *b
	if b.Digital != nil {
		extras := *b.Digital
		dup.Digital = &extras
	}
	return &dup
}

// User represents a registered borrower together with their full borrow
// history. History entries are never deleted; returned loans stay on record.
type User struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Active  bool           `json:"active"`
	Borrows []BorrowRecord `json:"borrows"`
}

// ActiveBorrowCount counts loans that have not been returned yet.
func (u *User) ActiveBorrowCount() int {
	n := 0
	for i := range u.Borrows {
		if !u.Borrows[i].Returned {
			n++
		}
	}
	return n
}

// clone returns an independent copy, including the borrow history.
func (u *User) clone() *User {
	dup := *u
	dup.Borrows = append([]BorrowRecord(nil), u.Borrows...)
	return &dup
}

// BorrowRecord is one loan of one book by the user that owns the record.
// ReturnDate is the zero time until the loan is returned.
type BorrowRecord struct {
	BookID     string    `json:"book_id"`
	BorrowDate time.Time `json:"borrow_date"`
	ReturnDate time.Time `json:"return_date,omitempty"`
	Returned   bool      `json:"returned"`
}

// Snapshot is the complete persisted state: every book and every user with
// their borrow histories. Store implementations load and save it atomically.
type Snapshot struct {
	Books []*Book `json:"books"`
	Users []*User `json:"users"`
}
