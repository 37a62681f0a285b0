package library

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LendingService coordinates the catalog and the roster. It is the only
// entry point for mutations: every operation runs under one mutex, persists
// through the Store before reporting success, and rolls its in-memory
// changes back if the store refuses the commit. Either both sides of an
// issue/return land or neither does.
type LendingService struct {
	mu      sync.Mutex
	catalog *Catalog
	roster  *Roster
	store   Store
	policy  Policy
	log     zerolog.Logger
}

// Stats is the read-side aggregation over the catalog and roster.
type Stats struct {
	TotalTitles          int
	TotalAvailableCopies int
	TotalBorrowedCopies  int
	TotalUsers           int
}

// NewLendingService loads the persisted state from store and builds the
// in-memory catalog and roster from it.
func NewLendingService(store Store, policy Policy, logger zerolog.Logger) (*LendingService, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	books, err := store.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	users, err := store.LoadRoster()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	catalog := NewCatalog()
	for _, b := range books {
		if err := catalog.Add(b); err != nil {
			return nil, fmt.Errorf("stored catalog is inconsistent: %w", err)
		}
	}
	roster := NewRoster(policy.MaxActiveBorrows)
	for _, u := range users {
		if err := roster.Add(u); err != nil {
			return nil, fmt.Errorf("stored roster is inconsistent: %w", err)
		}
	}

	logger.Info().Int("books", catalog.Len()).Int("users", roster.Len()).Msg("lending state loaded")
	return &LendingService{
		catalog: catalog,
		roster:  roster,
		store:   store,
		policy:  policy,
		log:     logger,
	}, nil
}

// Close closes the underlying store.
func (s *LendingService) Close() error { return s.store.Close() }

// ------------------ Catalog operations ------------------

// AddBook registers a new title with all copies on the shelf.
func (s *LendingService) AddBook(b *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.catalog.Add(b); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.catalog.drop(b.ID)
		return err
	}
	s.log.Info().Str("book", b.ID).Str("title", b.Title).Int("copies", b.TotalCopies).Msg("book added")
	return nil
}

// RemoveBook deletes a title once no copy is on loan.
func (s *LendingService) RemoveBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.catalog.Find(id)
	if err != nil {
		return err
	}
	idx := s.catalog.indexOf(id)
	if err := s.catalog.Remove(id); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.catalog.restore(b, idx)
		return err
	}
	s.log.Info().Str("book", id).Msg("book removed")
	return nil
}

// FindBook returns a copy; mutating it never touches service state.
func (s *LendingService) FindBook(id string) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.catalog.Find(id)
	if err != nil {
		return nil, err
	}
	return b.clone(), nil
}

// SearchBooks matches case-insensitively against id, title and author.
// Results are copies.
func (s *LendingService) SearchBooks(query string) []*Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooks(s.catalog.Search(query))
}

// ListBooks returns copies of all books in insertion order.
func (s *LendingService) ListBooks() []*Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooks(s.catalog.List())
}

// ------------------ Roster operations ------------------

// RegisterUser adds a borrower. Id and email must both be unused.
func (s *LendingService) RegisterUser(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roster.Add(u); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.roster.drop(u.ID)
		return err
	}
	s.log.Info().Str("user", u.ID).Str("name", u.Name).Msg("user registered")
	return nil
}

// RemoveUser deletes a borrower once they hold no unreturned books.
func (s *LendingService) RemoveUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.roster.Find(id)
	if err != nil {
		return err
	}
	idx := s.roster.indexOf(id)
	if err := s.roster.Remove(id); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.roster.restore(u, idx)
		return err
	}
	s.log.Info().Str("user", id).Msg("user removed")
	return nil
}

// FindUser returns a copy; mutating it never touches service state.
func (s *LendingService) FindUser(id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.roster.Find(id)
	if err != nil {
		return nil, err
	}
	return u.clone(), nil
}

// ListUsers returns copies of all users in registration order.
func (s *LendingService) ListUsers() []*User {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.roster.List()
	out := make([]*User, len(users))
	for i, u := range users {
		out[i] = u.clone()
	}
	return out
}

// ListActiveBorrows returns a user's unreturned loans in borrow order.
func (s *LendingService) ListActiveBorrows(userID string) ([]BorrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.ListActiveBorrows(userID)
}

// ------------------ Lending lifecycle ------------------

// Issue lends a copy of bookID to userID dated today. On any failure the
// catalog and roster are left exactly as they were.
func (s *LendingService) Issue(userID, bookID string, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.roster.Find(userID)
	if err != nil {
		return err
	}
	if !user.Active {
		return fmt.Errorf("user %s is inactive: %w", userID, ErrNotFound)
	}
	book, err := s.catalog.Find(bookID)
	if err != nil {
		return err
	}
	if !book.Active {
		return fmt.Errorf("book %s is inactive: %w", bookID, ErrNotFound)
	}
	if s.roster.HasActiveBorrow(userID, bookID) {
		return fmt.Errorf("user %s, book %s: %w", userID, bookID, ErrAlreadyBorrowed)
	}
	if book.AvailableCopies == 0 {
		return fmt.Errorf("book %s: %w", bookID, ErrNotAvailable)
	}

	if err := s.catalog.DecrementAvailable(bookID); err != nil {
		return err
	}
	if err := s.roster.RecordBorrow(userID, bookID, today); err != nil {
		_ = s.catalog.IncrementAvailable(bookID)
		return err
	}
	if err := s.persist(); err != nil {
		s.roster.undoBorrow(userID, bookID)
		_ = s.catalog.IncrementAvailable(bookID)
		return err
	}

	s.log.Info().Str("user", userID).Str("book", bookID).
		Str("date", FormatDate(today)).Msg("book issued")
	return nil
}

// Return closes the pair's active loan dated today and reports the fine.
// On any failure, including a refused persistence commit, the loan stays
// open and the copy stays off the shelf.
func (s *LendingService) Return(userID, bookID string, today time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	borrowed, ok := s.roster.ActiveBorrowDate(userID, bookID)
	if !ok {
		return 0, fmt.Errorf("user %s, book %s: %w", userID, bookID, ErrNotBorrowed)
	}
	// Validate before mutating anything.
	fine, err := s.ComputeFine(borrowed, today)
	if err != nil {
		return 0, err
	}

	if _, err := s.roster.RecordReturn(userID, bookID, today); err != nil {
		return 0, err
	}
	if err := s.catalog.IncrementAvailable(bookID); err != nil {
		s.roster.undoReturn(userID, bookID)
		return 0, err
	}
	if err := s.persist(); err != nil {
		_ = s.catalog.DecrementAvailable(bookID)
		s.roster.undoReturn(userID, bookID)
		return 0, err
	}

	s.log.Info().Str("user", userID).Str("book", bookID).
		Str("date", FormatDate(today)).Float64("fine", fine).Msg("book returned")
	return fine, nil
}

// ComputeFine charges FinePerDay for each whole day past the grace window.
// Day GraceDays exactly is still free.
func (s *LendingService) ComputeFine(borrowDate, returnDate time.Time) (float64, error) {
	days := DaysBetween(borrowDate, returnDate)
	if days < 0 {
		return 0, fmt.Errorf("return date %s precedes borrow date %s: %w",
			FormatDate(returnDate), FormatDate(borrowDate), ErrInvalidDateRange)
	}
	overdue := days - s.policy.GraceDays
	if overdue <= 0 {
		return 0, nil
	}
	return float64(overdue) * s.policy.FinePerDay, nil
}

// Statistics aggregates the current state. Read-only.
func (s *LendingService) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalTitles: s.catalog.Len(),
		TotalUsers:  s.roster.Len(),
	}
	for _, b := range s.catalog.List() {
		stats.TotalAvailableCopies += b.AvailableCopies
		stats.TotalBorrowedCopies += b.TotalCopies - b.AvailableCopies
	}
	return stats
}

func cloneBooks(books []*Book) []*Book {
	out := make([]*Book, len(books))
	for i, b := range books {
		out[i] = b.clone()
	}
	return out
}

func (s *LendingService) persist() error {
	if err := s.store.SaveAll(s.catalog.List(), s.roster.List()); err != nil {
		s.log.Error().Err(err).Msg("save failed, rolling back")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
