package library

import (
	"fmt"
	"strings"
	"time"
)

// Roster owns user records and each user's borrow history. It enforces the
// per-user active-borrow cap and the one-active-loan-per-pair rule; the
// returned-loan history is append-only and survives removal checks.
type Roster struct {
	users     map[string]*User
	emails    map[string]string // lowercased email -> user id
	order     []string
	maxActive int
}

func NewRoster(maxActive int) *Roster {
	return &Roster{
		users:     make(map[string]*User),
		emails:    make(map[string]string),
		maxActive: maxActive,
	}
}

// Add registers a user. Both the id and the email must be unused.
func (r *Roster) Add(u *User) error {
	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrDuplicateKey)
	}
	email := strings.ToLower(u.Email)
	if owner, ok := r.emails[email]; ok {
		return fmt.Errorf("email %s already registered to user %s: %w", u.Email, owner, ErrDuplicateKey)
	}
	r.users[u.ID] = u
	r.emails[email] = u.ID
	r.order = append(r.order, u.ID)
	return nil
}

// Remove deletes a user. Outstanding loans block removal; fully returned
// history does not.
func (r *Roster) Remove(id string) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if u.ActiveBorrowCount() > 0 {
		return fmt.Errorf("user %s has unreturned books: %w", id, ErrResourceBusy)
	}
	idx := r.indexOf(id)
	delete(r.users, id)
	delete(r.emails, strings.ToLower(u.Email))
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	return nil
}

func (r *Roster) Find(id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// List returns all users in registration order.
func (r *Roster) List() []*User {
	users := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.users[id])
	}
	return users
}

func (r *Roster) Len() int { return len(r.users) }

// HasActiveBorrow reports whether an unreturned record exists for the pair.
func (r *Roster) HasActiveBorrow(userID, bookID string) bool {
	_, ok := r.activeBorrow(userID, bookID)
	return ok
}

// ActiveBorrowDate returns the borrow date of the pair's active loan.
func (r *Roster) ActiveBorrowDate(userID, bookID string) (time.Time, bool) {
	rec, ok := r.activeBorrow(userID, bookID)
	if !ok {
		return time.Time{}, false
	}
	return rec.BorrowDate, true
}

// RecordBorrow appends a new unreturned record for the pair.
func (r *Roster) RecordBorrow(userID, bookID string, date time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.ActiveBorrowCount() >= r.maxActive {
		return fmt.Errorf("user %s at %d active borrows: %w", userID, r.maxActive, ErrLimitExceeded)
	}
	if r.HasActiveBorrow(userID, bookID) {
		return fmt.Errorf("user %s, book %s: %w", userID, bookID, ErrAlreadyBorrowed)
	}
	u.Borrows = append(u.Borrows, BorrowRecord{BookID: bookID, BorrowDate: date})
	return nil
}

// RecordReturn marks the pair's active record returned and reports the
// original borrow date, which the fine computation needs.
func (r *Roster) RecordReturn(userID, bookID string, date time.Time) (time.Time, error) {
	rec, ok := r.activeBorrow(userID, bookID)
	if !ok {
		return time.Time{}, fmt.Errorf("user %s, book %s: %w", userID, bookID, ErrNotBorrowed)
	}
	rec.ReturnDate = date
	rec.Returned = true
	return rec.BorrowDate, nil
}

// ListActiveBorrows returns the user's unreturned records in borrow order.
func (r *Roster) ListActiveBorrows(userID string) ([]BorrowRecord, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	var active []BorrowRecord
	for i := range u.Borrows {
		if !u.Borrows[i].Returned {
			active = append(active, u.Borrows[i])
		}
	}
	return active, nil
}

func (r *Roster) activeBorrow(userID, bookID string) (*BorrowRecord, bool) {
	u, ok := r.users[userID]
	if !ok {
		return nil, false
	}
	for i := range u.Borrows {
		if u.Borrows[i].BookID == bookID && !u.Borrows[i].Returned {
			return &u.Borrows[i], true
		}
	}
	return nil, false
}

// drop removes the user unconditionally, reversing an Add. Unlike Remove it
// ignores the unreturned-loan check, so rollback works even when the added
// user carried active borrow records.
func (r *Roster) drop(id string) {
	u, ok := r.users[id]
	if !ok {
		return
	}
	idx := r.indexOf(id)
	delete(r.users, id)
	delete(r.emails, strings.ToLower(u.Email))
	r.order = append(r.order[:idx], r.order[idx+1:]...)
}

func (r *Roster) indexOf(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

// undoBorrow drops the pair's active record, reversing a RecordBorrow.
func (r *Roster) undoBorrow(userID, bookID string) {
	u, ok := r.users[userID]
	if !ok {
		return
	}
	for i := len(u.Borrows) - 1; i >= 0; i-- {
		if u.Borrows[i].BookID == bookID && !u.Borrows[i].Returned {
			u.Borrows = append(u.Borrows[:i], u.Borrows[i+1:]...)
			return
		}
	}
}

// undoReturn re-opens the most recently returned record for the pair,
// reversing a RecordReturn.
func (r *Roster) undoReturn(userID, bookID string) {
	u, ok := r.users[userID]
	if !ok {
		return
	}
	for i := len(u.Borrows) - 1; i >= 0; i-- {
		if u.Borrows[i].BookID == bookID && u.Borrows[i].Returned {
			u.Borrows[i].Returned = false
			u.Borrows[i].ReturnDate = time.Time{}
			return
		}
	}
}

// restore undoes a Remove, putting the user back at their original position.
func (r *Roster) restore(u *User, idx int) {
	r.users[u.ID] = u
	r.emails[strings.ToLower(u.Email)] = u.ID
	if idx < 0 || idx > len(r.order) {
		idx = len(r.order)
	}
	r.order = append(r.order[:idx], append([]string{u.ID}, r.order[idx:]...)...)
}
