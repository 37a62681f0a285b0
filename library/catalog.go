package library

import (
	"fmt"
	"strings"
)

// Catalog owns the book collection. All copy-count bookkeeping goes through
// it so availableCopies can never leave [0, totalCopies]. Iteration order is
// insertion order, which keeps search results stable for a given dataset.
type Catalog struct {
	books map[string]*Book
	order []string
}

func NewCatalog() *Catalog {
	return &Catalog{books: make(map[string]*Book)}
}

// Add registers a new title. The book's counts must already satisfy
// 0 <= available <= total.
func (c *Catalog) Add(b *Book) error {
	if _, ok := c.books[b.ID]; ok {
		return fmt.Errorf("book %s: %w", b.ID, ErrDuplicateKey)
	}
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return fmt.Errorf("book %s: %d/%d copies: %w", b.ID, b.AvailableCopies, b.TotalCopies, ErrInvariantViolation)
	}
	c.books[b.ID] = b
	c.order = append(c.order, b.ID)
	return nil
}

// Remove deletes a title. It refuses while any copy is on loan, so borrow
// records always resolve to an existing book.
func (c *Catalog) Remove(id string) error {
	b, ok := c.books[id]
	if !ok {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if b.AvailableCopies != b.TotalCopies {
		return fmt.Errorf("book %s has copies on loan: %w", id, ErrResourceBusy)
	}
	idx := c.indexOf(id)
	delete(c.books, id)
	c.order = append(c.order[:idx], c.order[idx+1:]...)
	return nil
}

func (c *Catalog) Find(id string) (*Book, error) {
	b, ok := c.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// Search matches query case-insensitively against id, title and author.
// Results come back in insertion order.
func (c *Catalog) Search(query string) []*Book {
	q := strings.ToLower(query)
	var results []*Book
	for _, id := range c.order {
		b := c.books[id]
		if strings.Contains(strings.ToLower(b.ID), q) ||
			strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) {
			results = append(results, b)
		}
	}
	return results
}

// List returns all books in insertion order.
func (c *Catalog) List() []*Book {
	books := make([]*Book, 0, len(c.order))
	for _, id := range c.order {
		books = append(books, c.books[id])
	}
	return books
}

func (c *Catalog) Len() int { return len(c.books) }

// DecrementAvailable takes one copy off the shelf for a loan.
func (c *Catalog) DecrementAvailable(id string) error {
	b, ok := c.books[id]
	if !ok {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if b.AvailableCopies == 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotAvailable)
	}
	b.AvailableCopies--
	return nil
}

// IncrementAvailable puts a returned copy back on the shelf.
func (c *Catalog) IncrementAvailable(id string) error {
	b, ok := c.books[id]
	if !ok {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if b.AvailableCopies == b.TotalCopies {
		return fmt.Errorf("book %s: all %d copies already shelved: %w", id, b.TotalCopies, ErrInvariantViolation)
	}
	b.AvailableCopies++
	return nil
}

// drop removes the book unconditionally, reversing an Add. Unlike Remove it
// ignores the on-loan check, so rollback works even when the added book
// carried borrowed copies.
func (c *Catalog) drop(id string) {
	if _, ok := c.books[id]; !ok {
		return
	}
	idx := c.indexOf(id)
	delete(c.books, id)
	c.order = append(c.order[:idx], c.order[idx+1:]...)
}

func (c *Catalog) indexOf(id string) int {
	for i, v := range c.order {
		if v == id {
			return i
		}
	}
	return -1
}

// restore undoes a Remove, putting the book back at its original position.
func (c *Catalog) restore(b *Book, idx int) {
	c.books[b.ID] = b
	if idx < 0 || idx > len(c.order) {
		idx = len(c.order)
	}
	c.order = append(c.order[:idx], append([]string{b.ID}, c.order[idx:]...)...)
}
