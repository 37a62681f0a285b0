package library

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps a real store and fails SaveAll on demand, to exercise
// the rollback path.
type flakyStore struct {
	Store
	failSave bool
}

func (f *flakyStore) SaveAll(books []*Book, users []*User) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.SaveAll(books, users)
}

func newService(t *testing.T) *LendingService {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	svc, err := NewLendingService(store, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seedPair(t *testing.T, svc *LendingService) {
	t.Helper()
	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 2)))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))
}

func TestIssueHappyPath(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)

	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))

	b, err := svc.FindBook("B1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)

	active, err := svc.ListActiveBorrows("U1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "B1", active[0].BookID)
}

func TestIssueValidation(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)
	today := day(t, "01/01/2025")

	assert.ErrorIs(t, svc.Issue("U9", "B1", today), ErrNotFound)
	assert.ErrorIs(t, svc.Issue("U1", "B9", today), ErrNotFound)

	require.NoError(t, svc.Issue("U1", "B1", today))
	assert.ErrorIs(t, svc.Issue("U1", "B1", today), ErrAlreadyBorrowed)
}

func TestIssueInactiveEntities(t *testing.T) {
	svc := newService(t)
	today := day(t, "01/01/2025")

	inactiveBook := testBook("B1", "Dune", "Frank Herbert", 1)
	inactiveBook.Active = false
	require.NoError(t, svc.AddBook(inactiveBook))

	inactiveUser := testUser("U1", "Alice", "alice@example.com")
	inactiveUser.Active = false
	require.NoError(t, svc.RegisterUser(inactiveUser))
	require.NoError(t, svc.RegisterUser(testUser("U2", "Bob", "bob@example.com")))

	assert.ErrorIs(t, svc.Issue("U1", "B1", today), ErrNotFound)
	assert.ErrorIs(t, svc.Issue("U2", "B1", today), ErrNotFound)
}

// Same-day issue and return: no fine, shelf count restored.
func TestIssueThenImmediateReturn(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)
	today := day(t, "01/01/2025")

	require.NoError(t, svc.Issue("U1", "B1", today))
	fine, err := svc.Return("U1", "B1", today)
	require.NoError(t, err)
	assert.Zero(t, fine)

	b, err := svc.FindBook("B1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.AvailableCopies)

	// The pair can be issued again after the return.
	require.NoError(t, svc.Issue("U1", "B1", today))
}

func TestReturnWithoutLoan(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)

	_, err := svc.Return("U1", "B1", day(t, "01/01/2025"))
	assert.ErrorIs(t, err, ErrNotBorrowed)
}

func TestReturnBeforeBorrowDate(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)

	require.NoError(t, svc.Issue("U1", "B1", day(t, "10/01/2025")))
	_, err := svc.Return("U1", "B1", day(t, "09/01/2025"))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	// Nothing moved: the loan is still open and the copy still out.
	b, _ := svc.FindBook("B1")
	assert.Equal(t, 1, b.AvailableCopies)
	active, _ := svc.ListActiveBorrows("U1")
	assert.Len(t, active, 1)
}

func TestFineSchedule(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)
	borrowed := day(t, "01/01/2025")

	testCases := []struct {
		returned string
		fine     float64
	}{
		{"01/01/2025", 0},
		{"15/01/2025", 0},  // day 14, last free day
		{"16/01/2025", 2},  // day 15
		{"21/01/2025", 12}, // day 20
	}
	for _, tt := range testCases {
		require.NoError(t, svc.Issue("U1", "B1", borrowed))
		fine, err := svc.Return("U1", "B1", day(t, tt.returned))
		require.NoError(t, err)
		assert.Equal(t, tt.fine, fine, "returned %s", tt.returned)
	}
}

// The worked example: two copies, three borrowers.
func TestLendingScenario(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 2)))
	for _, u := range []*User{
		testUser("U1", "Alice", "alice@example.com"),
		testUser("U2", "Bob", "bob@example.com"),
		testUser("U3", "Carol", "carol@example.com"),
	} {
		require.NoError(t, svc.RegisterUser(u))
	}
	day0 := day(t, "01/01/2025")

	require.NoError(t, svc.Issue("U1", "B1", day0))
	b, _ := svc.FindBook("B1")
	assert.Equal(t, 1, b.AvailableCopies)

	require.NoError(t, svc.Issue("U2", "B1", day0))
	b, _ = svc.FindBook("B1")
	assert.Equal(t, 0, b.AvailableCopies)

	assert.ErrorIs(t, svc.Issue("U3", "B1", day0), ErrNotAvailable)

	fine, err := svc.Return("U1", "B1", day(t, "17/01/2025")) // day 16
	require.NoError(t, err)
	assert.Equal(t, 4.0, fine)
	b, _ = svc.FindBook("B1")
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestRemoveBookBlockedByLoan(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)

	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))
	assert.ErrorIs(t, svc.RemoveBook("B1"), ErrResourceBusy)

	_, err := svc.Return("U1", "B1", day(t, "02/01/2025"))
	require.NoError(t, err)
	require.NoError(t, svc.RemoveBook("B1"))
	_, err = svc.FindBook("B1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveUserBlockedByLoan(t *testing.T) {
	svc := newService(t)
	seedPair(t, svc)

	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))
	assert.ErrorIs(t, svc.RemoveUser("U1"), ErrResourceBusy)

	_, err := svc.Return("U1", "B1", day(t, "02/01/2025"))
	require.NoError(t, err)
	require.NoError(t, svc.RemoveUser("U1"))
}

func TestBorrowLimitPolicy(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	policy := Policy{MaxActiveBorrows: 1, GraceDays: 14, FinePerDay: 2.0}
	svc, err := NewLendingService(store, policy, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 1)))
	require.NoError(t, svc.AddBook(testBook("B2", "Hobbit", "Tolkien", 1)))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))
	today := day(t, "01/01/2025")

	require.NoError(t, svc.Issue("U1", "B1", today))
	err = svc.Issue("U1", "B2", today)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	// The failed issue must not leak a copy.
	b, _ := svc.FindBook("B2")
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestStatistics(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 5)))
	require.NoError(t, svc.AddBook(testBook("B2", "Hobbit", "Tolkien", 2)))
	for _, u := range []*User{
		testUser("U1", "Alice", "alice@example.com"),
		testUser("U2", "Bob", "bob@example.com"),
		testUser("U3", "Carol", "carol@example.com"),
		testUser("U4", "Dave", "dave@example.com"),
	} {
		require.NoError(t, svc.RegisterUser(u))
	}
	today := day(t, "01/01/2025")
	require.NoError(t, svc.Issue("U1", "B1", today))
	require.NoError(t, svc.Issue("U2", "B1", today))

	stats := svc.Statistics()
	assert.Equal(t, Stats{
		TotalTitles:          2,
		TotalAvailableCopies: 5,
		TotalBorrowedCopies:  2,
		TotalUsers:           4,
	}, stats)
}

func TestIssueRollsBackOnPersistenceFailure(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	flaky := &flakyStore{Store: store}
	svc, err := NewLendingService(flaky, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 2)))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))

	flaky.failSave = true
	err = svc.Issue("U1", "B1", day(t, "01/01/2025"))
	assert.ErrorIs(t, err, ErrPersistence)

	// In-memory state must match the last durable state.
	b, _ := svc.FindBook("B1")
	assert.Equal(t, 2, b.AvailableCopies)
	active, _ := svc.ListActiveBorrows("U1")
	assert.Empty(t, active)

	flaky.failSave = false
	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))
}

func TestReturnRollsBackOnPersistenceFailure(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	flaky := &flakyStore{Store: store}
	svc, err := NewLendingService(flaky, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 2)))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))
	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))

	flaky.failSave = true
	_, err = svc.Return("U1", "B1", day(t, "05/01/2025"))
	assert.ErrorIs(t, err, ErrPersistence)

	// The loan stays open and the copy stays off the shelf.
	b, _ := svc.FindBook("B1")
	assert.Equal(t, 1, b.AvailableCopies)
	active, _ := svc.ListActiveBorrows("U1")
	assert.Len(t, active, 1)

	flaky.failSave = false
	fine, err := svc.Return("U1", "B1", day(t, "05/01/2025"))
	require.NoError(t, err)
	assert.Zero(t, fine)
}

// A book added with copies already out (restored state) must vanish again
// when the store refuses the commit; the on-loan removal guard must not
// strand it in memory.
func TestAddBookRollbackWithBorrowedCopies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	flaky := &flakyStore{Store: store, failSave: true}
	svc, err := NewLendingService(flaky, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	b := &Book{ID: "B1", Title: "Dune", Author: "Frank Herbert",
		TotalCopies: 2, AvailableCopies: 1, Active: true}
	assert.ErrorIs(t, svc.AddBook(b), ErrPersistence)

	_, err = svc.FindBook("B1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, svc.Statistics().TotalTitles)

	flaky.failSave = false
	require.NoError(t, svc.AddBook(b))
}

// Same for a user registered with an unreturned record on their history.
func TestRegisterUserRollbackWithActiveBorrow(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "library.json"))
	require.NoError(t, err)
	flaky := &flakyStore{Store: store, failSave: true}
	svc, err := NewLendingService(flaky, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	u := testUser("U1", "Alice", "alice@example.com")
	u.Borrows = []BorrowRecord{{BookID: "B1", BorrowDate: day(t, "01/01/2025")}}
	assert.ErrorIs(t, svc.RegisterUser(u), ErrPersistence)

	_, err = svc.FindUser("U1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, svc.Statistics().TotalUsers)

	// The email must be free again too.
	flaky.failSave = false
	require.NoError(t, svc.RegisterUser(testUser("U2", "Alice", "alice@example.com")))
}

// Accessors hand out copies: mutating a result must never reach the
// service-owned state behind the mutex.
func TestAccessorsReturnCopies(t *testing.T) {
	svc := newService(t)
	book := testBook("B1", "Dune", "Frank Herbert", 2)
	book.Digital = &DigitalExtras{DownloadLink: "https://example.com/b1", DownloadLimit: 3}
	require.NoError(t, svc.AddBook(book))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))
	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))

	found, err := svc.FindBook("B1")
	require.NoError(t, err)
	found.AvailableCopies = 99
	found.Digital.DownloadLimit = 99

	svc.ListBooks()[0].Title = "Mangled"
	svc.SearchBooks("dune")[0].Active = false

	b, err := svc.FindBook("B1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Equal(t, 3, b.Digital.DownloadLimit)
	assert.Equal(t, "Dune", b.Title)
	assert.True(t, b.Active)

	user, err := svc.FindUser("U1")
	require.NoError(t, err)
	user.Active = false
	user.Borrows[0].Returned = true
	svc.ListUsers()[0].Email = "mangled@example.com"

	u, err := svc.FindUser("U1")
	require.NoError(t, err)
	assert.True(t, u.Active)
	assert.Equal(t, "alice@example.com", u.Email)
	require.Len(t, u.Borrows, 1)
	assert.False(t, u.Borrows[0].Returned)

	// The loan is still live as far as the service is concerned.
	require.ErrorIs(t, svc.Issue("U1", "B1", day(t, "02/01/2025")), ErrAlreadyBorrowed)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	svc, err := NewLendingService(store, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, svc.AddBook(testBook("B1", "Dune", "Frank Herbert", 2)))
	require.NoError(t, svc.RegisterUser(testUser("U1", "Alice", "alice@example.com")))
	require.NoError(t, svc.Issue("U1", "B1", day(t, "01/01/2025")))
	require.NoError(t, svc.Close())

	store2, err := NewFileStore(path)
	require.NoError(t, err)
	svc2, err := NewLendingService(store2, DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer svc2.Close()

	b, err := svc2.FindBook("B1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)

	fine, err := svc2.Return("U1", "B1", day(t, "16/01/2025"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, fine)
}
