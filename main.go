package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"library-tracker/library"
)

var (
	storeKind  string
	storePath  string
	configPath string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Optional .env for LIBRARY_* overrides; absence is fine.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "library",
		Short: "Track a book catalog, borrowers and the loans between them",
		Long: `library manages a catalog of books, a roster of users and the lending
lifecycle between them: issuing, returning, overdue fines and statistics.
State lives either in a SQLite database or a flat JSON snapshot.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&storeKind, "store", "sqlite", "storage backend: sqlite or file")
	root.PersistentFlags().StringVar(&storePath, "db", "", "path to the store (default library.db / library.json)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional policy config file")

	root.AddCommand(
		addBookCmd(),
		removeBookCmd(),
		listBooksCmd(),
		searchCmd(),
		registerUserCmd(),
		removeUserCmd(),
		listUsersCmd(),
		issueCmd(),
		returnCmd(),
		borrowedCmd(),
		statsCmd(),
	)
	return root
}

func openService() (*library.LendingService, error) {
	policy, err := library.LoadPolicy(configPath)
	if err != nil {
		return nil, err
	}

	var store library.Store
	switch storeKind {
	case "sqlite":
		path := storePath
		if path == "" {
			path = "library.db"
		}
		store, err = library.NewSQLiteStore(path)
	case "file":
		path := storePath
		if path == "" {
			path = "library.json"
		}
		store, err = library.NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite or file)", storeKind)
	}
	if err != nil {
		return nil, err
	}

	return library.NewLendingService(store, policy, log.Logger)
}

func addBookCmd() *cobra.Command {
	var id, title, author, link string
	var copies, limit int
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a new title to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if copies <= 0 {
				return fmt.Errorf("copies must be positive, got %d", copies)
			}
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			book := &library.Book{
				ID: id, Title: title, Author: author,
				TotalCopies: copies, AvailableCopies: copies, Active: true,
			}
			if link != "" {
				book.Digital = &library.DigitalExtras{DownloadLink: link, DownloadLimit: limit}
			}
			if err := svc.AddBook(book); err != nil {
				return err
			}
			fmt.Printf("Added %q (%s), %d copies\n", title, id, copies)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "book id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&author, "author", "", "author")
	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies")
	cmd.Flags().StringVar(&link, "download-link", "", "download link for a digital edition")
	cmd.Flags().IntVar(&limit, "download-limit", 0, "download limit for a digital edition")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("author")
	return cmd
}

func removeBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-book <book-id>",
		Short: "Remove a title (fails while copies are on loan)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.RemoveBook(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed book %s\n", args[0])
			return nil
		},
	}
}

func listBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-books",
		Short: "List every title in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			printBooks(svc.ListBooks())
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search books by id, title or author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			results := svc.SearchBooks(args[0])
			if len(results) == 0 {
				fmt.Println("No books found.")
				return nil
			}
			printBooks(results)
			return nil
		},
	}
}

func registerUserCmd() *cobra.Command {
	var id, name, email, phone string
	cmd := &cobra.Command{
		Use:   "register-user",
		Short: "Register a new borrower",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			user := &library.User{ID: id, Name: name, Email: email, Phone: phone, Active: true}
			if err := svc.RegisterUser(user); err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s)\n", name, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

func removeUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-user <user-id>",
		Short: "Remove a borrower (fails while books are unreturned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.RemoveUser(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed user %s\n", args[0])
			return nil
		},
	}
}

func listUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "List every registered borrower",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			users := svc.ListUsers()
			if len(users) == 0 {
				fmt.Println("No users registered.")
				return nil
			}
			fmt.Printf("%-10s %-25s %-30s %-15s %-8s %s\n", "ID", "Name", "Email", "Phone", "Active", "Borrowed")
			fmt.Println(strings.Repeat("-", 100))
			for _, u := range users {
				fmt.Printf("%-10s %-25s %-30s %-15s %-8t %d\n",
					u.ID, u.Name, u.Email, u.Phone, u.Active, u.ActiveBorrowCount())
			}
			return nil
		},
	}
}

func issueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <user-id> <book-id>",
		Short: "Issue a book to a user, dated today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			today := time.Now()
			if err := svc.Issue(args[0], args[1], today); err != nil {
				return err
			}
			fmt.Printf("Issued %s to %s on %s\n", args[1], args[0], library.FormatDate(today))
			return nil
		},
	}
}

func returnCmd() *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "return <user-id> <book-id>",
		Short: "Return a borrowed book and report the fine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			returnDate := time.Now()
			if dateStr != "" {
				var err error
				if returnDate, err = library.ParseDate(dateStr); err != nil {
					return err
				}
			}
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			fine, err := svc.Return(args[0], args[1], returnDate)
			if err != nil {
				return err
			}
			fmt.Printf("Returned %s from %s on %s\n", args[1], args[0], library.FormatDate(returnDate))
			if fine > 0 {
				fmt.Printf("Fine due: %.2f\n", fine)
			} else {
				fmt.Println("No fine due.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "return date as DD/MM/YYYY (default today)")
	return cmd
}

func borrowedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrowed <user-id>",
		Short: "List a user's unreturned books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			active, err := svc.ListActiveBorrows(args[0])
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println("No active borrowed books.")
				return nil
			}
			fmt.Printf("%-15s %s\n", "Book", "Borrowed on")
			for _, rec := range active {
				fmt.Printf("%-15s %s\n", rec.BookID, library.FormatDate(rec.BorrowDate))
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			stats := svc.Statistics()
			fmt.Printf("Total book titles:      %d\n", stats.TotalTitles)
			fmt.Printf("Total available copies: %d\n", stats.TotalAvailableCopies)
			fmt.Printf("Total borrowed copies:  %d\n", stats.TotalBorrowedCopies)
			fmt.Printf("Total registered users: %d\n", stats.TotalUsers)
			return nil
		},
	}
}

func printBooks(books []*library.Book) {
	if len(books) == 0 {
		fmt.Println("No books in the catalog.")
		return
	}
	fmt.Printf("%-10s %-40s %-25s %-7s %-9s %s\n", "ID", "Title", "Author", "Total", "Available", "Kind")
	fmt.Println(strings.Repeat("-", 100))
	for _, b := range books {
		kind := "physical"
		if b.Digital != nil {
			kind = "digital"
		}
		fmt.Printf("%-10s %-40s %-25s %-7d %-9d %s\n",
			b.ID, truncate(b.Title, 40), truncate(b.Author, 25), b.TotalCopies, b.AvailableCopies, kind)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
