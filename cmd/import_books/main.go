// Command import_books bulk-loads a seed file of books and users into a
// library store, for setting up a fresh deployment or test fixture.
//
// The seed file is JSON:
//
//	{
//	  "books": [{"id": "B1", "title": "...", "author": "...", "copies": 3}],
//	  "users": [{"id": "U1", "name": "...", "email": "...", "phone": "..."}]
//	}
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"library-tracker/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type seedFile struct {
	Books []seedBook `json:"books"`
	Users []seedUser `json:"users"`
}

type seedBook struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Copies        int    `json:"copies"`
	DownloadLink  string `json:"download_link,omitempty"`
	DownloadLimit int    `json:"download_limit,omitempty"`
}

type seedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	seedPath := flag.String("seed", "seed.json", "path to the JSON seed file")
	storeKind := flag.String("store", "sqlite", "storage backend: sqlite or file")
	storePath := flag.String("db", "library.db", "path to the store")
	flag.Parse()

	if err := run(*seedPath, *storeKind, *storePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(seedPath, storeKind, storePath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	var store library.Store
	switch storeKind {
	case "sqlite":
		store, err = library.NewSQLiteStore(storePath)
	case "file":
		store, err = library.NewFileStore(storePath)
	default:
		return fmt.Errorf("unknown store %q (want sqlite or file)", storeKind)
	}
	if err != nil {
		return err
	}

	svc, err := library.NewLendingService(store, library.DefaultPolicy(), log.Logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	successCount := 0
	errorCount := 0

	for _, b := range seed.Books {
		book := &library.Book{
			ID: b.ID, Title: b.Title, Author: b.Author,
			TotalCopies: b.Copies, AvailableCopies: b.Copies, Active: true,
		}
		if b.DownloadLink != "" {
			book.Digital = &library.DigitalExtras{DownloadLink: b.DownloadLink, DownloadLimit: b.DownloadLimit}
		}
		fmt.Printf("Importing book %s (%s)... ", b.Title, b.ID)
		if err := svc.AddBook(book); err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Println("OK")
		successCount++
	}

	for _, u := range seed.Users {
		fmt.Printf("Importing user %s (%s)... ", u.Name, u.ID)
		if err := svc.RegisterUser(&library.User{
			ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Active: true,
		}); err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Println("OK")
		successCount++
	}

	fmt.Printf("\nImport complete: %d imported, %d errors\n", successCount, errorCount)
	return nil
}
