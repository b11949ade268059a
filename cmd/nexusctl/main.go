package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"nexusdrive/internal/importer"
	"nexusdrive/internal/server/config"
	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/storage"

	"golang.org/x/crypto/bcrypt"
)

const usage = `usage: nexusctl <command> [arguments]

commands:
  hash-password <password>        print a bcrypt hash for the credentials file
  migrate                         apply pending database migrations
  import [-dest dir] <paths...>   copy local files and folders into the share root
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()

	var err error
	switch os.Args[1] {
	case "hash-password":
		err = hashPassword(os.Args[2:])
	case "migrate":
		err = migrate(cfg)
	case "import":
		err = importPaths(cfg, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func hashPassword(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("hash-password takes exactly one non-empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

func migrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Migrations applied")
	return nil
}

func importPaths(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dest := fs.String("dest", "", "destination directory, relative to the share root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sources, err := importer.ParseArgs(fs.Args())
	if err != nil {
		return err
	}
	nodes, err := importer.BuildTree(sources)
	if err != nil {
		return fmt.Errorf("failed to read sources: %w", err)
	}

	store := storage.NewFileSystemStore(cfg.ShareRoot)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	fmt.Printf("Importing %d files into %s/%s\n", importer.CountFiles(nodes), cfg.ShareRoot, *dest)
	res, err := importer.Import(store, *dest, nodes)
	if err != nil {
		return err
	}

	for src, stored := range res.Renamed {
		fmt.Printf("  %s -> %s (name taken)\n", src, stored)
	}
	fmt.Printf("✓ Imported %d files, created %d folders\n", res.Files, res.Folders)
	return nil
}
