package main

import (
	"fmt"
	"log"
	"path/filepath"

	arg "github.com/alexflint/go-arg"

	"imgacquisition/internal/catalog"
	"imgacquisition/internal/dto"
	"imgacquisition/internal/repository/sqlite"
)

type Args struct {
	Output  string `arg:"-o,--output,required" help:"recorder output directory"`
	DB      string `arg:"--db" help:"catalog database path"`
	Rebuild bool   `arg:"--rebuild" help:"forget cataloged recordings of scanned streams first"`
}

func main() {
	args := Args{DB: filepath.Join("data", "recordings.db")}
	arg.MustParse(&args)

	fmt.Printf("Cataloging recordings from %s into %s\n", args.Output, args.DB)

	db, err := sqlite.New(args.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	recs, skipped, err := catalog.Scan(args.Output)
	if err != nil {
		log.Fatalf("Failed to scan output directory: %v", err)
	}
	for _, s := range skipped {
		log.Printf("⚠️  Skipping %s: %v", s.Path, s.Reason)
	}

	if len(recs) == 0 {
		fmt.Println("No recordings found")
		return
	}

	repo := sqlite.NewRecordingRepository(db)
	if args.Rebuild {
		seen := make(map[string]bool)
		for _, r := range recs {
			if seen[r.StreamID] {
				continue
			}
			seen[r.StreamID] = true
			if err := repo.DeleteByStream(r.StreamID); err != nil {
				log.Fatalf("Failed to clear stream %s: %v", r.StreamID, err)
			}
		}
	}

	fmt.Printf("Inserting %d recordings...\n", len(recs))
	inserted, err := repo.InsertBatch(recs)
	if err != nil {
		log.Fatalf("Failed to insert recordings: %v", err)
	}

	fmt.Printf("✅ Cataloged %d new recordings (%d already known)\n", inserted, len(recs)-inserted)
	if len(skipped) > 0 {
		fmt.Printf("⚠️  Skipped %d files\n", len(skipped))
	}

	streams, err := repo.StreamIDs()
	if err != nil {
		return
	}
	fmt.Printf("\n📊 Catalog Statistics:\n")
	for _, id := range streams {
		n, err := repo.Count(&dto.RecordingFilter{StreamID: id})
		if err != nil {
			continue
		}
		fmt.Printf("   - %s: %d recordings\n", id, n)
	}
}
