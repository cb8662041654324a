// Command gen-snapshot generates synthetic registry snapshot databases
// for exercising the scoring pipeline without DMV data.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/lifecycle.report/internal/snapshot"
)

func main() {
	output := flag.String("o", "snapshot.db", "output path")
	state := flag.String("state", "CA", "two-letter state code")
	year := flag.Int("year", 2023, "registration year")
	vehicles := flag.Int("n", 500, "number of vehicles")
	seed := flag.Int64("seed", 1, "random seed")
	malformed := flag.Int("malformed", 0, "malformed records to inject")
	flag.Parse()

	info, err := snapshot.Generate(snapshot.GenConfig{
		Path:      *output,
		State:     *state,
		Year:      *year,
		Vehicles:  *vehicles,
		Seed:      *seed,
		Malformed: *malformed,
	})
	if err != nil {
		log.Fatalf("Failed to generate snapshot: %v", err)
	}
	log.Printf("✓ Created: %s (%s, %d records)", *output, info.SnapshotID, info.RecordCount)
}
