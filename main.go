package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/lifecycle.report/internal/version"
)

// defaultDBFile is where run and artifact state lands unless -db says
// otherwise.
const defaultDBFile = "artifacts.db"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		handleRun(args)
	case "runs":
		handleRuns(args)
	case "artifacts":
		handleArtifacts(args)
	case "snapshot":
		handleSnapshot(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lifecycle-report - Vehicle lifecycle risk pipeline

Usage: lifecycle-report <command> [options]

Commands:
  run        Run the scoring pipeline for one (state, year) partition
  runs       List recent pipeline runs
  artifacts  Inspect stored artifacts (list, show, export, unlock)
  snapshot   Inspect a registry snapshot database
  migrate    Manage the artifact database schema
  version    Show lifecycle-report version
  help       Show this help message

Exit codes:
  0  success
  1  usage or selector error
  2  input error (snapshot missing or unreadable)
  3  configuration error (invalid risk model)
  4  computation error (including cancelled runs)
  5  storage error (artifact database, run lock held)

Examples:
  # Score the California 2023 cohort and export the report bundle
  lifecycle-report run -state CA -year 2023 -snapshot ca_2023.db -out ./exports

  # Re-run with a candidate model; artifacts version by model, nothing
  # is overwritten
  lifecycle-report run -state CA -year 2023 -snapshot ca_2023.db -model v2.yaml

  # Rebuild a bundle from the stored artifact, no pipeline run
  lifecycle-report artifacts export -state CA -year 2023 -out ./exports

  # Clear a run lock left behind by a crashed process
  lifecycle-report artifacts unlock -state CA -year 2023

For more information, see: https://github.com/banshee-data/lifecycle.report`)
}
