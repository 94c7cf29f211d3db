// Package main provides the geopro command: it migrates saved places to
// OpenStreetMap features, either interactively on the terminal or through
// the review server.
package main

import (
	"fmt"
	"os"
)

const usage = `Usage: geopro <command> [flags] [args]

Commands:
  match <places.json>              match saved places and review on the terminal
  resume <session-id>              continue an interrupted session
  serve                            run the review server
  index build <extract.json>       build the offline candidate index

Run "geopro <command> -h" for the flags shared by every command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "match":
		err = runMatch(args)
	case "resume":
		err = runResume(args)
	case "serve":
		err = runServe(args)
	case "index":
		err = runIndex(args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "geopro %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
