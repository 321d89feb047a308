// Command bengine runs the block editor backend and works with engine
// files from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/bengine/bengine/cmd/bengine/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "parse":
		err = commands.ParseCommand(args)
	case "version":
		fmt.Printf("bengine version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("bengine - block editor backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bengine serve [--config FILE] [--port N] [--host H]  Start the backend")
	fmt.Println("  bengine parse <file.njn> [--vars]                    Check an engine file")
	fmt.Println("  bengine version                                      Show version")
	fmt.Println("  bengine help                                         Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  bengine serve                    # Serve with ./bengine.yaml or defaults")
	fmt.Println("  bengine serve --port 2020        # Override the listen port")
	fmt.Println("  bengine parse lesson.njn         # Report blocks and warnings")
	fmt.Println("  bengine parse lesson.njn --vars  # Also list variable references")
}
