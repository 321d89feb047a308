package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bengine/bengine"
)

// ParseCommand implements the parse command. It scans an engine file,
// reports its blocks and any warnings, and exits non-zero on a parse
// error.
func ParseCommand(args []string) error {
	var file string
	var showVars bool

	for _, arg := range args {
		if arg == "--vars" {
			showVars = true
		} else if strings.HasPrefix(arg, "-") {
			return fmt.Errorf("unknown flag: %s", arg)
		} else {
			file = arg
		}
	}
	if file == "" {
		return fmt.Errorf("usage: bengine parse <file.njn> [--vars]")
	}

	text, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	doc, err := bengine.ParseEngineFile(file, string(text))
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d blocks\n", file, len(doc.Order))
	for _, ns := range doc.Order {
		b := doc.Blocks[ns]
		line := fmt.Sprintf("  %-12s %s", b.Type, ns)
		if b.Conditional != "" {
			line += "  if " + b.Conditional
		}
		fmt.Println(line)

		if showVars {
			for _, ref := range bengine.ScanVars(b.Content) {
				fmt.Printf("    @@%s.%s@@\n", ref.Namespace, ref.Key)
			}
		}
	}

	for _, warning := range doc.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return nil
}
