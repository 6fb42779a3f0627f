package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/urfave/cli/v3"

	"github.com/tracedeck/tracedeck/internal/archive"
)

// VerifyCommand returns the CLI command definition for the 'verify'
// subcommand: run conformance checks against one or more archives.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check trace archives for conformance problems",
		ArgsUsage: "ARCHIVE [ARCHIVE...]",
		Description: `Verifies each archive: test.json present, at least one trace file
parsing to a ResourceSpans envelope, a non-zero span count, and every
screenshot name matching {page}@{pageGuid}-{timestamp}.jpeg. Exits
non-zero if any archive has problems.`,
		Action: runVerify,
	}
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one archive path is required")
	}

	failed := 0
	for _, path := range paths {
		problems := archive.VerifyFile(path)
		if len(problems) == 0 {
			log.Printf("✅ %s", path)
			continue
		}

		failed++
		log.Printf("❌ %s", path)
		for _, p := range problems {
			log.Printf("   %s", p)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed verification", failed, len(paths))
	}
	return nil
}
