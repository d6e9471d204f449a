// Command keygen generates a node identity and writes its seed to a
// keyfile, the thin CLI glue named in spec §6 (out of scope for
// implementation detail, specified only for parity).
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/caesarchad/rustelo-easy/identity"
)

func main() {
	app := &cli.App{
		Name:  "keygen",
		Usage: "generate a node identity keyfile",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "outfile",
				Aliases: []string{"o"},
				Value:   "identity.key",
				Usage:   "path to write the hex-encoded seed",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	kp, err := identity.GenerateKeypair()
	if err != nil {
		return cli.Exit(err, 1)
	}
	out := c.String("outfile")
	encoded := hex.EncodeToString(kp.Seed())
	if err := os.WriteFile(out, []byte(encoded+"\n"), 0600); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Printf("wrote %s\npubkey: %s\n", out, kp.Public.String())
	return nil
}
