// Command genesis writes a genesis ledger: the two-entry preamble spec §6
// describes, crediting a mint keypair with an initial token supply. Thin
// CLI glue named in spec §6, out of scope for implementation detail.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/ledger"
)

func main() {
	app := &cli.App{
		Name:  "genesis",
		Usage: "write a genesis ledger crediting a mint keypair",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "tokens", Value: 1_000_000, Usage: "mint_total to credit"},
			&cli.StringFlag{Name: "ledger", Value: "ledger-data", Usage: "ledger directory to write into"},
			&cli.StringFlag{Name: "mint-keyfile", Usage: "existing mint identity keyfile; generated if empty"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	mint, err := loadOrGenerateMint(c.String("mint-keyfile"))
	if err != nil {
		return cli.Exit(err, 2)
	}

	tick, mintEntry := ledger.BuildGenesisEntries(mint.Public, c.Int64("tokens"))

	dir := c.String("ledger")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cli.Exit(err, 1)
	}
	f, err := os.Create(filepath.Join(dir, "ledger"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.Close()

	w := ledger.NewWriter(f)
	if err := w.WriteEntry(&tick); err != nil {
		return cli.Exit(err, 1)
	}
	if err := w.WriteEntry(&mintEntry); err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("wrote genesis ledger to %s\nmint pubkey: %s\ntokens: %d\n",
		filepath.Join(dir, "ledger"), mint.Public.String(), c.Int64("tokens"))
	return nil
}

func loadOrGenerateMint(keyfile string) (*identity.Keypair, error) {
	if keyfile == "" {
		return identity.GenerateKeypair()
	}
	raw, err := os.ReadFile(keyfile)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(trimNewline(raw))
	if err != nil {
		return nil, err
	}
	return identity.KeypairFromSeed(seed)
}

func trimNewline(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
