// Command fullnode is the supervisor entrypoint (spec §6): `fullnode
// --identity <config.toml> --network <host:port> --ledger <dir>`. It is
// thin CLI glue per spec §1 -- the wiring itself lives in package
// fullnode.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/fullnode"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/netutil"
	"github.com/caesarchad/rustelo-easy/ledger"
)

func main() {
	app := &cli.App{
		Name:  "fullnode",
		Usage: "run a node (leader or validator, per scheduled rotation)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Usage: "path to node config.toml"},
			&cli.StringFlag{Name: "network", Usage: "bootstrap peer host:port (empty starts a fresh cluster)"},
			&cli.StringFlag{Name: "ledger", Usage: "ledger directory (overrides config)"},
			&cli.StringFlag{Name: "log-file", Usage: "rotate logs to this path instead of stderr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ee, ok := err.(cli.ExitCoder); ok {
		return ee.ExitCode()
	}
	return 1
}

func run(c *cli.Context) error {
	if path := c.String("log-file"); path != "" {
		log.SetDefault(log.NewRotatingFile(path, 100, 5, slog.LevelInfo))
	}

	cfg, err := loadFileConfig(c.String("identity"))
	if err != nil {
		return cli.Exit(err, 2)
	}
	if v := c.String("ledger"); v != "" {
		cfg.Ledger = v
	}
	if v := c.String("network"); v != "" {
		cfg.Network = v
	}

	kp, err := loadKeypair(cfg.Keyfile)
	if err != nil {
		return cli.Exit(err, 2)
	}

	entries, ledgerFile, err := openLedger(cfg.Ledger)
	if err != nil {
		return cli.Exit(err, 2)
	}
	defer ledgerFile.Close()

	registry := builtins.NewDefaultRegistry()
	b := bank.New(registry, 2048, nil)
	if err := ledger.SeedGenesisAccounts(b, entries); err != nil {
		return cli.Exit(err, 2)
	}
	startHash, _, err := b.ProcessLedger(entries)
	if err != nil {
		return cli.Exit(err, 1)
	}

	self := crdt.NodeInfo{
		ID:         kp.Public,
		Version:    1,
		Gossip:     netutil.ParsePortOrAddr(cfg.GossipAddr, 8000),
		TVU:        netutil.ParsePortOrAddr(cfg.TVUAddr, 8001),
		TPU:        netutil.ParsePortOrAddr(cfg.TPUAddr, 8002),
		Repair:     netutil.ParsePortOrAddr(cfg.RepairAddr, 8003),
		InstanceID: crdt.NewInstanceID(),
	}

	writer := ledger.NewWriter(ledgerFile)
	nodeCfg := fullnode.Config{
		Self:                   kp.Public,
		Keypair:                kp,
		LeaderRotationInterval: cfg.LeaderRotationInterval,
		GossipAddr:             self.Gossip,
		TVUAddr:                self.TVU,
		TPUAddr:                self.TPU,
		RepairAddr:             self.Repair,
		LedgerWriter:           writer,
		BlobDataLimit:          cfg.BlobDataLimit,
		NumBankingThreads:      cfg.NumBankingThreads,
	}

	node, err := fullnode.New(nodeCfg, b, self)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer node.Close()

	if cfg.Network != "" {
		addr := netutil.ParsePortOrAddr(cfg.Network, 8000)
		if err := node.Bootstrap(addr); err != nil {
			log.Warn("fullnode: bootstrap send failed", "err", err)
		}
	} else {
		node.BecomeGenesisLeader()
	}

	height := uint64(len(entries))
	role := node.ScheduledRole(height)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("fullnode: starting", "pubkey", kp.Public.String(), "role", role, "height", height)
	if err := node.Run(ctx, role, height, startHash); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func loadKeypair(path string) (*identity.Keypair, error) {
	if path == "" {
		return identity.GenerateKeypair()
	}
	raw, err := os.ReadFile(path)
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

// openLedger opens dir's ledger file for append, reads back every
// recoverable entry (spec §6: stop cleanly at the first short read), and
// leaves the file positioned at the end for the caller's Writer to append
// new entries from there.
func openLedger(dir string) ([]entry.Entry, *os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dir, "ledger")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, err
	}
	ptrs, err := ledger.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	entries := make([]entry.Entry, len(ptrs))
	for i, e := range ptrs {
		entries[i] = *e
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, nil, err
	}
	return entries, f, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
