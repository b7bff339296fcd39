// Command hangar-server runs the sync protocol service over a repository
// directory, serving Fetch/Push RPCs to any hangar client that dials it.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"google.golang.org/grpc"

	"github.com/hangar-db/hangar/internal/config"
	"github.com/hangar-db/hangar/internal/keys"
	"github.com/hangar-db/hangar/internal/logutil"
	"github.com/hangar-db/hangar/repo"
	"github.com/hangar-db/hangar/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hangar-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	rootDir := filepath.Join(dir, keys.DirHangarServer)

	debug := os.Getenv("HANGAR_SERVER_DEBUG") != ""
	logger, err := logutil.New(debug)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadServer(filepath.Join(rootDir, keys.ConfigServerName))
	if err != nil {
		return fmt.Errorf("loading %s: %w", keys.ConfigServerName, err)
	}

	env, err := repo.Open(rootDir, false)
	if err != nil {
		return fmt.Errorf("opening repository at %s: %w", rootDir, err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	if _, err := branches.GetBranchHead("master"); err != nil {
		if createErr := branches.CreateBranch("master", ""); createErr != nil {
			return fmt.Errorf("seeding master branch: %w", createErr)
		}
	}

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.ListenAddr, err)
	}

	srv := sync.NewServer(env, cfg)
	gs := grpc.NewServer()
	sync.RegisterServer(gs, srv)

	logger.Infow("serving", "addr", cfg.Server.ListenAddr, "root", rootDir)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig.String())
		gs.GracefulStop()
		return nil
	}
}
