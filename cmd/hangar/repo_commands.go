package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/gnuflag"

	"github.com/hangar-db/hangar/internal/config"
	"github.com/hangar-db/hangar/internal/keys"
	"github.com/hangar-db/hangar/repo"
)

func init() {
	register(command{name: "init", usage: "[dir] — create a new repository", run: runInit})
	register(command{name: "clone", usage: "<remote-addr> [dir] — clone master from a remote server", run: runClone})
	register(command{name: "checkout", usage: "<branch> — switch the staging area to branch's head", run: runCheckout})
}

func repoRoot(dir string) string {
	return filepath.Join(dir, keys.DirHangar)
}

func runInit(args []string) error {
	fs := gnuflag.NewFlagSet("init", gnuflag.ExitOnError)
	name := fs.String("name", "", "user name recorded in config_user.yml")
	email := fs.String("email", "", "user email recorded in config_user.yml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	env, err := repo.Open(repoRoot(dir), false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	if err := branches.CreateBranch("master", ""); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := branches.SetHead("master"); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if *name != "" || *email != "" {
		var u config.User
		u.User.Name = *name
		u.User.Email = *email
		if err := u.Save(filepath.Join(env.RootDir, keys.ConfigUserName)); err != nil {
			return fmt.Errorf("init: writing %s: %w", keys.ConfigUserName, err)
		}
	}

	fmt.Printf("initialized empty repository in %s\n", env.RootDir)
	return nil
}

func runCheckout(args []string) error {
	fs := gnuflag.NewFlagSet("checkout", gnuflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("checkout: expected a single branch name argument")
	}
	branchName := fs.Arg(0)

	env, err := repo.Open(repoRoot("."), false)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	ce := repo.NewCommitEngine(env)
	if err := ce.Checkout(branches, branchName); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if err := branches.SetHead(branchName); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	fmt.Printf("switched to branch %q\n", branchName)
	return nil
}

func runClone(args []string) error {
	fs := gnuflag.NewFlagSet("clone", gnuflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("clone: expected <remote-addr> [dir]")
	}
	addr := fs.Arg(0)
	dir := "."
	if fs.NArg() > 1 {
		dir = fs.Arg(1)
	}

	env, err := repo.Open(repoRoot(dir), false)
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	if err := branches.CreateBranch("master", ""); err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	if err := branches.SetHead("master"); err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	client, err := dialRemote(addr)
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	defer client.Close()

	if err := func() error {
		remotes := repo.NewRemotes(env.Branch)
		return remotes.Add("origin", addr)
	}(); err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	ctx := context.Background()
	if err := pullBranch(ctx, env, client, "master"); err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	fmt.Printf("cloned %s into %s\n", addr, env.RootDir)
	return nil
}

// mustEnv is a small convenience used by commands that are only valid
// inside an already-initialized repository.
func mustEnv() (*repo.Env, error) {
	if _, err := os.Stat(repoRoot(".")); err != nil {
		return nil, fmt.Errorf("not a hangar repository (no %s directory)", keys.DirHangar)
	}
	return repo.Open(repoRoot("."), false)
}
