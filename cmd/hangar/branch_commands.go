package main

import (
	"fmt"
	"path/filepath"

	"github.com/juju/gnuflag"

	"github.com/hangar-db/hangar/internal/config"
	"github.com/hangar-db/hangar/internal/keys"
	"github.com/hangar-db/hangar/repo"
)

func init() {
	register(command{name: "branch", usage: "create <name> [base] | list — manage branches", run: runBranch})
	register(command{name: "merge", usage: "<branch> — merge branch into the current HEAD branch", run: runMerge})
}

func runBranch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("branch: expected a subcommand (create, list)")
	}

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	defer env.Close()
	branches := repo.NewBranches(env.Branch)

	switch args[0] {
	case "create":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("branch create: expected <name> [base-branch]")
		}
		name := args[1]
		base := ""
		if len(args) == 3 {
			base, err = branches.GetBranchHead(args[2])
			if err != nil {
				return fmt.Errorf("branch create: resolving base %q: %w", args[2], err)
			}
		} else if head, err := branches.GetHead(); err == nil {
			if h, err := branches.GetBranchHead(head); err == nil {
				base = h
			}
		}
		if err := branches.CreateBranch(name, base); err != nil {
			return fmt.Errorf("branch create: %w", err)
		}
		fmt.Printf("created branch %s at %s\n", name, base)
		return nil

	case "list":
		names, err := branches.GetBranchNames()
		if err != nil {
			return fmt.Errorf("branch list: %w", err)
		}
		head, _ := branches.GetHead()
		for _, name := range names {
			marker := "  "
			if name == head {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, name)
		}
		return nil

	default:
		return fmt.Errorf("branch: unknown subcommand %q", args[0])
	}
}

func runMerge(args []string) error {
	fs := gnuflag.NewFlagSet("merge", gnuflag.ExitOnError)
	message := fs.String("m", "", "merge commit message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("merge: expected <branch>")
	}
	devBranch := fs.Arg(0)

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	masterBranch, err := branches.GetHead()
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	lock := repo.NewWriterLock(env)
	token, err := lock.Acquire()
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	defer lock.Release(token)

	ce := repo.NewCommitEngine(env)
	history := repo.NewHistory(ce, branches)
	merger := repo.NewMerger(env, history, ce, branches)

	msg := *message
	if msg == "" {
		msg = fmt.Sprintf("merge %s into %s", devBranch, masterBranch)
	}
	user, email := currentUser(env)

	outcome, err := merger.SelectMergeAlgorithm(token, lock, masterBranch, devBranch, msg, user, email)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	switch outcome.Kind {
	case repo.MergeFastForward:
		fmt.Printf("fast-forwarded %s to %s\n", masterBranch, outcome.ResultCommit)
	case repo.MergeAlreadyUpToDate:
		fmt.Printf("%s is already up to date with %s\n", masterBranch, devBranch)
	case repo.MergeThreeWay:
		fmt.Printf("created merge commit %s\n", outcome.ResultCommit)
	}
	return nil
}

// currentUser reads the configured committer identity, falling back to a
// generic placeholder when config_user.yml hasn't been written yet.
func currentUser(env *repo.Env) (user, email string) {
	u, err := config.LoadUser(filepath.Join(env.RootDir, keys.ConfigUserName))
	if err != nil || (u.User.Name == "" && u.User.Email == "") {
		return "unknown", ""
	}
	return u.User.Name, u.User.Email
}
