package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/juju/gnuflag"

	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/repo"
)

func init() {
	register(command{name: "log", usage: "[branch] — show a branch's commit history, newest first", run: runLog})
	register(command{name: "summary", usage: "— print repository-wide counts", run: runSummary})
}

func runLog(args []string) error {
	fs := gnuflag.NewFlagSet("log", gnuflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	ref := fs.Arg(0)
	if ref == "" {
		ref, err = branches.GetHead()
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	ce := repo.NewCommitEngine(env)
	history := repo.NewHistory(ce, branches)
	log, err := history.ListHistory(ref)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	for _, commit := range log.Order {
		spec := log.Specs[commit]
		fmt.Printf("%s %s\n", yellow("commit"), commit)
		fmt.Printf("Author: %s <%s>\n", spec.User, spec.Email)
		fmt.Printf("Date:   %s (%s)\n", time.Unix(spec.Time, 0).Format(time.RFC1123), humanize.Time(time.Unix(spec.Time, 0)))
		fmt.Printf("\n    %s\n\n", spec.Message)
	}
	return nil
}

func runSummary(args []string) error {
	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	defer env.Close()

	branches := repo.NewBranches(env.Branch)
	names, err := branches.GetBranchNames()
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	head, err := branches.GetHead()
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	headCommit, err := branches.GetBranchHead(head)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	ce := repo.NewCommitEngine(env)
	history := repo.NewHistory(ce, branches)

	var commitCount int
	var datasets, samples int
	var totalBytes int64
	if headCommit != "" {
		log, err := history.ListHistory(head)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		commitCount = len(log.Order)

		store, err := env.UnpackedStore(headCommit)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		if err := ce.UnpackCommitRef(headCommit, store); err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		q := repo.NewQuery(store)
		ds, err := q.Datasets()
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		datasets = len(ds)
		for _, d := range ds {
			s, err := q.SamplesIn(d)
			if err != nil {
				return fmt.Errorf("summary: %w", err)
			}
			samples += len(s)
		}

		hashes, err := q.DataHashToSchemaHash()
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		content := repo.NewContentStore(env.HashStore, env.Backends, env.StoreDataDir())
		for digest := range hashes {
			d, err := hash.Parse(digest)
			if err != nil {
				continue
			}
			t, err := content.Read(localfs.Tag, d)
			if err != nil {
				continue
			}
			totalBytes += int64(len(t.Data))
		}
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("repository:"), env.RootDir)
	fmt.Printf("%s %d (current: %s)\n", bold("branches:"), len(names), head)
	fmt.Printf("%s %d\n", bold("commits:"), commitCount)
	fmt.Printf("%s %d\n", bold("datasets:"), datasets)
	fmt.Printf("%s %d\n", bold("samples:"), samples)
	fmt.Printf("%s %s\n", bold("data size:"), humanize.Bytes(uint64(totalBytes)))
	return nil
}
