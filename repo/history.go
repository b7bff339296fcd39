package repo

import (
	"bytes"
	"sort"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
)

// History implements §4.H's read side: walking the parent DAG and finding
// ancestry relationships, independent of the merge algorithm below.
type History struct {
	commits *CommitEngine
	branches *Branches
}

// NewHistory wraps a commit engine and the branch store it reads heads
// from.
func NewHistory(commits *CommitEngine, branches *Branches) *History {
	return &History{commits: commits, branches: branches}
}

// Log is the result of ListHistory: the full ancestor map, a newest-to-
// oldest topological order, and every visited commit's spec.
type Log struct {
	Head      string
	Order     []string
	Ancestors map[string][]string // commit -> parents (1 or 2 entries, empty for root)
	Specs     map[string]codec.CommitSpec
}

// ListHistory resolves ref (a branch name or a raw commit digest) to a
// starting commit and walks every ancestor reachable from it, producing a
// newest-to-oldest topological order (§4.H).
func (h *History) ListHistory(ref string) (Log, error) {
	head, err := h.resolveRef(ref)
	if err != nil {
		return Log{}, err
	}

	ancestors := make(map[string][]string)
	specs := make(map[string]codec.CommitSpec)
	visited := make(map[string]bool)

	var visit func(commit string) error
	visit = func(commit string) error {
		if visited[commit] {
			return nil
		}
		visited[commit] = true

		spec, err := h.commits.GetSpec(commit)
		if err != nil {
			return err
		}
		specs[commit] = spec

		parent, mergeParent, err := h.commits.GetParents(commit)
		if err != nil {
			return err
		}
		var parents []string
		if parent != "" {
			parents = append(parents, parent)
		}
		if mergeParent != "" {
			parents = append(parents, mergeParent)
		}
		ancestors[commit] = parents

		for _, p := range parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(head); err != nil {
		return Log{}, err
	}

	order := topoOrderNewestFirst(head, ancestors, specs)

	return Log{Head: head, Order: order, Ancestors: ancestors, Specs: specs}, nil
}

// topoOrderNewestFirst produces a deterministic newest-to-oldest
// topological ordering: a DFS from head appends each commit after all of
// its parents, and the reversed result places every commit before its
// parents. Parents are walked oldest first (by commit time, then by
// descending digest), so after the reversal the newer parent's line comes
// first and the order is reproducible across processes.
func topoOrderNewestFirst(head string, ancestors map[string][]string, specs map[string]codec.CommitSpec) []string {
	var order []string
	seen := make(map[string]bool)

	var walk func(commit string)
	walk = func(commit string) {
		if seen[commit] {
			return
		}
		seen[commit] = true
		parents := append([]string(nil), ancestors[commit]...)
		sort.Slice(parents, func(i, j int) bool {
			si, sj := specs[parents[i]], specs[parents[j]]
			if si.Time != sj.Time {
				return si.Time < sj.Time
			}
			return parents[i] > parents[j]
		})
		for _, p := range parents {
			walk(p)
		}
		order = append(order, commit)
	}
	walk(head)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// resolveRef treats ref as a branch name first, falling back to treating
// it as a raw commit digest if no such branch exists.
func (h *History) resolveRef(ref string) (string, error) {
	if head, err := h.branches.GetBranchHead(ref); err == nil {
		return head, nil
	}
	exists, err := h.commits.Exists(ref)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", herrors.NotFound.New("branch or commit %q", ref)
	}
	return ref, nil
}

// LowestCommonAncestor finds a's and b's closest shared ancestor by
// walking both ancestor sets (§4.H classic DAG LCA). Returns ("", nil) if
// no common ancestor exists.
func (h *History) LowestCommonAncestor(a, b string) (string, error) {
	logA, err := h.ListHistory(a)
	if err != nil {
		return "", err
	}
	logB, err := h.ListHistory(b)
	if err != nil {
		return "", err
	}

	depthA := make(map[string]int)
	for i, c := range logA.Order {
		depthA[c] = i
	}
	inB := make(map[string]bool, len(logB.Order))
	for _, c := range logB.Order {
		inB[c] = true
	}

	best := ""
	bestDepth := -1
	for c, d := range depthA {
		if inB[c] && (bestDepth == -1 || d < bestDepth) {
			best = c
			bestDepth = d
		}
	}
	return best, nil
}

// MergeOutcome describes how SelectMergeAlgorithm resolved a merge.
type MergeOutcome struct {
	Kind         MergeKind
	ResultCommit string // new master head (fast-forward target or merge commit digest)
}

// MergeKind enumerates the three merge dispositions §4.H distinguishes.
type MergeKind int

const (
	MergeFastForward MergeKind = iota
	MergeAlreadyUpToDate
	MergeThreeWay
)

// Merger implements §4.H's merge algorithm selection and execution.
type Merger struct {
	env      *Env
	history  *History
	commits  *CommitEngine
	branches *Branches
}

// NewMerger wires a merger to the environment it reads/writes against.
func NewMerger(env *Env, history *History, commits *CommitEngine, branches *Branches) *Merger {
	return &Merger{env: env, history: history, commits: commits, branches: branches}
}

// SelectMergeAlgorithm merges devBranch into masterBranch, choosing
// fast-forward, already-up-to-date, or a three-way merge as §4.H
// prescribes. token authorizes the writer-lock-gated commit a three-way
// merge produces.
func (m *Merger) SelectMergeAlgorithm(token string, lock *WriterLock, masterBranch, devBranch, message, user, email string) (MergeOutcome, error) {
	masterHead, err := m.branches.GetBranchHead(masterBranch)
	if err != nil {
		return MergeOutcome{}, err
	}
	devHead, err := m.branches.GetBranchHead(devBranch)
	if err != nil {
		return MergeOutcome{}, err
	}

	lca, err := m.history.LowestCommonAncestor(masterHead, devHead)
	if err != nil {
		return MergeOutcome{}, err
	}

	switch {
	case lca == masterHead:
		if err := m.branches.SetBranchHead(masterBranch, devHead); err != nil {
			return MergeOutcome{}, err
		}
		return MergeOutcome{Kind: MergeFastForward, ResultCommit: devHead}, nil

	case lca == devHead:
		return MergeOutcome{Kind: MergeAlreadyUpToDate, ResultCommit: masterHead}, nil

	default:
		merged, err := m.threeWayMerge(lca, masterHead, devHead)
		if err != nil {
			return MergeOutcome{}, err
		}
		if err := m.loadIntoStage(token, merged); err != nil {
			return MergeOutcome{}, err
		}
		digest, err := m.commits.CommitMerge(token, lock, m.branches, masterBranch, masterHead, devHead, message, user, email)
		if err != nil {
			return MergeOutcome{}, err
		}
		return MergeOutcome{Kind: MergeThreeWay, ResultCommit: digest}, nil
	}
}

// threeWayMerge computes the merged ref-list records of master and dev
// against their lowest common ancestor, applying §4.H's per-key rule: one
// side changed -> take it; both changed identically -> take it; both
// changed divergently -> MergeConflict naming the key. Keys are processed
// in sorted order so conflict detection is deterministic.
func (m *Merger) threeWayMerge(lca, masterHead, devHead string) (map[string][]byte, error) {
	baseMap, err := m.snapshotRecords(lca)
	if err != nil {
		return nil, err
	}
	masterMap, err := m.snapshotRecords(masterHead)
	if err != nil {
		return nil, err
	}
	devMap, err := m.snapshotRecords(devHead)
	if err != nil {
		return nil, err
	}

	allKeys := make(map[string]bool)
	for k := range baseMap {
		allKeys[k] = true
	}
	for k := range masterMap {
		allKeys[k] = true
	}
	for k := range devMap {
		allKeys[k] = true
	}
	sortedKeys := make([]string, 0, len(allKeys))
	for k := range allKeys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	result := make(map[string][]byte)
	for _, k := range sortedKeys {
		base, hasBase := baseMap[k]
		master, hasMaster := masterMap[k]
		dev, hasDev := devMap[k]

		masterChanged := hasMaster != hasBase || (hasMaster && hasBase && !bytes.Equal(master, base))
		devChanged := hasDev != hasBase || (hasDev && hasBase && !bytes.Equal(dev, base))

		switch {
		case !masterChanged && !devChanged:
			if hasBase {
				result[k] = base
			}
		case masterChanged && !devChanged:
			if hasMaster {
				result[k] = master
			}
		case !masterChanged && devChanged:
			if hasDev {
				result[k] = dev
			}
		default:
			if hasMaster == hasDev && (!hasMaster || bytes.Equal(master, dev)) {
				if hasMaster {
					result[k] = master
				}
			} else {
				return nil, herrors.MergeConflict.New("%s", k)
			}
		}
	}
	return result, nil
}

// snapshotRecords unpacks commit's full ref list into a plain map for
// diffing.
func (m *Merger) snapshotRecords(commit string) (map[string][]byte, error) {
	store, err := m.env.UnpackedStore(commit)
	if err != nil {
		return nil, err
	}

	alreadyUnpacked := false
	_ = store.View(func(t *kv.Txn) error {
		alreadyUnpacked = len(t.All()) > 0
		return nil
	})
	if !alreadyUnpacked {
		if err := m.commits.UnpackCommitRef(commit, store); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]byte)
	err = store.View(func(t *kv.Txn) error {
		for _, p := range t.All() {
			out[string(p.Key)] = p.Value
		}
		return nil
	})
	return out, err
}

// loadIntoStage replaces the staging area's ref records with merged,
// leaving stage-hash untouched (the merge only recombines records already
// present in the permanent store; no new payloads are introduced).
func (m *Merger) loadIntoStage(token string, merged map[string][]byte) error {
	return m.env.Registry.WithWriter(m.env.StageRef, func(t *kv.Txn) error {
		for _, p := range t.All() {
			if err := t.Delete(p.Key); err != nil {
				return err
			}
		}
		for k, v := range merged {
			if err := t.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}
