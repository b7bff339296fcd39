// Package keys centralizes the record-key constants of spec.md §3, ported
// directly from original_source/src/hangar/constants.py.
package keys

const (
	SepKey = ":"
	SepLst = " "
	SepCmt = " << "

	Head     = "head"
	Branch   = "branch:"
	Remote   = "remote:"
	Dataset  = "s:"  // schema record prefix, also "s:" + digest for schema blobs
	Array    = "a:"  // dataset record / count prefix
	Meta     = "l:"  // metadata record / count prefix
	HashPref = "h:"  // digest -> location/value prefix
	WLock    = "writerlock:"
	Version  = "software_version"

	WLockSentinel     = "LOCK_AVAILABLE"
	WLockForceRelease = "FORCE_RELEASE"

	RefSuffix  = ":ref"
	SpecSuffix = ":spec"

	MergeParentMarker = "master"
)

// DirHangar / DirHangarServer are the on-disk root directory names (§6).
const (
	DirHangar       = ".hangar"
	DirHangarServer = ".hangar_server"
	DirData         = "data"
	DirDataStore    = "store_data"
	DirDataStage    = "stage_data"
	DirDataRemote   = "remote_data"
)

const (
	ConfigUserName   = "config_user.yml"
	ConfigServerName = "config_server.yml"
	ReadmeFileName   = "README.txt"
)

const (
	RefLmdbName       = "ref.lmdb"
	HashLmdbName      = "hash.lmdb"
	MetaLmdbName      = "meta.lmdb"
	BranchLmdbName    = "branch.lmdb"
	StageRefLmdbName  = "stage_ref.lmdb"
	StageHashLmdbName = "stage_hash.lmdb"
)
