package odb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/josh-project/josh-filter/modules/command"
	"github.com/josh-project/josh-filter/modules/odb/remote"
	"github.com/josh-project/josh-filter/modules/streamio"
)

// ODB is the default object-database backend: it shells the real git binary
// for both object decoding (batched `cat-file`) and object/ref writing. This
// is the concrete implementation of the abstract object-database contract —
// read_blob/read_tree/read_commit/write_tree/write_commit/update_ref — backed
// by an actual on-disk git repository rather than an in-memory store.
type ODB struct {
	repoPath string
	hashAlgo HashFormat
	tmpdir   string
	dec      *Decoder
	mirror   remote.Mirror
}

// NewODB opens the object database rooted at repoPath (a `--git-dir`), with
// no remote mirror: a miss is MISSING_OBJECT straight away.
func NewODB(repoPath string, hashAlgo HashFormat) (*ODB, error) {
	return NewODBWithMirror(repoPath, hashAlgo, nil)
}

// minGitVersion is the oldest git that understands `cat-file
// --batch-command`, which the decoder depends on.
var minGitVersion = NewVersion(2, 36, 0)

// NewODBWithMirror opens the object database rooted at repoPath, consulting
// mirror (built from the repository's ObjectStorage config via remote.New)
// on a local miss before reporting MISSING_OBJECT. mirror may be nil.
func NewODBWithMirror(repoPath string, hashAlgo HashFormat, mirror remote.Mirror) (*ODB, error) {
	if !IsGitVersionAtLeast(minGitVersion) {
		return nil, fmt.Errorf("git %s or newer is required for cat-file --batch-command", minGitVersion)
	}
	if hashAlgo == HashUNKNOWN {
		if h, err := HashFormatResult(repoPath); err == nil {
			hashAlgo = h
		} else {
			hashAlgo = HashSHA1
		}
	}
	tmpdir, err := NewSundriesDir(repoPath, "odb")
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoder(context.Background(), repoPath)
	if err != nil {
		_ = os.RemoveAll(tmpdir)
		return nil, err
	}
	return &ODB{repoPath: repoPath, hashAlgo: hashAlgo, tmpdir: tmpdir, dec: dec, mirror: mirror}, nil
}

// fetchFromMirror pulls oid's raw content from the configured remote mirror
// (if any) and writes it into the local repository as a loose object of
// typ, so the retry right after this call hits the normal decode path.
func (o *ODB) fetchFromMirror(ctx context.Context, oid, typ string) error {
	if o.mirror == nil {
		return ErrObjectNotFound
	}
	content, err := o.mirror.Fetch(ctx, oid)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, content, "hash-object", "-t", typ, "-w", "--stdin", "--literally")
	return err
}

func (o *ODB) Close() error {
	err := o.dec.Close()
	_ = os.RemoveAll(o.tmpdir)
	return err
}

// HashAlgo reports the negotiated hash algorithm for this repository.
func (o *ODB) HashAlgo() HashAlgo { return o.hashAlgo }

// RepoPath returns the `--git-dir` this database is rooted at.
func (o *ODB) RepoPath() string { return o.repoPath }

func (o *ODB) run(ctx context.Context, stdin []byte, args ...string) (string, error) {
	opt := &command.RunOpts{Environ: os.Environ(), RepoPath: o.repoPath}
	if stdin != nil {
		opt.Stdin = bytes.NewReader(stdin)
	}
	cmd := command.NewFromOptions(ctx, opt, "git", args...)
	return cmd.OneLine()
}

// ReadBlob reads a blob by object id, returning its raw content. Copying
// through a pooled buffer (rather than io.ReadAll, which grows its own
// buffer from scratch every call) matters here: filtering a large tree
// reads many blobs in quick succession.
func (o *ODB) ReadBlob(ctx context.Context, oid string) ([]byte, error) {
	obj, err := o.dec.Blob(oid)
	if err != nil {
		if !IsErrNotExist(err) || o.fetchFromMirror(ctx, oid, "blob") != nil {
			return nil, err
		}
		if obj, err = o.dec.Blob(oid); err != nil {
			return nil, err
		}
	}
	defer obj.Discard()
	buf := streamio.GetBytesBuffer()
	defer streamio.PutBytesBuffer(buf)
	if _, err := streamio.Copy(buf, obj); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// ReadTree reads a tree object by id.
func (o *ODB) ReadTree(ctx context.Context, oid string) (*Tree, error) {
	tr, err := o.dec.Tree(oid)
	if err != nil && IsErrNotExist(err) && o.fetchFromMirror(ctx, oid, "tree") == nil {
		return o.dec.Tree(oid)
	}
	return tr, err
}

// ReadCommit reads a commit object by id.
func (o *ODB) ReadCommit(ctx context.Context, oid string) (*Commit, error) {
	c, err := o.dec.Commit(oid)
	if err != nil && IsErrNotExist(err) && o.fetchFromMirror(ctx, oid, "commit") == nil {
		return o.dec.Commit(oid)
	}
	return c, err
}

// ResolveRef resolves ref (a branch, tag, or any other revision git accepts)
// to a commit id, returning the zero OID with no error if ref does not
// exist — the natural "old value" to feed a RefUpdater.Create compare-and-set
// for a target ref that isn't there yet.
func (o *ODB) ResolveRef(ctx context.Context, ref string) (string, error) {
	id, err := o.run(ctx, nil, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return o.hashAlgo.ZeroOID(), nil
	}
	return id, nil
}

// WriteBlob stores content as a loose blob and returns its object id.
func (o *ODB) WriteBlob(ctx context.Context, content []byte) (string, error) {
	return o.run(ctx, content, "hash-object", "-t", "blob", "-w", "--stdin")
}

// WriteTree builds a tree object from entries (already sorted the way git
// expects: byte-order by name, directories compared as if suffixed with "/")
// and returns its object id, via `git mktree`.
func (o *ODB) WriteTree(ctx context.Context, entries []*TreeEntry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		mode := strconv.FormatInt(int64(e.Filemode), 8)
		fmt.Fprintf(&b, "%s %s %s\t%s\n", mode, e.Type(), e.Hash, e.Name)
	}
	return o.run(ctx, []byte(b.String()), "mktree")
}

// WriteCommit creates a commit object from a record and returns its id.
// Author/committer date and identity are passed through the environment so
// the resulting commit is byte-for-byte reproducible given identical input,
// which the history transform (apply_commit) relies on for commit-id
// determinism.
func (o *ODB) WriteCommit(ctx context.Context, c *Commit) (string, error) {
	args := []string{"commit-tree", c.Tree}
	for _, p := range c.Parents {
		args = append(args, "-p", p)
	}
	for _, h := range c.ExtraHeaders {
		args = append(args, "-S"+h.K+"="+h.V)
	}
	opt := &command.RunOpts{
		RepoPath: o.repoPath,
		Stdin:    strings.NewReader(c.Message),
		ExtraEnv: []string{
			"GIT_AUTHOR_NAME=" + c.Author.Name,
			"GIT_AUTHOR_EMAIL=" + c.Author.Email,
			"GIT_AUTHOR_DATE=" + c.Author.When.Format(GitTimeLayout),
			"GIT_COMMITTER_NAME=" + c.Committer.Name,
			"GIT_COMMITTER_EMAIL=" + c.Committer.Email,
			"GIT_COMMITTER_DATE=" + c.Committer.When.Format(GitTimeLayout),
		},
	}
	cmd := command.NewFromOptions(ctx, opt, "git", args...)
	return cmd.OneLine()
}

var (
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidType is returned when an invalid object type is provided.
	ErrInvalidType = errors.New("invalid object type")
)

// ObjectType internal object type
// Integer values from 0 to 7 map to those exposed by git.
// AnyObject is used to represent any from 0 to 7.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4
	// 5 reserved for future expansion
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7

	AnyObject ObjectType = -127
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	case AnyObject:
		return "any"
	default:
		return "unknown"
	}
}

func (t ObjectType) Bytes() []byte {
	return []byte(t.String())
}

// Valid returns true if t is a valid ObjectType.
func (t ObjectType) Valid() bool {
	return t >= CommitObject && t <= REFDeltaObject
}

// IsDelta returns true for any ObjectTyoe that represents a delta (i.e.
// REFDeltaObject or OFSDeltaObject).
func (t ObjectType) IsDelta() bool {
	return t == REFDeltaObject || t == OFSDeltaObject
}

// ParseObjectType parses a string representation of ObjectType. It returns an
// error on parse failure.
func ParseObjectType(value string) (typ ObjectType, err error) {
	switch value {
	case "commit":
		typ = CommitObject
	case "tree":
		typ = TreeObject
	case "blob":
		typ = BlobObject
	case "tag":
		typ = TagObject
	case "ofs-delta":
		typ = OFSDeltaObject
	case "ref-delta":
		typ = REFDeltaObject
	default:
		err = ErrInvalidType
	}
	return
}
