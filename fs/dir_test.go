package fs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterfs/clusterfs/common"
)

// mkdir allocates a directory inode and binds it under parent.
func mkdir(t *testing.T, f *FileSystem, parent common.Inum, name string) common.Inum {
	t.Helper()
	d := mkInode(t, f, common.TypeDir)
	require.NoError(t, f.AddDirEntry(parent, name, d))
	return d
}

func TestAddDirEntryAndLookup(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)

	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))
	got, idx, err := f.GetDirEntryByName(common.RootInum, "a")
	require.NoError(t, err)
	assert.Equal(n, got)
	assert.Equal(uint32(2), idx, "first slot after \".\" and \"..\"")

	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	assert.Equal(uint32(1), ip.RefCount)

	_, _, err = f.GetDirEntryByName(common.RootInum, "missing")
	assert.True(errors.Is(err, common.ErrNotFound))
}

func TestAddDirEntryRules(t *testing.T) {
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))

	err := f.AddDirEntry(common.RootInum, "a", n)
	assert.True(t, errors.Is(err, common.ErrExists))

	err = f.AddDirEntry(common.RootInum, "", n)
	assert.True(t, errors.Is(err, common.ErrInval))
	err = f.AddDirEntry(common.RootInum, "a/b", n)
	assert.True(t, errors.Is(err, common.ErrInval))
	err = f.AddDirEntry(common.RootInum, strings.Repeat("n", 60), n)
	assert.True(t, errors.Is(err, common.ErrNameTooLong))
}

func TestMkdirSeedsDotEntries(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	d := mkdir(t, f, common.RootInum, "d")

	ents, err := f.readDirEntries(d, 0)
	require.NoError(t, err)
	assert.Equal(".", ents[0].Name)
	assert.Equal(d, ents[0].Inum)
	assert.Equal("..", ents[1].Name)
	assert.Equal(common.RootInum, ents[1].Inum)

	ip, err := f.readInodeRaw(d)
	require.NoError(t, err)
	assert.Equal(uint32(2), ip.RefCount, "the entry and its own \".\"")
	assert.Equal(uint64(common.DPC)*uint64(common.DirEntrySize), ip.Size)
	assert.Equal(uint32(1), ip.CluCount)

	root, err := f.readInodeRaw(common.RootInum)
	require.NoError(t, err)
	assert.Equal(uint32(3), root.RefCount, "the child's \"..\" counts")
}

func TestRemoveDirEntryLeavesDirtySlot(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))
	require.NoError(t, f.WriteFileCluster(n, 0, clusterBody(0x11)))

	require.NoError(t, f.RemoveDirEntry(common.RootInum, "a"))
	_, _, err := f.GetDirEntryByName(common.RootInum, "a")
	assert.True(errors.Is(err, common.ErrNotFound))

	ents, err := f.readDirEntries(common.RootInum, 0)
	require.NoError(t, err)
	assert.True(ents[2].IsFree())
	assert.Equal("a", ents[2].Name, "the name stays behind")

	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	assert.True(ip.IsFree())
	assert.False(ip.IsClean(), "inode freed dirty, reference kept")
	free, err := f.isFreeCluster(ip.D[0])
	require.NoError(t, err)
	assert.True(free, "data cluster back in the free structures")
}

func TestDetachDirEntryCleans(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))
	require.NoError(t, f.WriteFileCluster(n, 0, clusterBody(0x22)))

	require.NoError(t, f.DetachDirEntry(common.RootInum, "a"))
	ents, err := f.readDirEntries(common.RootInum, 0)
	require.NoError(t, err)
	assert.True(ents[2].IsFree())
	assert.Equal("", ents[2].Name, "the slot is clean")

	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	assert.True(ip.IsFree())
	assert.True(ip.IsClean(), "clusters cleaned and references dropped")
	assertConserved(t, f)
}

func TestRemoveDirEntryRules(t *testing.T) {
	f := newBigFS(t)
	d := mkdir(t, f, common.RootInum, "d")
	mkdir(t, f, d, "inner")

	err := f.RemoveDirEntry(common.RootInum, ".")
	assert.True(t, errors.Is(err, common.ErrPerm))
	err = f.RemoveDirEntry(common.RootInum, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	err = f.RemoveDirEntry(common.RootInum, "d")
	assert.True(t, errors.Is(err, common.ErrNotEmpty))

	require.NoError(t, f.RemoveDirEntry(d, "inner"))
	require.NoError(t, f.RemoveDirEntry(common.RootInum, "d"))
}

func TestSlotReuseAfterRemove(t *testing.T) {
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))
	require.NoError(t, f.RemoveDirEntry(common.RootInum, "a"))

	m := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "b", m))
	_, idx, err := f.GetDirEntryByName(common.RootInum, "b")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx, "freed slot is reused")
}

func TestRenameDirEntry(t *testing.T) {
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)
	m := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(common.RootInum, "a", n))
	require.NoError(t, f.AddDirEntry(common.RootInum, "other", m))

	require.NoError(t, f.RenameDirEntry(common.RootInum, "a", "b"))
	got, idx, err := f.GetDirEntryByName(common.RootInum, "b")
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.Equal(t, uint32(2), idx, "rename happens in place")
	_, _, err = f.GetDirEntryByName(common.RootInum, "a")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = f.RenameDirEntry(common.RootInum, "b", "other")
	assert.True(t, errors.Is(err, common.ErrExists))
	err = f.RenameDirEntry(common.RootInum, "missing", "c")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCheckDirectoryEmptiness(t *testing.T) {
	f := newBigFS(t)
	d := mkdir(t, f, common.RootInum, "d")
	assert.NoError(t, f.CheckDirectoryEmptiness(d))

	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(d, "x", n))
	err := f.CheckDirectoryEmptiness(d)
	assert.True(t, errors.Is(err, common.ErrNotEmpty))

	err = f.CheckDirectoryEmptiness(n)
	assert.True(t, errors.Is(err, common.ErrNotDir))
}

func TestAttachDirectory(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	base := mkdir(t, f, common.RootInum, "base")
	sub := mkdir(t, f, common.RootInum, "sub")

	require.NoError(t, f.AttachDirectory(base, "s", sub))
	got, _, err := f.GetDirEntryByName(base, "s")
	require.NoError(t, err)
	assert.Equal(sub, got)

	ents, err := f.readDirEntries(sub, 0)
	require.NoError(t, err)
	assert.Equal(base, ents[1].Inum, "\"..\" rewired to the new base")

	subIp, err := f.readInodeRaw(sub)
	require.NoError(t, err)
	assert.Equal(uint32(3), subIp.RefCount)
}

func TestGetDirEntryByPath(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	d := mkdir(t, f, common.RootInum, "d")
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(d, "f", n))

	got, err := f.GetDirEntryByPath("/d/f")
	require.NoError(t, err)
	assert.Equal(n, got)

	got, err = f.GetDirEntryByPath("/")
	require.NoError(t, err)
	assert.Equal(common.RootInum, got)

	_, err = f.GetDirEntryByPath("d/f")
	assert.True(errors.Is(err, common.ErrRelPath))
	_, err = f.GetDirEntryByPath("/d/x")
	assert.True(errors.Is(err, common.ErrNotFound))
	_, err = f.GetDirEntryByPath("/d/f/x")
	assert.True(errors.Is(err, common.ErrNotDir))
}

func TestPathFollowsSymlink(t *testing.T) {
	f := newBigFS(t)
	d := mkdir(t, f, common.RootInum, "d")
	n := mkInode(t, f, common.TypeFile)
	require.NoError(t, f.AddDirEntry(d, "f", n))

	s := mkInode(t, f, common.TypeSymlink)
	target := make([]byte, common.ClusterBodySize)
	copy(target, "/d")
	require.NoError(t, f.WriteFileCluster(s, 0, target))
	require.NoError(t, f.AddDirEntry(common.RootInum, "l", s))

	got, err := f.GetDirEntryByPath("/l/f")
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestPathSymlinkBudget(t *testing.T) {
	f := newBigFS(t)
	s := mkInode(t, f, common.TypeSymlink)
	target := make([]byte, common.ClusterBodySize)
	copy(target, "/loop")
	require.NoError(t, f.WriteFileCluster(s, 0, target))
	require.NoError(t, f.AddDirEntry(common.RootInum, "loop", s))

	_, err := f.GetDirEntryByPath("/loop")
	assert.True(t, errors.Is(err, common.ErrLoop))
}

func TestPathRejectsRelativeSymlink(t *testing.T) {
	f := newBigFS(t)
	s := mkInode(t, f, common.TypeSymlink)
	target := make([]byte, common.ClusterBodySize)
	copy(target, "elsewhere")
	require.NoError(t, f.WriteFileCluster(s, 0, target))
	require.NoError(t, f.AddDirEntry(common.RootInum, "rel", s))

	_, err := f.GetDirEntryByPath("/rel")
	assert.True(t, errors.Is(err, common.ErrRelPath))
}
