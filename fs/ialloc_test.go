package fs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterfs/clusterfs/common"
)

func TestAllocInodeInitialState(t *testing.T) {
	assert := assert.New(t)
	f := newSmallFS(t)

	n, err := f.AllocInode(common.TypeFile)
	require.NoError(t, err)
	assert.Equal(common.Inum(1), n)
	assert.Equal(uint32(30), f.SuperBlock().IFree)
	assert.Equal(common.Inum(2), f.SuperBlock().IHead)

	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	assert.Equal(common.TypeFile, ip.Mode, "no permissions on a fresh inode")
	assert.Equal(uint32(0), ip.RefCount)
	assert.Equal(uint64(0), ip.Size)
	assert.Equal(uint32(0), ip.CluCount)
	for i := uint32(0); i < common.NDirect; i++ {
		assert.Equal(common.NullCnum, ip.D[i])
	}
	assert.Equal(common.NullCnum, ip.I1)
	assert.Equal(common.NullCnum, ip.I2)
}

func TestAllocInodeBadType(t *testing.T) {
	f := newSmallFS(t)
	_, err := f.AllocInode(common.TypeDir | common.TypeFile)
	assert.True(t, errors.Is(err, common.ErrInval))
	_, err = f.AllocInode(common.PermAll)
	assert.True(t, errors.Is(err, common.ErrInval))
}

func TestAllocInodeExhaustion(t *testing.T) {
	f := newSmallFS(t)
	for i := uint32(1); i < f.SuperBlock().ITotal; i++ {
		n, err := f.AllocInode(common.TypeFile)
		require.NoError(t, err)
		assert.Equal(t, common.Inum(i), n)
	}
	assert.Equal(t, uint32(0), f.SuperBlock().IFree)
	assert.Equal(t, common.NullInum, f.SuperBlock().IHead)
	assert.Equal(t, common.NullInum, f.SuperBlock().ITail)

	_, err := f.AllocInode(common.TypeFile)
	assert.True(t, errors.Is(err, common.ErrNoSpace))
}

func TestFreeInodeFIFOReuse(t *testing.T) {
	f := newSmallFS(t)
	for i := uint32(1); i < f.SuperBlock().ITotal; i++ {
		_, err := f.AllocInode(common.TypeFile)
		require.NoError(t, err)
	}
	for _, n := range []common.Inum{10, 20, 30} {
		require.NoError(t, f.FreeInode(n))
	}
	assert.Equal(t, common.Inum(10), f.SuperBlock().IHead)
	assert.Equal(t, common.Inum(30), f.SuperBlock().ITail)

	for _, want := range []common.Inum{10, 20, 30} {
		n, err := f.AllocInode(common.TypeDir)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err := f.AllocInode(common.TypeFile)
	assert.True(t, errors.Is(err, common.ErrNoSpace))
}

func TestFreeInodeRules(t *testing.T) {
	f := newSmallFS(t)

	err := f.FreeInode(common.RootInum)
	assert.True(t, errors.Is(err, common.ErrInval), "root inode is never freed")

	err = f.FreeInode(7)
	assert.True(t, errors.Is(err, common.ErrInodeInUseInval), "inode 7 is already free")

	n, err := f.AllocInode(common.TypeFile)
	require.NoError(t, err)
	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	ip.RefCount = 1
	require.NoError(t, f.writeInodeRaw(n, &ip))
	err = f.FreeInode(n)
	assert.True(t, errors.Is(err, common.ErrInval), "linked inode is never freed")
}

func TestCleanInodeRules(t *testing.T) {
	f := newSmallFS(t)

	err := f.CleanInode(common.RootInum)
	assert.True(t, errors.Is(err, common.ErrInval))

	n, err := f.AllocInode(common.TypeFile)
	require.NoError(t, err)
	err = f.CleanInode(n)
	assert.True(t, errors.Is(err, common.ErrFreeDirtyInodeInval), "inode is in use")
}

// A dirty inode picked from the free list head is cleaned before reuse: its
// cluster references are dropped and its counters zeroed, while the free-list
// links survive the cleaning.
func TestAllocInodeCleansDirtyInode(t *testing.T) {
	assert := assert.New(t)
	f := newSmallFS(t)
	for i := uint32(1); i < f.SuperBlock().ITotal; i++ {
		_, err := f.AllocInode(common.TypeFile)
		require.NoError(t, err)
	}

	require.NoError(t, f.WriteFileCluster(5, 0, clusterBody(0xAB)))
	require.NoError(t, f.HandleFileClusters(5, 0, OpFree))
	require.NoError(t, f.FreeInode(5))

	dirty, err := f.readInodeRaw(5)
	require.NoError(t, err)
	assert.True(dirty.IsFree())
	assert.False(dirty.IsClean(), "reference survives the free")

	n, err := f.AllocInode(common.TypeSymlink)
	require.NoError(t, err)
	assert.Equal(common.Inum(5), n)

	ip, err := f.readInodeRaw(5)
	require.NoError(t, err)
	assert.Equal(common.TypeSymlink, ip.Mode)
	assert.Equal(common.NullCnum, ip.D[0])
	assert.Equal(uint32(0), ip.CluCount)
}

// CleanInode frees indirection clusters clean: after cleaning an inode that
// grew a single-indirect table, the table's cluster is back in the free
// structures with a null stat.
func TestCleanInodeFreesIndirectionClusters(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	n, err := f.AllocInode(common.TypeFile)
	require.NoError(t, err)

	_, err = f.HandleFileCluster(n, common.NDirect, OpAlloc)
	require.NoError(t, err)
	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	i1 := ip.I1
	require.NotEqual(t, common.NullCnum, i1)

	require.NoError(t, f.HandleFileClusters(n, 0, OpFree))
	require.NoError(t, f.FreeInode(n))
	require.NoError(t, f.CleanInode(n))

	ip, err = f.readInodeRaw(n)
	require.NoError(t, err)
	assert.Equal(common.NullCnum, ip.I1)
	assert.True(ip.IsClean())

	h, err := f.readHead(i1)
	require.NoError(t, err)
	assert.Equal(common.NullInum, h.Stat, "indirection cluster re-enters clean")
	free, err := f.isFreeCluster(i1)
	require.NoError(t, err)
	assert.True(free)
}
