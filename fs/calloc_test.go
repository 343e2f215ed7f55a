package fs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterfs/clusterfs/common"
)

// freeStructures walks every free structure and returns the staged cluster
// numbers in consumption order: retrieval cache, then the on-disk list, then
// the insertion cache.
func freeStructures(t *testing.T, f *FileSystem) []common.Cnum {
	t.Helper()
	var out []common.Cnum
	sb := f.SuperBlock()
	for i := sb.Retriev.Idx; i < common.DZoneCacheSize; i++ {
		out = append(out, sb.Retriev.Ref[i])
	}
	for cur := sb.DHead; cur != common.NullCnum; {
		out = append(out, cur)
		h, err := f.readHead(cur)
		require.NoError(t, err)
		cur = h.Next
		require.LessOrEqual(t, len(out), int(sb.DZoneTotal), "free list loop")
	}
	for i := uint32(0); i < sb.Insert.Idx; i++ {
		out = append(out, sb.Insert.Ref[i])
	}
	return out
}

// assertConserved checks that the free structures hold exactly DZoneFree
// distinct clusters.
func assertConserved(t *testing.T, f *FileSystem) {
	t.Helper()
	staged := freeStructures(t, f)
	assert.Equal(t, int(f.SuperBlock().DZoneFree), len(staged))
	seen := make(map[common.Cnum]bool, len(staged))
	for _, c := range staged {
		assert.False(t, seen[c], "cluster %d staged twice", c)
		seen[c] = true
	}
}

func TestAllocDataClusterFirst(t *testing.T) {
	assert := assert.New(t)
	f := newSmallFS(t)

	c, err := f.AllocDataCluster(common.RootInum)
	require.NoError(t, err)
	assert.Equal(common.Cnum(1), c, "the oldest free cluster comes out first")
	assert.Equal(uint32(15), f.SuperBlock().DZoneFree)

	h, err := f.readHead(c)
	require.NoError(t, err)
	assert.Equal(common.RootInum, h.Stat)
	assert.False(h.InFreeList())
	free, err := f.isFreeCluster(c)
	require.NoError(t, err)
	assert.False(free)
	assertConserved(t, f)
}

func TestAllocDataClusterRules(t *testing.T) {
	f := newSmallFS(t)

	_, err := f.AllocDataCluster(5)
	assert.True(t, errors.Is(err, common.ErrInodeInUseInval), "owner must be in use")

	_, err = f.AllocDataCluster(f.SuperBlock().ITotal)
	assert.True(t, errors.Is(err, common.ErrInval))
}

func TestFreeDataClusterStaged(t *testing.T) {
	assert := assert.New(t)
	f := newSmallFS(t)
	c, err := f.AllocDataCluster(common.RootInum)
	require.NoError(t, err)

	require.NoError(t, f.FreeDataCluster(c))
	sb := f.SuperBlock()
	assert.Equal(uint32(1), sb.Insert.Idx)
	assert.Equal(c, sb.Insert.Ref[0])
	assert.Equal(uint32(16), sb.DZoneFree)

	// The stat stays behind: the cluster is free in the dirty state.
	h, err := f.readHead(c)
	require.NoError(t, err)
	assert.Equal(common.RootInum, h.Stat)
	assertConserved(t, f)

	err = f.FreeDataCluster(c)
	assert.True(errors.Is(err, common.ErrClusterInFreeList))
}

func TestFreeDataClusterRules(t *testing.T) {
	f := newSmallFS(t)

	err := f.FreeDataCluster(0)
	assert.True(t, errors.Is(err, common.ErrInval), "root cluster is never freed")

	err = f.FreeDataCluster(f.SuperBlock().DZoneTotal)
	assert.True(t, errors.Is(err, common.ErrInval))

	err = f.FreeDataCluster(3)
	assert.True(t, errors.Is(err, common.ErrClusterInFreeList), "cluster 3 is already free")
}

func TestDataClusterExhaustion(t *testing.T) {
	f := newSmallFS(t)
	total := f.SuperBlock().DZoneFree
	for i := uint32(0); i < total; i++ {
		_, err := f.AllocDataCluster(common.RootInum)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(0), f.SuperBlock().DZoneFree)

	_, err := f.AllocDataCluster(common.RootInum)
	assert.True(t, errors.Is(err, common.ErrNoSpace))
}

// Freed clusters come back out in the order they went in, behind whatever is
// still staged in the retrieval cache.
func TestFreeClustersRecycleFIFO(t *testing.T) {
	f := newSmallFS(t)
	n := mkInode(t, f, common.TypeFile)

	direct := make([]common.Cnum, common.NDirect)
	for i := uint32(0); i < common.NDirect; i++ {
		c, err := f.HandleFileCluster(n, i, OpAlloc)
		require.NoError(t, err)
		direct[i] = c
	}
	freed := []common.Cnum{direct[4], direct[2], direct[0]}
	for _, i := range []uint32{4, 2, 0} {
		_, err := f.HandleFileCluster(n, i, OpFreeClean)
		require.NoError(t, err)
	}
	assertConserved(t, f)

	// Drain the staged clusters; the freed ones follow in free order.
	var got []common.Cnum
	for f.SuperBlock().DZoneFree > 0 {
		c, err := f.AllocDataCluster(common.RootInum)
		require.NoError(t, err)
		got = append(got, c)
	}
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, freed, got[len(got)-3:])
}

// Cycling more clusters than one cache holds exercises replenish and deplete
// together, including the mid-replenish deplete when the on-disk list runs
// dry. Conservation of the free count must hold throughout.
func TestCacheCycleConservation(t *testing.T) {
	f := newBigFS(t)
	start := f.SuperBlock().DZoneFree
	require.Greater(t, start, uint32(121))
	n := mkInode(t, f, common.TypeFile)

	for round := 0; round < 3; round++ {
		for i := uint32(0); i < 120; i++ {
			_, err := f.HandleFileCluster(n, i, OpAlloc)
			require.NoError(t, err)
		}
		assertConserved(t, f)
		require.NoError(t, f.HandleFileClusters(n, 0, OpFreeClean))
		assertConserved(t, f)
	}
	assert.Equal(t, start, f.SuperBlock().DZoneFree)
}

// A replenish that drains the list mid-loop and refills it from the
// insertion cache can strand exactly one list node. That node carries no
// links; only DHead and DTail name it, and it must still count as free.
func TestReplenishLeavesSingleListNode(t *testing.T) {
	assert := assert.New(t)
	f := newBigFS(t)
	n := mkInode(t, f, common.TypeFile)

	got := make([]common.Cnum, 250)
	for i := range got {
		c, err := f.AllocDataCluster(n)
		require.NoError(t, err)
		got[i] = c
	}
	for _, c := range got[:48] {
		require.NoError(t, f.FreeDataCluster(c))
	}

	// Three list nodes plus 48 staged frees: the next replenish pops the
	// list dry, depletes the cache, and leaves one node behind.
	_, err := f.AllocDataCluster(n)
	require.NoError(t, err)
	sb := f.SuperBlock()
	require.NotEqual(t, common.NullCnum, sb.DHead)
	require.Equal(t, sb.DHead, sb.DTail)

	h, err := f.readHead(sb.DHead)
	require.NoError(t, err)
	assert.Equal(common.NullCnum, h.Prev)
	assert.Equal(common.NullCnum, h.Next)

	free, err := f.isFreeCluster(sb.DHead)
	require.NoError(t, err)
	assert.True(free, "single list node is free")
	assertConserved(t, f)
}

// A dirty free cluster can outlive its owner: once the owner inode is
// reallocated, its references are gone and nothing is left to unhook, so the
// next allocation scrubs the cluster in place.
func TestLazyCleanAfterOwnerReuse(t *testing.T) {
	assert := assert.New(t)
	f := newSmallFS(t)
	inodes := make([]common.Inum, 31)
	for i := range inodes {
		inodes[i] = mkInode(t, f, common.TypeFile)
	}
	n := inodes[0]

	require.NoError(t, f.WriteFileCluster(n, 0, clusterBody(0x33)))
	ip, err := f.readInodeRaw(n)
	require.NoError(t, err)
	c := ip.D[0]
	_, err = f.HandleFileCluster(n, 0, OpFree)
	require.NoError(t, err)
	require.NoError(t, f.FreeInode(n))

	// The only free inode comes straight back; cleaning it drops the
	// reference to c while c stays dirty in the free structures.
	reborn, err := f.AllocInode(common.TypeFile)
	require.NoError(t, err)
	require.Equal(t, n, reborn)

	var last common.Cnum
	for f.SuperBlock().DZoneFree > 0 {
		last, err = f.AllocDataCluster(reborn)
		require.NoError(t, err)
	}
	require.Equal(t, c, last, "the orphaned dirty cluster is reallocatable")

	h, err := f.readHead(c)
	require.NoError(t, err)
	assert.Equal(reborn, h.Stat)
	body, err := f.readBody(c)
	require.NoError(t, err)
	assert.Equal(make([]byte, common.ClusterBodySize), body, "contents scrubbed")
}
