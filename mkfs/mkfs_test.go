package mkfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/layout"
)

func TestFormatGeometry(t *testing.T) {
	assert := assert.New(t)
	dev := device.New(disk.NewMemDisk(70))
	sb, err := Format(dev, Options{Name: "geom", Inodes: 32})
	require.NoError(t, err)

	assert.Equal(layout.Magic, sb.Magic)
	assert.Equal(layout.Version, sb.Version)
	assert.Equal("geom", sb.Name)
	assert.Equal(layout.MStatProperlyUnmounted, sb.MStat)
	assert.Equal(uint32(70), sb.NTotal)
	assert.Equal(uint32(1), sb.ITableStart)
	assert.Equal(uint32(1), sb.ITableSize)
	assert.Equal(uint32(32), sb.ITotal)
	assert.Equal(uint32(31), sb.IFree)
	assert.Equal(common.Inum(1), sb.IHead)
	assert.Equal(common.Inum(31), sb.ITail)
	assert.Equal(uint32(2), sb.DZoneStart)
	assert.Equal(uint32(17), sb.DZoneTotal)
	assert.Equal(uint32(16), sb.DZoneFree)
	assert.Equal(common.Cnum(1), sb.DHead)
	assert.Equal(common.Cnum(16), sb.DTail)
	assert.Equal(uint32(0), sb.RetrievUsed())
	assert.Equal(uint32(0), sb.InsertUsed())

	// The stored superblock matches the returned one.
	blk, err := dev.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(sb, layout.DecodeSuperBlock(blk))
}

func TestFormatDerivesInodeCount(t *testing.T) {
	dev := device.New(disk.NewMemDisk(1024))
	sb, err := Format(dev, Options{})
	require.NoError(t, err)
	// One block of inodes per eight device blocks, plus the blocks left
	// over after carving whole clusters.
	assert.Equal(t, uint32(7), sb.ITableSize)
	assert.Equal(t, uint32(224), sb.ITotal)
	assert.Equal(t, uint32(254), sb.DZoneTotal)
	assert.Equal(t, uint64(1024), uint64(1+sb.ITableSize)+
		uint64(sb.DZoneTotal)*uint64(common.BlocksPerCluster))
}

func TestFormatRootInode(t *testing.T) {
	assert := assert.New(t)
	dev := device.New(disk.NewMemDisk(70))
	sb, err := Format(dev, Options{Inodes: 32})
	require.NoError(t, err)

	bn, idx := sb.InodeBlock(common.RootInum)
	blk, err := dev.ReadBlock(bn)
	require.NoError(t, err)
	root := layout.GetInode(blk, idx)
	assert.Equal(common.TypeDir|common.PermAll, root.Mode)
	assert.Equal(uint32(2), root.RefCount)
	assert.Equal(uint64(common.DPC)*uint64(common.DirEntrySize), root.Size)
	assert.Equal(uint32(1), root.CluCount)
	assert.Equal(common.Cnum(0), root.D[0])

	body, err := dev.ReadClusterBody(sb.ClusterBlock(0))
	require.NoError(t, err)
	ents := layout.DecodeDirEntries(body)
	assert.Equal(layout.DirEntry{Name: ".", Inum: common.RootInum}, ents[0])
	assert.Equal(layout.DirEntry{Name: "..", Inum: common.RootInum}, ents[1])
	assert.True(ents[2].IsFree())
}

func TestFormatThreadsFreeLists(t *testing.T) {
	assert := assert.New(t)
	dev := device.New(disk.NewMemDisk(70))
	sb, err := Format(dev, Options{Inodes: 32})
	require.NoError(t, err)

	// Free inodes chain 1..31.
	bn, idx := sb.InodeBlock(1)
	blk, err := dev.ReadBlock(bn)
	require.NoError(t, err)
	first := layout.GetInode(blk, idx)
	assert.True(first.IsFree())
	assert.Equal(common.NullInum, first.Prev())
	assert.Equal(common.Inum(2), first.Next())

	_, idx = sb.InodeBlock(31)
	last := layout.GetInode(blk, idx)
	assert.Equal(common.Inum(30), last.Prev())
	assert.Equal(common.NullInum, last.Next())

	// Free clusters chain 1..16, all clean.
	h, err := dev.ReadClusterHead(sb.ClusterBlock(1))
	require.NoError(t, err)
	assert.Equal(common.NullCnum, h.Prev)
	assert.Equal(common.Cnum(2), h.Next)
	assert.Equal(common.NullInum, h.Stat)

	h, err = dev.ReadClusterHead(sb.ClusterBlock(16))
	require.NoError(t, err)
	assert.Equal(common.Cnum(15), h.Prev)
	assert.Equal(common.NullCnum, h.Next)
}

func TestFormatZeroWipesBodies(t *testing.T) {
	d := disk.NewMemDisk(70)
	dev := device.New(d)
	// Plant garbage where a cluster body will live.
	junk := make(disk.Block, disk.BlockSize)
	for i := range junk {
		junk[i] = 0xFF
	}
	require.NoError(t, dev.WriteBlock(10, junk))

	sb, err := Format(dev, Options{Inodes: 32, Zero: true})
	require.NoError(t, err)
	for c := common.Cnum(1); c < sb.DZoneTotal; c++ {
		body, err := dev.ReadClusterBody(sb.ClusterBlock(c))
		require.NoError(t, err)
		assert.Equal(t, make([]byte, common.ClusterBodySize), body,
			"cluster %d body not wiped", c)
	}
}

func TestFormatRejectsTinyDevices(t *testing.T) {
	_, err := Format(device.New(disk.NewMemDisk(3)), Options{})
	assert.True(t, errors.Is(err, common.ErrInval))

	// Enough blocks for a header and inode table but not two clusters.
	_, err = Format(device.New(disk.NewMemDisk(6)), Options{Inodes: 32})
	assert.True(t, errors.Is(err, common.ErrInval))
}
