// Package fs implements the consistency logic of a clusterfs volume: inode
// and data cluster allocation over the on-disk free structures, the
// direct/indirect cluster reference resolver, file cluster IO, and the
// directory layer.
//
// The package assumes a single actor. Callers serialize access themselves;
// there is no journaling and no locking at this layer.
package fs

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// FileSystem is a handle on a mounted volume. The superblock is kept in
// memory and written back explicitly at the points where an operation commits
// a state change.
type FileSystem struct {
	dev *device.Device
	sb  *layout.SuperBlock
}

// Mount reads and validates the superblock of a formatted volume.
func Mount(dev *device.Device) (*FileSystem, error) {
	blk, err := dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb := layout.DecodeSuperBlock(blk)
	if sb.Magic != layout.Magic {
		return nil, fmt.Errorf("bad magic %#x: %w", sb.Magic, common.ErrCorrupt)
	}
	if sb.Version != layout.Version {
		return nil, fmt.Errorf("bad version %#x: %w", sb.Version, common.ErrCorrupt)
	}
	util.DPrintf(1, "mount: %q itotal %d dztotal %d", sb.Name, sb.ITotal, sb.DZoneTotal)
	return &FileSystem{dev: dev, sb: sb}, nil
}

// SuperBlock exposes the in-memory superblock image.
func (f *FileSystem) SuperBlock() *layout.SuperBlock {
	return f.sb
}

// storeSuperBlock writes the in-memory superblock back to block 0.
func (f *FileSystem) storeSuperBlock() error {
	return f.dev.WriteBlock(0, f.sb.Encode())
}

// Sync flushes outstanding writes to stable storage.
func (f *FileSystem) Sync() {
	f.dev.Barrier()
}

func (f *FileSystem) checkInum(n common.Inum) error {
	if n >= f.sb.ITotal {
		return fmt.Errorf("inode %d out of range (%d): %w", n, f.sb.ITotal, common.ErrInval)
	}
	return nil
}

func (f *FileSystem) checkCnum(c common.Cnum) error {
	if c >= f.sb.DZoneTotal {
		return fmt.Errorf("cluster %d out of range (%d): %w", c, f.sb.DZoneTotal, common.ErrInval)
	}
	return nil
}

// readInodeRaw reads inode n as stored, without status checks.
func (f *FileSystem) readInodeRaw(n common.Inum) (layout.Inode, error) {
	if err := f.checkInum(n); err != nil {
		return layout.Inode{}, err
	}
	bn, idx := f.sb.InodeBlock(n)
	blk, err := f.dev.ReadBlock(bn)
	if err != nil {
		return layout.Inode{}, err
	}
	return layout.GetInode(blk, idx), nil
}

// writeInodeRaw stores inode n as given, without status checks.
func (f *FileSystem) writeInodeRaw(n common.Inum, ip *layout.Inode) error {
	if err := f.checkInum(n); err != nil {
		return err
	}
	bn, idx := f.sb.InodeBlock(n)
	blk, err := f.dev.ReadBlock(bn)
	if err != nil {
		return err
	}
	layout.PutInode(blk, idx, ip)
	return f.dev.WriteBlock(bn, blk)
}

func (f *FileSystem) readHead(c common.Cnum) (layout.ClusterHead, error) {
	if err := f.checkCnum(c); err != nil {
		return layout.ClusterHead{}, err
	}
	return f.dev.ReadClusterHead(f.sb.ClusterBlock(c))
}

func (f *FileSystem) writeHead(c common.Cnum, h *layout.ClusterHead) error {
	if err := f.checkCnum(c); err != nil {
		return err
	}
	return f.dev.WriteClusterHead(f.sb.ClusterBlock(c), h)
}

func (f *FileSystem) readBody(c common.Cnum) ([]byte, error) {
	if err := f.checkCnum(c); err != nil {
		return nil, err
	}
	return f.dev.ReadClusterBody(f.sb.ClusterBlock(c))
}

func (f *FileSystem) writeBody(c common.Cnum, body []byte) error {
	if err := f.checkCnum(c); err != nil {
		return err
	}
	return f.dev.WriteClusterBody(f.sb.ClusterBlock(c), body)
}

func (f *FileSystem) readRefs(c common.Cnum) ([]common.Cnum, error) {
	body, err := f.readBody(c)
	if err != nil {
		return nil, err
	}
	return layout.DecodeRefs(body), nil
}

func (f *FileSystem) writeRefs(c common.Cnum, refs []common.Cnum) error {
	return f.writeBody(c, layout.EncodeRefs(refs))
}
