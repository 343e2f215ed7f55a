// Package device provides bounds-checked block and cluster IO over a raw
// disk. Cluster headers occupy the first bytes of a cluster's first block, so
// header updates are read-modify-write of that single block and never move
// the cluster body.
package device

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
)

type Device struct {
	d    disk.Disk
	size uint64
}

func New(d disk.Disk) *Device {
	return &Device{d: d, size: d.Size()}
}

// Size reports the device size in blocks.
func (dv *Device) Size() uint64 {
	return dv.size
}

func (dv *Device) checkBlock(bn uint64) error {
	if bn >= dv.size {
		return fmt.Errorf("block %d out of range (%d blocks): %w",
			bn, dv.size, common.ErrInval)
	}
	return nil
}

func (dv *Device) ReadBlock(bn uint64) (disk.Block, error) {
	if err := dv.checkBlock(bn); err != nil {
		return nil, err
	}
	return dv.d.Read(bn), nil
}

func (dv *Device) WriteBlock(bn uint64, b disk.Block) error {
	if err := dv.checkBlock(bn); err != nil {
		return err
	}
	dv.d.Write(bn, b)
	return nil
}

func (dv *Device) checkCluster(bn uint64) error {
	if bn+uint64(common.BlocksPerCluster) > dv.size {
		return fmt.Errorf("cluster at block %d out of range (%d blocks): %w",
			bn, dv.size, common.ErrInval)
	}
	return nil
}

// ReadClusterHead reads the header of the cluster starting at block bn.
func (dv *Device) ReadClusterHead(bn uint64) (layout.ClusterHead, error) {
	if err := dv.checkCluster(bn); err != nil {
		return layout.ClusterHead{}, err
	}
	return layout.DecodeClusterHead(dv.d.Read(bn)), nil
}

// WriteClusterHead rewrites only the header of the cluster at block bn.
func (dv *Device) WriteClusterHead(bn uint64, h *layout.ClusterHead) error {
	if err := dv.checkCluster(bn); err != nil {
		return err
	}
	blk := dv.d.Read(bn)
	copy(blk[:common.ClusterHdrSize], h.Encode())
	dv.d.Write(bn, blk)
	return nil
}

// ReadClusterBody reads the payload of the cluster at block bn.
func (dv *Device) ReadClusterBody(bn uint64) ([]byte, error) {
	if err := dv.checkCluster(bn); err != nil {
		return nil, err
	}
	body := make([]byte, 0, common.ClusterBodySize)
	first := dv.d.Read(bn)
	body = append(body, first[common.ClusterHdrSize:]...)
	for i := uint64(1); i < uint64(common.BlocksPerCluster); i++ {
		body = append(body, dv.d.Read(bn+i)...)
	}
	return body, nil
}

// WriteClusterBody rewrites the payload of the cluster at block bn, leaving
// the header untouched.
func (dv *Device) WriteClusterBody(bn uint64, body []byte) error {
	if err := dv.checkCluster(bn); err != nil {
		return err
	}
	if uint32(len(body)) != common.ClusterBodySize {
		return fmt.Errorf("bad cluster body size %d: %w", len(body), common.ErrInval)
	}
	first := dv.d.Read(bn)
	n := copy(first[common.ClusterHdrSize:], body)
	dv.d.Write(bn, first)
	for i := uint64(1); i < uint64(common.BlocksPerCluster); i++ {
		blk := make(disk.Block, disk.BlockSize)
		n += copy(blk, body[n:])
		dv.d.Write(bn+i, blk)
	}
	return nil
}

// Barrier flushes outstanding writes to stable storage.
func (dv *Device) Barrier() {
	dv.d.Barrier()
}
