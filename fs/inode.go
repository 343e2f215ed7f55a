package fs

import (
	"fmt"
	"time"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// Status selects which consistency discipline an inode access is checked
// against: an inode can legally be read or written either while in use or
// while free in the dirty state (during lazy cleaning).
type Status int

const (
	InUse Status = iota
	FreeDirty
)

func now() uint32 {
	return uint32(time.Now().Unix())
}

// checkInUse verifies that an inode image is legally in use.
func checkInUse(n common.Inum, ip *layout.Inode) error {
	if ip.IsFree() {
		return fmt.Errorf("inode %d is free: %w", n, common.ErrInodeInUseInval)
	}
	if !ip.LegalType() {
		return fmt.Errorf("inode %d has illegal type %#x: %w", n, ip.Type(),
			common.ErrInodeInUseInval)
	}
	return nil
}

// checkFreeDirty verifies that an inode image is legally free in the dirty
// state.
func checkFreeDirty(n common.Inum, ip *layout.Inode) error {
	if !ip.IsFree() {
		return fmt.Errorf("inode %d is in use: %w", n, common.ErrFreeDirtyInodeInval)
	}
	if !ip.LegalType() {
		return fmt.Errorf("inode %d has illegal type %#x: %w", n, ip.Type(),
			common.ErrFreeDirtyInodeInval)
	}
	return nil
}

// ReadInode reads inode n under the given status discipline. Reading an
// in-use inode refreshes its access time.
func (f *FileSystem) ReadInode(n common.Inum, status Status) (layout.Inode, error) {
	ip, err := f.readInodeRaw(n)
	if err != nil {
		return layout.Inode{}, err
	}
	switch status {
	case InUse:
		if err := checkInUse(n, &ip); err != nil {
			return layout.Inode{}, err
		}
		ip.SetATime(now())
		if err := f.writeInodeRaw(n, &ip); err != nil {
			return layout.Inode{}, err
		}
	case FreeDirty:
		if err := checkFreeDirty(n, &ip); err != nil {
			return layout.Inode{}, err
		}
	default:
		return layout.Inode{}, fmt.Errorf("bad inode status %d: %w", status, common.ErrInval)
	}
	return ip, nil
}

// WriteInode stores inode n under the given status discipline. Writing an
// in-use inode sets both times to now; a free-dirty write leaves the dual-use
// fields alone since they hold the free-list links.
func (f *FileSystem) WriteInode(n common.Inum, ip *layout.Inode, status Status) error {
	switch status {
	case InUse:
		if err := checkInUse(n, ip); err != nil {
			return err
		}
		t := now()
		ip.SetATime(t)
		ip.SetMTime(t)
	case FreeDirty:
		if err := checkFreeDirty(n, ip); err != nil {
			return err
		}
	default:
		return fmt.Errorf("bad inode status %d: %w", status, common.ErrInval)
	}
	util.DPrintf(3, "WriteInode %d mode %#x size %d clucount %d",
		n, ip.Mode, ip.Size, ip.CluCount)
	return f.writeInodeRaw(n, ip)
}
