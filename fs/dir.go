package fs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// entriesPerDir gives the number of entry slots a directory's size covers.
func entriesPerDir(ip *layout.Inode) uint32 {
	return uint32(ip.Size / uint64(common.DirEntrySize))
}

func dirSizeBytes(clusters uint32) uint64 {
	return uint64(clusters) * uint64(common.DPC) * uint64(common.DirEntrySize)
}

// checkName validates a directory entry base name.
func checkName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("bad entry name %q: %w", name, common.ErrInval)
	}
	if uint32(len(name)) > common.MaxName {
		return fmt.Errorf("entry name %q: %w", name, common.ErrNameTooLong)
	}
	return nil
}

// readDir reads the directory inode and verifies it is a directory.
func (f *FileSystem) readDir(nDir common.Inum) (layout.Inode, error) {
	ip, err := f.ReadInode(nDir, InUse)
	if err != nil {
		return layout.Inode{}, err
	}
	if ip.Type() != common.TypeDir {
		return layout.Inode{}, fmt.Errorf("inode %d: %w", nDir, common.ErrNotDir)
	}
	return ip, nil
}

func (f *FileSystem) readDirEntries(nDir common.Inum, cluster uint32) ([]layout.DirEntry, error) {
	body, err := f.ReadFileCluster(nDir, cluster)
	if err != nil {
		return nil, err
	}
	return layout.DecodeDirEntries(body), nil
}

func (f *FileSystem) writeDirEntries(nDir common.Inum, cluster uint32, ents []layout.DirEntry) error {
	return f.WriteFileCluster(nDir, cluster, layout.EncodeDirEntries(ents))
}

// GetDirEntryByName scans the directory for an entry with the given name and
// returns its inode number and entry index. When the name is absent the error
// is ErrNotFound and the returned index is where an insertion would go: the
// first free slot, or one past the last entry when the directory is full.
func (f *FileSystem) GetDirEntryByName(nDir common.Inum, name string) (common.Inum, uint32, error) {
	if err := checkName(name); err != nil {
		return common.NullInum, 0, err
	}
	ip, err := f.readDir(nDir)
	if err != nil {
		return common.NullInum, 0, err
	}

	total := entriesPerDir(&ip)
	firstFree := total
	haveFree := false
	for idx := uint32(0); idx < total; idx += common.DPC {
		ents, err := f.readDirEntries(nDir, idx/common.DPC)
		if err != nil {
			return common.NullInum, 0, err
		}
		for i := uint32(0); i < common.DPC && idx+i < total; i++ {
			if ents[i].IsFree() {
				if !haveFree {
					firstFree = idx + i
					haveFree = true
				}
				continue
			}
			if ents[i].Name == name {
				return ents[i].Inum, idx + i, nil
			}
		}
	}
	return common.NullInum, firstFree, fmt.Errorf("%q in directory %d: %w",
		name, nDir, common.ErrNotFound)
}

// AddDirEntry adds an entry binding name to inode nEnt in directory nDir.
// When nEnt is itself a directory it is seeded with "." and ".." and the
// reference counts of both sides account for them.
func (f *FileSystem) AddDirEntry(nDir common.Inum, name string, nEnt common.Inum) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := f.AccessGranted(nDir, common.X); err != nil {
		return err
	}
	if err := f.AccessGranted(nDir, common.W); err != nil {
		return fmt.Errorf("directory %d not writable: %w", nDir, common.ErrPerm)
	}
	dirIp, err := f.readDir(nDir)
	if err != nil {
		return err
	}
	_, idx, err := f.GetDirEntryByName(nDir, name)
	if err == nil {
		return fmt.Errorf("%q in directory %d: %w", name, nDir, common.ErrExists)
	}
	if !isNotFound(err) {
		return err
	}
	entIp, err := f.ReadInode(nEnt, InUse)
	if err != nil {
		return err
	}
	if entIp.RefCount >= common.MaxRefCount {
		return fmt.Errorf("inode %d: %w", nEnt, common.ErrTooManyLinks)
	}
	isDir := entIp.Type() == common.TypeDir
	if isDir && dirIp.RefCount >= common.MaxRefCount {
		return fmt.Errorf("inode %d: %w", nDir, common.ErrTooManyLinks)
	}

	total := entriesPerDir(&dirIp)
	grow := idx == total
	if grow && uint64(total) >= uint64(common.MaxFileClusters)*uint64(common.DPC) {
		return fmt.Errorf("directory %d: %w", nDir, common.ErrFileTooBig)
	}

	if grow {
		ents := layout.NullDirEntries()
		ents[0] = layout.DirEntry{Name: name, Inum: nEnt}
		if err := f.writeDirEntries(nDir, idx/common.DPC, ents); err != nil {
			return err
		}
	} else {
		ents, err := f.readDirEntries(nDir, idx/common.DPC)
		if err != nil {
			return err
		}
		ents[idx%common.DPC] = layout.DirEntry{Name: name, Inum: nEnt}
		if err := f.writeDirEntries(nDir, idx/common.DPC, ents); err != nil {
			return err
		}
	}

	if isDir {
		// Seed the child with its own "." and "..".
		ents := layout.NullDirEntries()
		ents[0] = layout.DirEntry{Name: ".", Inum: nEnt}
		ents[1] = layout.DirEntry{Name: "..", Inum: nDir}
		if err := f.writeDirEntries(nEnt, 0, ents); err != nil {
			return err
		}
	}

	// The file-cluster writes above may have changed the inodes on disk
	// (cluster counts, times), so apply the bookkeeping on fresh copies.
	entIp, err = f.ReadInode(nEnt, InUse)
	if err != nil {
		return err
	}
	entIp.RefCount++
	if isDir {
		entIp.RefCount++ // its own "."
		entIp.Size = dirSizeBytes(1)
	}
	if err := f.WriteInode(nEnt, &entIp, InUse); err != nil {
		return err
	}

	dirIp, err = f.ReadInode(nDir, InUse)
	if err != nil {
		return err
	}
	if grow {
		dirIp.Size += dirSizeBytes(1)
	}
	if isDir {
		dirIp.RefCount++ // the child's ".."
	}
	util.DPrintf(2, "AddDirEntry: %q -> inode %d in dir %d at %d", name, nEnt, nDir, idx)
	return f.WriteInode(nDir, &dirIp, InUse)
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

// removeDirEntry is the shared implementation of RemoveDirEntry and
// DetachDirEntry. Removing leaves the entry free in the dirty state and frees
// the file's clusters without cleaning; detaching cleans the entry and the
// clusters.
func (f *FileSystem) removeDirEntry(nDir common.Inum, name string, clean bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return fmt.Errorf("cannot remove %q: %w", name, common.ErrPerm)
	}
	if err := f.AccessGranted(nDir, common.X); err != nil {
		return err
	}
	if err := f.AccessGranted(nDir, common.W); err != nil {
		return fmt.Errorf("directory %d not writable: %w", nDir, common.ErrPerm)
	}
	if _, err := f.readDir(nDir); err != nil {
		return err
	}
	nEnt, idx, err := f.GetDirEntryByName(nDir, name)
	if err != nil {
		return err
	}
	entIp, err := f.ReadInode(nEnt, InUse)
	if err != nil {
		return err
	}
	isDir := entIp.Type() == common.TypeDir
	if isDir {
		if err := f.CheckDirectoryEmptiness(nEnt); err != nil {
			return err
		}
	}

	ents, err := f.readDirEntries(nDir, idx/common.DPC)
	if err != nil {
		return err
	}
	if clean {
		ents[idx%common.DPC] = layout.DirEntry{Inum: common.NullInum}
	} else {
		// Free in the dirty state: the name stays behind.
		ents[idx%common.DPC].Inum = common.NullInum
	}
	if err := f.writeDirEntries(nDir, idx/common.DPC, ents); err != nil {
		return err
	}

	entIp, err = f.ReadInode(nEnt, InUse)
	if err != nil {
		return err
	}
	entIp.RefCount-- // the entry itself
	if isDir {
		entIp.RefCount-- // its "."
	}
	if err := f.WriteInode(nEnt, &entIp, InUse); err != nil {
		return err
	}
	if isDir {
		dirIp, err := f.ReadInode(nDir, InUse)
		if err != nil {
			return err
		}
		dirIp.RefCount-- // the child's ".."
		if err := f.WriteInode(nDir, &dirIp, InUse); err != nil {
			return err
		}
	}

	if entIp.RefCount == 0 {
		op := OpFree
		if clean {
			op = OpFreeClean
		}
		if entIp.CluCount > 0 {
			if err := f.HandleFileClusters(nEnt, 0, op); err != nil {
				return err
			}
		}
		if err := f.FreeInode(nEnt); err != nil {
			return err
		}
	}
	util.DPrintf(2, "removeDirEntry: %q from dir %d (clean %v)", name, nDir, clean)
	return nil
}

// RemoveDirEntry removes the named entry. The slot becomes free in the dirty
// state and, when the last hard link drops, the file's clusters are freed
// without cleaning and the inode is freed dirty.
func (f *FileSystem) RemoveDirEntry(nDir common.Inum, name string) error {
	return f.removeDirEntry(nDir, name, false)
}

// DetachDirEntry removes the named entry, leaving the slot free in the clean
// state, and when the last hard link drops the file's clusters are freed and
// cleaned before the inode is freed.
func (f *FileSystem) DetachDirEntry(nDir common.Inum, name string) error {
	return f.removeDirEntry(nDir, name, true)
}

// RenameDirEntry changes the name of an existing entry in place.
func (f *FileSystem) RenameDirEntry(nDir common.Inum, oldName, newName string) error {
	if err := checkName(oldName); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}
	if err := f.AccessGranted(nDir, common.X); err != nil {
		return err
	}
	if err := f.AccessGranted(nDir, common.W); err != nil {
		return fmt.Errorf("directory %d not writable: %w", nDir, common.ErrPerm)
	}
	if _, err := f.readDir(nDir); err != nil {
		return err
	}
	if _, _, err := f.GetDirEntryByName(nDir, newName); err == nil {
		return fmt.Errorf("%q in directory %d: %w", newName, nDir, common.ErrExists)
	} else if !isNotFound(err) {
		return err
	}
	_, idx, err := f.GetDirEntryByName(nDir, oldName)
	if err != nil {
		return err
	}
	ents, err := f.readDirEntries(nDir, idx/common.DPC)
	if err != nil {
		return err
	}
	ents[idx%common.DPC].Name = newName
	util.DPrintf(2, "RenameDirEntry: %q -> %q in dir %d", oldName, newName, nDir)
	return f.writeDirEntries(nDir, idx/common.DPC, ents)
}

// CheckDirectoryEmptiness verifies that a directory holds nothing beyond its
// "." and ".." entries.
func (f *FileSystem) CheckDirectoryEmptiness(nDir common.Inum) error {
	ip, err := f.readDir(nDir)
	if err != nil {
		return err
	}
	total := entriesPerDir(&ip)
	for idx := uint32(0); idx < total; idx += common.DPC {
		ents, err := f.readDirEntries(nDir, idx/common.DPC)
		if err != nil {
			return err
		}
		for i := uint32(0); i < common.DPC && idx+i < total; i++ {
			switch idx + i {
			case 0:
				if ents[i].Name != "." || ents[i].IsFree() {
					return fmt.Errorf("directory %d has a bad \".\" entry: %w",
						nDir, common.ErrCorrupt)
				}
			case 1:
				if ents[i].Name != ".." || ents[i].IsFree() {
					return fmt.Errorf("directory %d has a bad \"..\" entry: %w",
						nDir, common.ErrCorrupt)
				}
			default:
				if !ents[i].IsFree() {
					return fmt.Errorf("directory %d: %w", nDir, common.ErrNotEmpty)
				}
			}
		}
	}
	return nil
}

// AttachDirectory binds an already organized directory as an entry of a base
// directory, refreshing the subsidiary's ".." and both reference counts.
func (f *FileSystem) AttachDirectory(nBase common.Inum, name string, nSub common.Inum) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := f.AccessGranted(nBase, common.X); err != nil {
		return err
	}
	if err := f.AccessGranted(nBase, common.W); err != nil {
		return fmt.Errorf("directory %d not writable: %w", nBase, common.ErrPerm)
	}
	dirIp, err := f.readDir(nBase)
	if err != nil {
		return err
	}
	subIp, err := f.readDir(nSub)
	if err != nil {
		return err
	}
	if subIp.RefCount >= common.MaxRefCount || dirIp.RefCount >= common.MaxRefCount {
		return common.ErrTooManyLinks
	}
	_, idx, err := f.GetDirEntryByName(nBase, name)
	if err == nil {
		return fmt.Errorf("%q in directory %d: %w", name, nBase, common.ErrExists)
	}
	if !isNotFound(err) {
		return err
	}

	total := entriesPerDir(&dirIp)
	grow := idx == total
	if grow && uint64(total) >= uint64(common.MaxFileClusters)*uint64(common.DPC) {
		return fmt.Errorf("directory %d: %w", nBase, common.ErrFileTooBig)
	}
	if grow {
		ents := layout.NullDirEntries()
		ents[0] = layout.DirEntry{Name: name, Inum: nSub}
		if err := f.writeDirEntries(nBase, idx/common.DPC, ents); err != nil {
			return err
		}
	} else {
		ents, err := f.readDirEntries(nBase, idx/common.DPC)
		if err != nil {
			return err
		}
		ents[idx%common.DPC] = layout.DirEntry{Name: name, Inum: nSub}
		if err := f.writeDirEntries(nBase, idx/common.DPC, ents); err != nil {
			return err
		}
	}

	// Point the subsidiary's ".." at the base.
	subEnts, err := f.readDirEntries(nSub, 0)
	if err != nil {
		return err
	}
	subEnts[1] = layout.DirEntry{Name: "..", Inum: nBase}
	if err := f.writeDirEntries(nSub, 0, subEnts); err != nil {
		return err
	}

	subIp, err = f.ReadInode(nSub, InUse)
	if err != nil {
		return err
	}
	subIp.RefCount++
	if err := f.WriteInode(nSub, &subIp, InUse); err != nil {
		return err
	}
	dirIp, err = f.ReadInode(nBase, InUse)
	if err != nil {
		return err
	}
	dirIp.RefCount++
	if grow {
		dirIp.Size += dirSizeBytes(1)
	}
	return f.WriteInode(nBase, &dirIp, InUse)
}
