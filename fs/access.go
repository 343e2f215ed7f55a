package fs

import (
	"fmt"
	"os"

	"github.com/clusterfs/clusterfs/common"
)

// AccessGranted checks the permission mask of an in-use inode against a
// requested operation, a bitwise combination of common.R, common.W and
// common.X. Root is always granted reading and writing, and granted
// execution iff any of the three execute bits is set.
func (f *FileSystem) AccessGranted(n common.Inum, op uint32) error {
	if op < 1 || op > 7 {
		return fmt.Errorf("bad access operation %#x: %w", op, common.ErrInval)
	}
	ip, err := f.ReadInode(n, InUse)
	if err != nil {
		return err
	}

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())

	if uid == 0 {
		if op&common.X != 0 {
			anyExec := common.PermOwnerX | common.PermGroupX | common.PermOtherX
			if ip.Mode&anyExec == 0 {
				return fmt.Errorf("inode %d: %w", n, common.ErrAccess)
			}
		}
		return nil
	}

	// Other, then group, then owner.
	if ip.Mode&op == op {
		return nil
	}
	if (ip.Mode>>3)&op == op && gid == ip.Group {
		return nil
	}
	if (ip.Mode>>6)&op == op && uid == ip.Owner {
		return nil
	}
	return fmt.Errorf("inode %d: %w", n, common.ErrAccess)
}
