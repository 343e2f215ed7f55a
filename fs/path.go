package fs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/clusterfs/clusterfs/common"
)

// GetDirEntryByPath resolves an absolute path to an inode number. Every
// directory on the way must be searchable by the caller. At most one symbolic
// link is followed during the whole resolution.
func (f *FileSystem) GetDirEntryByPath(path string) (common.Inum, error) {
	if path == "" || path[0] != '/' {
		return common.NullInum, fmt.Errorf("path %q: %w", path, common.ErrRelPath)
	}
	return f.resolvePath(path, 0)
}

func (f *FileSystem) resolvePath(path string, links int) (common.Inum, error) {
	cur := common.RootInum
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for i, comp := range parts {
		if err := f.AccessGranted(cur, common.X); err != nil {
			return common.NullInum, err
		}
		n, _, err := f.GetDirEntryByName(cur, comp)
		if err != nil {
			return common.NullInum, err
		}
		ip, err := f.ReadInode(n, InUse)
		if err != nil {
			return common.NullInum, err
		}
		if ip.Type() == common.TypeSymlink {
			if links >= 1 {
				return common.NullInum, fmt.Errorf("path %q: %w", path, common.ErrLoop)
			}
			body, err := f.ReadFileCluster(n, 0)
			if err != nil {
				return common.NullInum, err
			}
			target := body
			if j := bytes.IndexByte(target, 0); j >= 0 {
				target = target[:j]
			}
			if len(target) == 0 || target[0] != '/' {
				return common.NullInum, fmt.Errorf("symlink %q: %w", target, common.ErrRelPath)
			}
			rest := strings.Join(parts[i+1:], "/")
			next := string(target)
			if rest != "" {
				next = next + "/" + rest
			}
			return f.resolvePath(next, links+1)
		}
		cur = n
	}
	return cur, nil
}
