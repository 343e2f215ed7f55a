package fs

import (
	"github.com/clusterfs/clusterfs/common"
)

// ReadFileCluster reads the contents of the cluster at file index clustInd of
// the file owned by nInode. An unallocated index yields a zero-filled buffer.
func (f *FileSystem) ReadFileCluster(nInode common.Inum, clustInd uint32) ([]byte, error) {
	c, err := f.HandleFileCluster(nInode, clustInd, OpGet)
	if err != nil {
		return nil, err
	}
	if c == common.NullCnum {
		return make([]byte, common.ClusterBodySize), nil
	}
	return f.readBody(c)
}

// WriteFileCluster writes the contents of the cluster at file index clustInd,
// allocating the cluster (and any indirection clusters on the way) when the
// index is still unmapped.
func (f *FileSystem) WriteFileCluster(nInode common.Inum, clustInd uint32, body []byte) error {
	c, err := f.HandleFileCluster(nInode, clustInd, OpGet)
	if err != nil {
		return err
	}
	if c == common.NullCnum {
		c, err = f.HandleFileCluster(nInode, clustInd, OpAlloc)
		if err != nil {
			return err
		}
	}
	return f.writeBody(c, body)
}
