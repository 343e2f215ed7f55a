package layout

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/clusterfs/clusterfs/common"
)

// DirEntry is one 64-byte directory entry: a NUL-terminated name of at most
// MaxName bytes followed by the inode number. A free entry has a null inode
// number; a clean free entry also has an all-zero name.
type DirEntry struct {
	Name string
	Inum common.Inum
}

// IsFree reports whether the entry slot is unoccupied.
func (de *DirEntry) IsFree() bool {
	return de.Inum == common.NullInum
}

// DecodeDirEntries reads a cluster body as a table of DPC directory entries.
func DecodeDirEntries(body []byte) []DirEntry {
	dec := marshal.NewDec(body)
	ents := make([]DirEntry, common.DPC)
	for i := range ents {
		name := dec.GetBytes(uint64(common.MaxName + 1))
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}
		ents[i] = DirEntry{Name: string(name), Inum: dec.GetInt32()}
	}
	return ents
}

// EncodeDirEntries lays an entry table out as a cluster body.
func EncodeDirEntries(ents []DirEntry) []byte {
	enc := marshal.NewEnc(uint64(common.ClusterBodySize))
	for i := range ents {
		name := make([]byte, common.MaxName+1)
		copy(name, ents[i].Name)
		name[common.MaxName] = 0
		enc.PutBytes(name)
		enc.PutInt32(ents[i].Inum)
	}
	return enc.Finish()
}

// NullDirEntries builds a fully clean entry table.
func NullDirEntries() []DirEntry {
	ents := make([]DirEntry, common.DPC)
	for i := range ents {
		ents[i].Inum = common.NullInum
	}
	return ents
}
