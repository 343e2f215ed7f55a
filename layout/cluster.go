package layout

import (
	"github.com/tchajed/marshal"

	"github.com/clusterfs/clusterfs/common"
)

// ClusterHead is the 64-byte header at the start of every data cluster.
//
// Prev and Next thread the cluster through the on-disk free list; both are
// null while the cluster is allocated or staged in a cache. Stat names the
// owning inode while the cluster is allocated and stays behind after a free,
// marking the cluster dirty until it is lazily cleaned.
type ClusterHead struct {
	Prev common.Cnum
	Next common.Cnum
	Stat common.Inum
}

// Encode lays the header out over the first ClusterHdrSize bytes of a block.
func (h *ClusterHead) Encode() []byte {
	enc := marshal.NewEnc(uint64(common.ClusterHdrSize))
	enc.PutInt32(h.Prev)
	enc.PutInt32(h.Next)
	enc.PutInt32(h.Stat)
	return enc.Finish()
}

// DecodeClusterHead reads a header from the first block of a cluster.
func DecodeClusterHead(b []byte) ClusterHead {
	dec := marshal.NewDec(b[:common.ClusterHdrSize])
	var h ClusterHead
	h.Prev = dec.GetInt32()
	h.Next = dec.GetInt32()
	h.Stat = dec.GetInt32()
	return h
}

// InFreeList reports whether the header links place the cluster on the
// on-disk free list.
func (h *ClusterHead) InFreeList() bool {
	return h.Prev != common.NullCnum || h.Next != common.NullCnum
}

// DecodeRefs reads a cluster body as a reference table of RPC entries.
func DecodeRefs(body []byte) []common.Cnum {
	dec := marshal.NewDec(body)
	refs := make([]common.Cnum, common.RPC)
	for i := range refs {
		refs[i] = dec.GetInt32()
	}
	return refs
}

// EncodeRefs lays a reference table out as a cluster body.
func EncodeRefs(refs []common.Cnum) []byte {
	enc := marshal.NewEnc(uint64(common.ClusterBodySize))
	for _, r := range refs {
		enc.PutInt32(r)
	}
	return enc.Finish()
}

// NullRefs builds a reference table with every entry null.
func NullRefs() []common.Cnum {
	refs := make([]common.Cnum, common.RPC)
	for i := range refs {
		refs[i] = common.NullCnum
	}
	return refs
}

// FirstUsedRef gives the index of the first non-null entry, or -1 when the
// table is empty. Collapse decisions and occupancy scans share this.
func FirstUsedRef(refs []common.Cnum) int {
	for i, r := range refs {
		if r != common.NullCnum {
			return i
		}
	}
	return -1
}
