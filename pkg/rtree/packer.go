package rtree

import (
	"fmt"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
)

// NodeWriter persists index nodes and meta blocks for a builder.
type NodeWriter interface {
	WriteIndexNode(contents []byte) (block.Handle, error)
	WriteMetaBlock(name string, contents []byte) error
}

// Builder is the contract shared by the key-ordered and curve-ordered
// index builders.
//
// The table writer calls OnKeyAdded for every row, AddIndexEntry for every
// finished data block and then Finish until it reports done. Finish writes
// one node per call.
type Builder interface {
	OnKeyAdded(key, value []byte) error
	AddIndexEntry(lastKey, firstKeyInNext []byte, h block.Handle) error
	RequestCut()
	Finish(w NodeWriter) (done bool, err error)
	Format() Format
	RootHandle() block.Handle
	Height() int
	NumNodes() int
}

type packState uint8

const (
	stateBuilding packState = iota
	stateDraining
	stateDone
)

type node struct {
	contents []byte
	box      geometry.Box
}

// packer slices an ordered entry stream into nodes and packs the nodes
// level by level until one root remains.
type packer struct {
	format Format
	state  packState

	cur          *block.Builder
	policy       block.FlushPolicy
	curBox       geometry.Box
	cutRequested bool
	keyBuf       []byte

	// next collects closed nodes of the level under construction; pending
	// holds closed nodes of the level below that are not written yet.
	next    []node
	pending []node

	height int
	nodes  int
	root   block.Handle
}

func newPacker(format Format, policy block.PolicyFactory) *packer {
	cur := block.NewBuilder()
	return &packer{
		format: format,
		cur:    cur,
		policy: policy(cur),
	}
}

// add appends an entry to the node under construction, closing that node
// first when a cut was requested or the policy says so. The entry box is
// folded in after the cut so a closed node never encloses an entry it does
// not hold.
func (p *packer) add(box geometry.Box, value []byte) {
	p.addEntry(box, value, true)
}

// addLast appends the final entry of the stream. The policy is not asked, so
// the entry joins the open node unless a cut was requested.
func (p *packer) addLast(box geometry.Box, value []byte) {
	p.addEntry(box, value, false)
}

func (p *packer) addEntry(box geometry.Box, value []byte, consult bool) {
	p.keyBuf = p.format.AppendBox(p.keyBuf[:0], box)
	if !p.cur.Empty() && (p.cutRequested || (consult && p.policy.ShouldCut(p.keyBuf, value))) {
		p.closeNode()
	}
	p.cutRequested = false
	p.cur.Add(p.keyBuf, value)
	p.format.expand(&p.curBox, box)
}

func (p *packer) closeNode() {
	if p.cur.Empty() {
		return
	}
	p.next = append(p.next, node{contents: p.cur.Finish(), box: p.curBox})
	p.curBox.Clear()
}

func (p *packer) checkBuilding() error {
	if p.state != stateBuilding {
		return dberrors.ErrFinished
	}
	return nil
}

// finish writes one node. It returns done once the root node and the
// height meta block are written.
func (p *packer) finish(w NodeWriter) (bool, error) {
	switch p.state {
	case stateDone:
		return true, nil
	case stateBuilding:
		p.closeNode()
		p.pending, p.next = p.next, nil
		p.state = stateDraining
		p.height = 1
		if len(p.pending) == 0 {
			return p.writeRoot(w, block.NewBuilder().Finish())
		}
	}

	if len(p.pending) == 0 {
		p.height++
		p.closeNode()
		if len(p.next) == 1 {
			return p.writeRoot(w, p.next[0].contents)
		}
		p.pending, p.next = p.next, nil
	}

	n := p.pending[0]
	h, err := w.WriteIndexNode(n.contents)
	if err != nil {
		return false, fmt.Errorf("write level %d index node: %w", p.height, err)
	}
	p.nodes++
	p.pending[0] = node{}
	p.pending = p.pending[1:]
	p.add(n.box, h.Encode())
	return false, nil
}

func (p *packer) writeRoot(w NodeWriter, contents []byte) (bool, error) {
	h, err := w.WriteIndexNode(contents)
	if err != nil {
		return false, fmt.Errorf("write index root: %w", err)
	}
	if err := w.WriteMetaBlock(p.format.MetaBlockName(), EncodeHeight(p.height)); err != nil {
		return false, fmt.Errorf("write index height: %w", err)
	}
	p.nodes++
	p.root = h
	p.next = nil
	p.state = stateDone
	return true, nil
}
