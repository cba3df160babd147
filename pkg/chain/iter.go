package chain

import (
	"context"
	"errors"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// BlockIterator yields blocks lazily, walking backward from HEAD via
// prev_block_hash. It is restartable (calling IterBlocks again starts a
// fresh walk) and finite (every chain terminates at its Seed block).
type BlockIterator struct {
	chain         *Chain
	ctx           context.Context
	next          multihash.Multihash
	tail          *multihash.Multihash
	inclusiveTail bool
	done          bool
}

// IterBlocks returns an iterator over the whole chain, from HEAD back to
// (and including) the Seed block.
func (c *Chain) IterBlocks(ctx context.Context) (*BlockIterator, error) {
	return c.IterBlocksFrom(ctx, refstore.Head)
}

// IterBlocksFrom iterates starting from the block named by ref instead
// of HEAD.
func (c *Chain) IterBlocksFrom(ctx context.Context, ref string) (*BlockIterator, error) {
	head, err := c.GetRef(ctx, ref)
	if err != nil {
		var notFound *refstore.ErrRefNotFound
		if errors.As(err, &notFound) {
			return &BlockIterator{chain: c, ctx: ctx, done: true}, nil
		}
		return nil, err
	}
	return &BlockIterator{chain: c, ctx: ctx, next: head}, nil
}

// IterBlocksInterval iterates from head backward down to (and, if
// inclusiveTail, including) tail. A nil tail walks to the Seed block.
func (c *Chain) IterBlocksInterval(ctx context.Context, head multihash.Multihash, tail *multihash.Multihash, inclusiveTail bool) *BlockIterator {
	return &BlockIterator{chain: c, ctx: ctx, next: head, tail: tail, inclusiveTail: inclusiveTail}
}

// Next returns the next block in the walk, or ok=false once the walk is
// exhausted.
func (it *BlockIterator) Next() (odf.MetadataBlock, bool, error) {
	if it.done || it.next.IsZero() {
		return odf.MetadataBlock{}, false, nil
	}
	if it.tail != nil && !it.inclusiveTail && it.next.Equal(*it.tail) {
		it.done = true
		return odf.MetadataBlock{}, false, nil
	}

	block, err := it.chain.GetBlock(it.ctx, it.next)
	if err != nil {
		it.done = true
		return odf.MetadataBlock{}, false, err
	}

	atTail := it.tail != nil && it.next.Equal(*it.tail)
	if block.IsGenesis() || atTail {
		it.done = true
	} else {
		it.next = block.PrevBlockHash
	}
	return block, true, nil
}

// Collect drains the iterator into a slice, most-recent-first.
func (it *BlockIterator) Collect() ([]odf.MetadataBlock, error) {
	var out []odf.MetadataBlock
	for {
		block, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, block)
	}
}

// FilterDataStreamBlocks narrows an iterator to blocks that carry output
// data (AddData or ExecuteQuery events with a non-nil OutputData).
func FilterDataStreamBlocks(it *BlockIterator) ([]odf.MetadataBlock, error) {
	all, err := it.Collect()
	if err != nil {
		return nil, err
	}
	var out []odf.MetadataBlock
	for _, b := range all {
		if extractOutputInterval(b.Event) != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// IntoVariant narrows an iterator's blocks to those whose event is of
// type V, returning the matching blocks most-recent-first; callers
// type-assert each block's Event to V themselves.
func IntoVariant[V odf.MetadataEvent](it *BlockIterator) ([]odf.MetadataBlock, error) {
	all, err := it.Collect()
	if err != nil {
		return nil, err
	}
	var out []odf.MetadataBlock
	for _, b := range all {
		if _, ok := b.Event.(V); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// TryFirst consumes it until pred matches a block or the walk is
// exhausted.
func TryFirst(it *BlockIterator, pred func(odf.MetadataBlock) bool) (odf.MetadataBlock, bool, error) {
	for {
		block, ok, err := it.Next()
		if err != nil {
			return odf.MetadataBlock{}, false, err
		}
		if !ok {
			return odf.MetadataBlock{}, false, nil
		}
		if pred(block) {
			return block, true, nil
		}
	}
}
