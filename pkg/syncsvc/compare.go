package syncsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// Outcome classifies the relationship between two chains' HEADs,
// spec.md §4.6.1's four-way CompareChains result.
type Outcome int

const (
	// Equal means both HEADs are the same block.
	Equal Outcome = iota
	// LhsAhead means the left chain's HEAD is reachable by walking
	// forward from the right chain's HEAD: left has strictly more
	// blocks, all of which right already shares a common prefix with.
	LhsAhead
	// LhsBehind means the mirror of LhsAhead: right is ahead of left.
	LhsBehind
	// Divergence means neither HEAD is an ancestor of the other.
	Divergence
)

func (o Outcome) String() string {
	switch o {
	case Equal:
		return "equal"
	case LhsAhead:
		return "lhs_ahead"
	case LhsBehind:
		return "lhs_behind"
	case Divergence:
		return "divergence"
	default:
		return "unknown"
	}
}

// HashedBlock pairs a decoded block with its own content hash, which
// chain.BlockIterator does not expose but CompareChains's walk needs in
// order to test two chains' blocks for equality by hash.
type HashedBlock struct {
	Hash  multihash.Multihash
	Block odf.MetadataBlock
}

// ChainComparison is CompareChains's result.
type ChainComparison struct {
	Outcome Outcome
	// LhsAheadBlocks holds the blocks unique to the left chain,
	// oldest-first, when Outcome is LhsAhead. This is exactly the set
	// Service.Sync needs to transfer.
	LhsAheadBlocks []HashedBlock
	// UncommonLhs and UncommonRhs count each side's blocks that are not
	// shared with the other, populated for LhsBehind and Divergence.
	UncommonLhs int
	UncommonRhs int
}

// ChainComparisonListener receives progress callbacks as CompareChains
// walks two chains backward from their HEADs. Sync's own Listener
// doesn't need this level of detail; it exists for callers (tests,
// future CLI progress bars) that want to watch the comparison itself.
type ChainComparisonListener interface {
	OnBlockCompared(lhsHeight, rhsHeight int)
}

// NullChainComparisonListener discards every callback.
type NullChainComparisonListener struct{}

func (NullChainComparisonListener) OnBlockCompared(int, int) {}

// walker steps backward through one chain from a starting hash,
// yielding each block's own hash alongside its decoded contents. It
// exists because chain.BlockIterator (built for GetNextOperation's
// single-chain backward scans) never surfaces a block's own hash, which
// a same-hash equality test across two different chains requires.
type walker struct {
	c    *chain.Chain
	next multihash.Multihash
	done bool
}

func newWalker(c *chain.Chain, head multihash.Multihash) *walker {
	if head.IsZero() {
		return &walker{c: c, done: true}
	}
	return &walker{c: c, next: head}
}

// step returns the next block walking backward, or ok=false once the
// walk has stepped past the genesis block.
func (w *walker) step(ctx context.Context) (hash multihash.Multihash, block odf.MetadataBlock, ok bool, err error) {
	if w.done {
		return multihash.Multihash{}, odf.MetadataBlock{}, false, nil
	}
	hash = w.next
	block, err = w.c.GetBlock(ctx, hash)
	if err != nil {
		return multihash.Multihash{}, odf.MetadataBlock{}, false, fmt.Errorf("syncsvc: read block %s: %w", hash, err)
	}
	if block.PrevBlockHash.IsZero() {
		w.done = true
	} else {
		w.next = block.PrevBlockHash
	}
	return hash, block, true, nil
}

// CompareChains implements spec.md §4.6.1: it walks lhs and rhs
// backward from their respective HEADs in lockstep, block by block,
// until it finds a shared hash (a common ancestor) or one side runs
// out, classifying the result into one of the four Outcomes.
//
// Because both chains are append-only and share a linear history up to
// some point, a single hash match ends the walk: no block appended
// before a shared ancestor can differ between the two sides.
func CompareChains(ctx context.Context, lhs, rhs *chain.Chain, listener ChainComparisonListener) (ChainComparison, error) {
	if listener == nil {
		listener = NullChainComparisonListener{}
	}

	lhsHead, lhsErr := headOrZero(ctx, lhs)
	if lhsErr != nil {
		return ChainComparison{}, lhsErr
	}
	rhsHead, rhsErr := headOrZero(ctx, rhs)
	if rhsErr != nil {
		return ChainComparison{}, rhsErr
	}

	if lhsHead.Equal(rhsHead) {
		return ChainComparison{Outcome: Equal}, nil
	}

	// An empty chain has no history to reconcile against: it is
	// trivially a prefix of any other chain, so this is never a
	// divergence, even though the backward walk below would otherwise
	// run both sides to genesis without ever finding a common hash.
	if rhsHead.IsZero() {
		blocks, err := collectAllHashed(ctx, lhs, lhsHead)
		if err != nil {
			return ChainComparison{}, err
		}
		return ChainComparison{Outcome: LhsAhead, LhsAheadBlocks: blocks}, nil
	}
	if lhsHead.IsZero() {
		blocks, err := collectAllHashed(ctx, rhs, rhsHead)
		if err != nil {
			return ChainComparison{}, err
		}
		return ChainComparison{Outcome: LhsBehind, UncommonRhs: len(blocks)}, nil
	}

	lw := newWalker(lhs, lhsHead)
	rw := newWalker(rhs, rhsHead)

	var lhsBlocks []HashedBlock
	seenRhs := map[string]int{}
	seenLhs := map[string]int{}
	rhsHeight, lhsHeight := 0, 0

	for {
		listener.OnBlockCompared(lhsHeight, rhsHeight)

		lhsDone := false
		if hash, block, ok, err := lw.step(ctx); err != nil {
			return ChainComparison{}, err
		} else if ok {
			if idx, found := seenRhs[hash.String()]; found {
				return buildComparison(lhsBlocks, lhsHeight, idx), nil
			}
			seenLhs[hash.String()] = lhsHeight
			lhsBlocks = append(lhsBlocks, HashedBlock{Hash: hash, Block: block})
			lhsHeight++
		} else {
			lhsDone = true
		}

		rhsDone := false
		if hash, _, ok, err := rw.step(ctx); err != nil {
			return ChainComparison{}, err
		} else if ok {
			if idx, found := seenLhs[hash.String()]; found {
				return buildComparison(lhsBlocks, idx, rhsHeight), nil
			}
			seenRhs[hash.String()] = rhsHeight
			rhsHeight++
		} else {
			rhsDone = true
		}

		if lhsDone && rhsDone {
			// Both walks reached genesis without a shared hash: two
			// entirely unrelated chains. Treat as full divergence.
			return ChainComparison{
				Outcome:     Divergence,
				UncommonLhs: lhsHeight,
				UncommonRhs: rhsHeight,
			}, nil
		}
	}
}

// buildComparison classifies the walk's result once a common ancestor
// has been found at lhsCommon blocks into lhs and rhsCommon blocks into
// rhs (both counts are "how many blocks were walked before the match").
func buildComparison(lhsBlocks []HashedBlock, lhsCommon, rhsCommon int) ChainComparison {
	switch {
	case rhsCommon == 0 && lhsCommon > 0:
		// rhs's HEAD is the shared ancestor: lhs has lhsCommon blocks
		// rhs doesn't, oldest-first.
		ahead := make([]HashedBlock, lhsCommon)
		copy(ahead, lhsBlocks[:lhsCommon])
		reverse(ahead)
		return ChainComparison{Outcome: LhsAhead, LhsAheadBlocks: ahead}
	case lhsCommon == 0 && rhsCommon > 0:
		return ChainComparison{Outcome: LhsBehind, UncommonRhs: rhsCommon}
	default:
		return ChainComparison{Outcome: Divergence, UncommonLhs: lhsCommon, UncommonRhs: rhsCommon}
	}
}

func reverse(blocks []HashedBlock) {
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
}

func headOrZero(ctx context.Context, c *chain.Chain) (multihash.Multihash, error) {
	head, err := c.GetRef(ctx, refstore.Head)
	if err != nil {
		var notFound *refstore.ErrRefNotFound
		if errors.As(err, &notFound) {
			return multihash.Multihash{}, nil
		}
		return multihash.Multihash{}, fmt.Errorf("syncsvc: read head: %w", err)
	}
	return head, nil
}

// collectAllHashed walks a chain from head all the way to genesis,
// returning every block oldest-first. Used by Sync's forced-divergence
// path, which replays the entire source chain as the new destination
// truth rather than trying to reconcile a common ancestor.
func collectAllHashed(ctx context.Context, c *chain.Chain, head multihash.Multihash) ([]HashedBlock, error) {
	w := newWalker(c, head)
	var out []HashedBlock
	for {
		hash, block, ok, err := w.step(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, HashedBlock{Hash: hash, Block: block})
	}
	reverse(out)
	return out, nil
}
