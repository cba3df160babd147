// Package chain implements the MetadataChain of spec.md §4.3: a
// hash-chained, append-only sequence of metadata blocks, backed by a
// block ObjectRepository and a reference store pointing at HEAD.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/odf/pkg/blockcodec"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// SetRefOpts controls SetRef's compare-and-swap semantics.
type SetRefOpts struct {
	// CheckRefIs, when non-nil, requires the ref's current value to
	// equal *CheckRefIs before the update is applied. A CheckRefIs
	// pointing at a zero Multihash means "must not currently exist".
	CheckRefIs *multihash.Multihash
	// ValidateBlockPresent requires the target hash to already exist in
	// the block store before the ref is updated.
	ValidateBlockPresent bool
}

// AppendOpts controls Append.
type AppendOpts struct {
	// ExpectedHash, when set, must match the computed hash of the
	// candidate block or Append fails with InvalidBlock{HashMismatch}.
	ExpectedHash *multihash.Multihash
}

// Chain couples a block object repository with a HEAD reference store,
// as spec.md §4.3 specifies. One Chain instance serializes all writers
// to its own HEAD through mu; cross-process coordination is explicitly
// out of scope (spec.md's single-writer-per-dataset model).
type Chain struct {
	mu     sync.Mutex
	Blocks objectrepo.Store
	Refs   *refstore.Store

	kindResolved bool
	kind         odf.DatasetKind
}

// New constructs a Chain over the given block store and reference store.
func New(blocks objectrepo.Store, refs *refstore.Store) *Chain {
	return &Chain{Blocks: blocks, Refs: refs}
}

// GetRef resolves a reference to its current block hash.
func (c *Chain) GetRef(ctx context.Context, ref string) (multihash.Multihash, error) {
	h, err := c.Refs.Get(ctx, ref)
	if err != nil {
		var notFound *refstore.ErrRefNotFound
		if errors.As(err, &notFound) {
			return multihash.Multihash{}, err
		}
		return multihash.Multihash{}, &Access{Op: "get_ref", Err: err}
	}
	return h, nil
}

// SetRef updates ref to hash, honoring opts' compare-and-swap checks.
func (c *Chain) SetRef(ctx context.Context, ref string, hash multihash.Multihash, opts SetRefOpts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRefLocked(ctx, ref, hash, opts)
}

func (c *Chain) setRefLocked(ctx context.Context, ref string, hash multihash.Multihash, opts SetRefOpts) error {
	if opts.ValidateBlockPresent {
		ok, err := c.Blocks.Contains(ctx, hash)
		if err != nil {
			return &Access{Op: "validate_block_present", Err: err}
		}
		if !ok {
			return &Internal{Message: fmt.Sprintf("set_ref: target block %s not present", hash)}
		}
	}

	if opts.CheckRefIs != nil {
		current, err := c.GetRef(ctx, ref)
		var notFound *refstore.ErrRefNotFound
		switch {
		case err == nil:
			if opts.CheckRefIs.IsZero() || !current.Equal(*opts.CheckRefIs) {
				return &RefCASFailed{Ref: ref, Expected: opts.CheckRefIs, Actual: &current}
			}
		case errors.As(err, &notFound):
			if !opts.CheckRefIs.IsZero() {
				return &RefCASFailed{Ref: ref, Expected: opts.CheckRefIs, Actual: nil}
			}
		default:
			return &Access{Op: "check_ref_is", Err: err}
		}
	}

	if err := c.Refs.Set(ctx, ref, hash); err != nil {
		return &Access{Op: "set_ref", Err: err}
	}
	return nil
}

// GetBlock fetches and decodes the block stored under hash.
func (c *Chain) GetBlock(ctx context.Context, hash multihash.Multihash) (odf.MetadataBlock, error) {
	raw, err := c.Blocks.GetBytes(ctx, hash)
	if err != nil {
		var notFound *objectrepo.ErrNotFound
		if errors.As(err, &notFound) {
			return odf.MetadataBlock{}, &Internal{Message: fmt.Sprintf("block %s not found", hash)}
		}
		return odf.MetadataBlock{}, &Access{Op: "get_block", Err: err}
	}
	block, err := blockcodec.Decode(raw)
	if err != nil {
		return odf.MetadataBlock{}, &Internal{Message: fmt.Sprintf("decode block %s", hash), Err: err}
	}
	return block, nil
}

// Append validates, serializes, stores, and links a new block onto
// HEAD, implementing the 6-step algorithm of spec.md §4.3.
func (c *Chain) Append(ctx context.Context, block odf.MetadataBlock, opts AppendOpts) (multihash.Multihash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Step 1: resolve current HEAD (absent for the first block).
	head, headErr := c.GetRef(ctx, refstore.Head)
	var headNotFound *refstore.ErrRefNotFound
	hasHead := headErr == nil
	if headErr != nil && !errors.As(headErr, &headNotFound) {
		return multihash.Multihash{}, headErr
	}

	var prior odf.MetadataBlock
	if hasHead {
		var err error
		prior, err = c.GetBlock(ctx, head)
		if err != nil {
			return multihash.Multihash{}, err
		}
	}

	// Step 2: validate structural and ordering invariants.
	if err := c.validateAppend(ctx, block, hasHead, head, prior); err != nil {
		return multihash.Multihash{}, err
	}

	// Step 3+4: serialize and hash.
	encoded, err := blockcodec.Encode(block)
	if err != nil {
		return multihash.Multihash{}, &Internal{Message: "encode block", Err: err}
	}
	hash := multihash.SumDefault(encoded)
	if opts.ExpectedHash != nil && !opts.ExpectedHash.Equal(hash) {
		return multihash.Multihash{}, invalidBlock(ReasonHashMismatch,
			"expected %s, computed %s", *opts.ExpectedHash, hash)
	}

	// Step 5: insert into the block store.
	if _, err := c.Blocks.InsertBytes(ctx, encoded, objectrepo.InsertOpts{PrecomputedHash: &hash}); err != nil {
		return multihash.Multihash{}, &Access{Op: "insert_block", Err: err}
	}

	// Step 6: CAS-update HEAD.
	var checkIs *multihash.Multihash
	if hasHead {
		checkIs = &head
	} else {
		zero := multihash.Multihash{}
		checkIs = &zero
	}
	if err := c.setRefLocked(ctx, refstore.Head, hash, SetRefOpts{CheckRefIs: checkIs}); err != nil {
		return multihash.Multihash{}, err
	}

	if !c.kindResolved {
		if seed, ok := block.Event.(odf.Seed); ok {
			c.kind = seed.Kind
			c.kindResolved = true
		}
	}

	return hash, nil
}

func (c *Chain) validateAppend(ctx context.Context, block odf.MetadataBlock, hasHead bool, head multihash.Multihash, prior odf.MetadataBlock) error {
	if hasHead {
		if !block.PrevBlockHash.Equal(head) {
			return invalidBlock(ReasonPrevBlockNotFound,
				"block.prev_block_hash %s does not match current HEAD %s", block.PrevBlockHash, head)
		}
		if block.SequenceNumber != prior.SequenceNumber+1 {
			return invalidBlock(ReasonSequenceMismatch,
				"expected sequence_number %d, got %d", prior.SequenceNumber+1, block.SequenceNumber)
		}
		if block.SystemTime.Before(prior.SystemTime) {
			return invalidBlock(ReasonSystemTimeNonMonotonic,
				"system_time %s precedes prior block's %s", block.SystemTime, prior.SystemTime)
		}
	} else {
		if !block.PrevBlockHash.IsZero() {
			return invalidBlock(ReasonPrevBlockNotFound, "genesis block must have a zero prev_block_hash")
		}
		if block.SequenceNumber != 0 {
			return invalidBlock(ReasonSequenceMismatch, "genesis block must have sequence_number 0")
		}
	}

	if err := c.validateEventLegality(ctx, block, hasHead, prior); err != nil {
		return err
	}
	return nil
}

func (c *Chain) validateEventLegality(ctx context.Context, block odf.MetadataBlock, hasHead bool, prior odf.MetadataBlock) error {
	_, isSeed := block.Event.(odf.Seed)
	if isSeed && hasHead {
		return invalidBlock(ReasonEventVariantIllegal, "Seed may only be the first block in a chain")
	}
	if !isSeed && !hasHead {
		return invalidBlock(ReasonEventVariantIllegal, "first block in a chain must be Seed")
	}

	kind, err := c.resolveKind(ctx, hasHead, block)
	if err != nil {
		return err
	}

	if block.Event.RootOnly() && kind != odf.DatasetKindRoot {
		return invalidBlock(ReasonEventVariantIllegal, "%T is only legal in a root dataset's chain", block.Event)
	}
	if block.Event.DerivativeOnly() && kind != odf.DatasetKindDerivative {
		return invalidBlock(ReasonEventVariantIllegal, "%T is only legal in a derivative dataset's chain", block.Event)
	}

	if _, ok := block.Event.(odf.SetTransform); ok && hasHead {
		hasPrior, err := c.hasSetTransform(ctx)
		if err != nil {
			return err
		}
		if hasPrior {
			return invalidBlock(ReasonEventVariantIllegal, "transform migration not supported")
		}
	}

	if err := c.validateWatermarkMonotonic(block, hasHead, prior); err != nil {
		return err
	}
	if err := c.validateOffsetsContiguous(ctx, block, hasHead, prior); err != nil {
		return err
	}
	return nil
}

// resolveKind returns the dataset's kind, as declared by its Seed event.
// For the genesis append itself the kind comes from the candidate block.
func (c *Chain) resolveKind(ctx context.Context, hasHead bool, candidate odf.MetadataBlock) (odf.DatasetKind, error) {
	if seed, ok := candidate.Event.(odf.Seed); ok {
		return seed.Kind, nil
	}
	if c.kindResolved {
		return c.kind, nil
	}
	if !hasHead {
		return "", &Internal{Message: "cannot resolve dataset kind: chain is empty and candidate is not Seed"}
	}

	seedBlock, err := c.findSeed(ctx)
	if err != nil {
		return "", err
	}
	c.kind = seedBlock.Kind
	c.kindResolved = true
	return c.kind, nil
}

func (c *Chain) findSeed(ctx context.Context) (odf.Seed, error) {
	blocks, err := c.IterBlocks(ctx)
	if err != nil {
		return odf.Seed{}, err
	}
	seed, ok, err := TryFirst(blocks, func(b odf.MetadataBlock) bool { return b.IsGenesis() })
	if err != nil {
		return odf.Seed{}, err
	}
	if !ok {
		return odf.Seed{}, &Internal{Message: "chain has no Seed block"}
	}
	return seed.Event.(odf.Seed), nil
}

// hasSetTransform reports whether the chain already has a SetTransform
// event, enforcing spec.md §9's "simultaneous SetTransform evolutions"
// Open Question decision: a second SetTransform is rejected outright
// rather than treated as a migration.
func (c *Chain) hasSetTransform(ctx context.Context) (bool, error) {
	it, err := c.IterBlocks(ctx)
	if err != nil {
		return false, err
	}
	matches, err := IntoVariant[odf.SetTransform](it)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func extractWatermark(event odf.MetadataEvent) *time.Time {
	switch e := event.(type) {
	case odf.SetWatermark:
		t := e.OutputWatermark
		return &t
	case odf.AddData:
		return e.OutputWatermark
	case odf.ExecuteQuery:
		return e.OutputWatermark
	}
	return nil
}

func (c *Chain) validateWatermarkMonotonic(block odf.MetadataBlock, hasHead bool, prior odf.MetadataBlock) error {
	if !hasHead {
		return nil
	}
	next := extractWatermark(block.Event)
	if next == nil {
		return nil
	}
	priorWatermark := extractWatermark(prior.Event)
	if priorWatermark == nil {
		return nil
	}
	if next.Before(*priorWatermark) {
		return invalidBlock(ReasonWatermarkNonMonotonic,
			"watermark %s precedes prior watermark %s", next, priorWatermark)
	}
	return nil
}

func extractOutputInterval(event odf.MetadataEvent) *odf.OffsetInterval {
	switch e := event.(type) {
	case odf.AddData:
		if e.OutputData != nil {
			return &e.OutputData.Interval
		}
	case odf.ExecuteQuery:
		if e.OutputData != nil {
			return &e.OutputData.Interval
		}
	}
	return nil
}

func (c *Chain) validateOffsetsContiguous(ctx context.Context, block odf.MetadataBlock, hasHead bool, prior odf.MetadataBlock) error {
	next := extractOutputInterval(block.Event)
	if next == nil {
		return nil
	}
	if !hasHead {
		return nil
	}

	lastInterval, err := c.lastDataInterval(ctx, prior)
	if err != nil {
		return err
	}
	if lastInterval == nil {
		if next.Start != 0 {
			return invalidBlock(ReasonOffsetsNotContiguous, "first data slice must start at offset 0, got %d", next.Start)
		}
		return nil
	}
	if !lastInterval.PrecedesContiguously(*next) {
		return invalidBlock(ReasonOffsetsNotContiguous,
			"offset interval [%d,%d] does not contiguously follow [%d,%d]",
			next.Start, next.End, lastInterval.Start, lastInterval.End)
	}
	return nil
}

// lastDataInterval walks backward from prior (inclusive) to find the
// most recent block carrying output data.
func (c *Chain) lastDataInterval(ctx context.Context, prior odf.MetadataBlock) (*odf.OffsetInterval, error) {
	if iv := extractOutputInterval(prior.Event); iv != nil {
		return iv, nil
	}
	cur := prior
	for !cur.IsGenesis() {
		next, err := c.GetBlock(ctx, cur.PrevBlockHash)
		if err != nil {
			return nil, err
		}
		if iv := extractOutputInterval(next.Event); iv != nil {
			return iv, nil
		}
		cur = next
	}
	return nil, nil
}
