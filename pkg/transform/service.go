package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuemby/odf/internal/metrics"
	"github.com/cuemby/odf/internal/obslog"
	"github.com/cuemby/odf/internal/odferr"
	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/engine"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// Service drives one derivative dataset's transform lifecycle over a
// workspace's dataset catalog and an out-of-process engine.
type Service struct {
	Repo   *dataset.Repository
	Engine engine.Client

	// HostRoot/ContainerRoot bound the bind-mount the engine's container
	// sees (spec.md §9 Design Notes); every path handed to the engine is
	// translated through engine.TranslatePath using these roots.
	HostRoot      string
	ContainerRoot string

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// TransformOutcome reports what Transform did.
type TransformOutcome int

const (
	// TransformUpToDate means no input had new data; no block was
	// appended. spec.md §8 scenario 2 names this the no-op outcome.
	TransformUpToDate TransformOutcome = iota
	// TransformExecuted means the engine ran and a new ExecuteQuery
	// block was committed.
	TransformExecuted
)

// Transform runs one full plan→execute→commit round for ref, the
// single-call convenience entrypoint behind GetNextOperation/Execute/
// Commit. It is the one instrumented with TransformDuration, since
// callers (cmd/odfd, scheduled jobs) invoke transforms as a unit.
func (s *Service) Transform(ctx context.Context, ref odf.DatasetRef) (TransformOutcome, multihash.Multihash, error) {
	timer := prometheus.NewTimer(metrics.TransformDuration)
	defer timer.ObserveDuration()

	op, err := s.GetNextOperation(ctx, ref)
	if err != nil {
		return TransformUpToDate, multihash.Multihash{}, err
	}
	if op == nil {
		return TransformUpToDate, multihash.Multihash{}, nil
	}

	resp, err := s.Execute(ctx, op)
	if err != nil {
		return TransformUpToDate, multihash.Multihash{}, err
	}

	name, ds, err := s.Repo.OpenByRef(ctx, ref)
	if err != nil {
		return TransformUpToDate, multihash.Multihash{}, fmt.Errorf("transform: reopen %s for commit: %w", ref, err)
	}

	hash, err := s.Commit(ctx, name, ds, op, resp)
	if err != nil {
		return TransformUpToDate, multihash.Multihash{}, err
	}
	return TransformExecuted, hash, nil
}

func localFS(store objectrepo.Store) (*objectrepo.LocalFS, bool) {
	fs, ok := store.(*objectrepo.LocalFS)
	return fs, ok
}

func (s *Service) hostPath(store objectrepo.Store, hash multihash.Multihash) (string, error) {
	fs, ok := localFS(store)
	if !ok {
		return "", &odferr.EngineContract{Message: "dataset's object store is not a local filesystem; the engine transport requires real paths"}
	}
	return fs.LocalPath(hash), nil
}

// GetNextOperation implements spec.md §4.5.1's planning algorithm: it
// locates the dataset's SetTransform declaration, determines how much of
// each declared input has already been consumed, walks each input's
// chain for new data since then, and resolves host-side file paths for
// everything the engine will need. It returns (nil, nil) when no input
// has produced anything new since the last round.
func (s *Service) GetNextOperation(ctx context.Context, ref odf.DatasetRef) (op *PlannedOperation, err error) {
	defer func() {
		if r := recover(); r != nil {
			op = nil
			err = &odferr.CorruptedSource{Message: fmt.Sprintf("transform planning for %s", ref), Err: fmt.Errorf("%v", r)}
		}
	}()
	return s.planNextOperation(ctx, ref)
}

func (s *Service) planNextOperation(ctx context.Context, ref odf.DatasetRef) (*PlannedOperation, error) {
	name, ds, err := s.Repo.OpenByRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("transform: open %s: %w", ref, err)
	}

	// Step 1: locate the dataset's (sole) transform declaration.
	transformDeclBlocks, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("transform: iterate chain: %w", err)
	}
	transformBlocks, err := chain.IntoVariant[odf.SetTransform](transformDeclBlocks)
	if err != nil {
		return nil, fmt.Errorf("transform: scan for SetTransform: %w", err)
	}
	if len(transformBlocks) == 0 {
		return nil, fmt.Errorf("transform: dataset %q has no SetTransform event", name)
	}
	transformDecl := transformBlocks[0].Event.(odf.SetTransform)

	// Step 2: the dataset's declared vocabulary, if any.
	var vocab odf.SetVocab
	vocabIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("transform: iterate chain: %w", err)
	}
	vocabBlocks, err := chain.IntoVariant[odf.SetVocab](vocabIter)
	if err != nil {
		return nil, fmt.Errorf("transform: scan for SetVocab: %w", err)
	}
	if len(vocabBlocks) > 0 {
		vocab = vocabBlocks[0].Event.(odf.SetVocab)
	}

	// Step 3: find the most recent ExecuteQuery block (if any), whose
	// InputSlices record how far each input was consumed last round.
	priorSlices := map[identity.DatasetID]odf.ExecuteQueryInputSlice{}
	var priorCheckpoint *odf.Checkpoint
	execIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("transform: iterate chain: %w", err)
	}
	execBlocks, err := chain.IntoVariant[odf.ExecuteQuery](execIter)
	if err != nil {
		return nil, fmt.Errorf("transform: scan for ExecuteQuery: %w", err)
	}
	if len(execBlocks) > 0 {
		last := execBlocks[0].Event.(odf.ExecuteQuery)
		for _, sl := range last.InputSlices {
			priorSlices[sl.DatasetID] = sl
		}
		priorCheckpoint = last.OutputCheckpoint
	}

	// Step 4: walk each declared input for blocks since its last
	// consumed point, resolving data files for any new data-stream block.
	var (
		plannedInputs []PlannedInput
		engineInputs  []engine.ExecuteQueryInput
		anyNew        bool
	)
	for _, in := range transformDecl.Inputs {
		inputName, inputDS, err := s.Repo.OpenByRef(ctx, in.DatasetRef)
		if err != nil {
			return nil, fmt.Errorf("transform: open input %s: %w", in.DatasetRef, err)
		}
		inputID, _, err := s.Repo.Resolve(ctx, in.DatasetRef)
		if err != nil {
			return nil, fmt.Errorf("transform: resolve input %s: %w", in.DatasetRef, err)
		}

		head, err := inputDS.Chain.GetRef(ctx, refstore.Head)
		if err != nil {
			return nil, fmt.Errorf("transform: read head of input %s: %w", inputName, err)
		}

		var tail *multihash.Multihash
		if prior, ok := priorSlices[inputID]; ok {
			end := prior.BlockInterval.End
			tail = &end
		}
		if tail != nil && head.Equal(*tail) {
			continue // nothing new from this input this round
		}
		anyNew = true

		it := inputDS.Chain.IterBlocksInterval(ctx, head, tail, false)
		dataBlocks, err := chain.FilterDataStreamBlocks(it)
		if err != nil {
			return nil, fmt.Errorf("transform: scan input %s for new data: %w", inputName, err)
		}

		dataInterval := mustContiguousInterval(inputName, dataBlocks)

		// The recorded block interval starts at the oldest block not yet
		// consumed: the block right after tail, or the input's Seed block.
		rangeBlocks, err := inputDS.Chain.IterBlocksInterval(ctx, head, tail, false).Collect()
		if err != nil {
			return nil, fmt.Errorf("transform: scan input %s block range: %w", inputName, err)
		}
		intervalStart := head
		if n := len(rangeBlocks); n >= 2 {
			intervalStart = rangeBlocks[n-2].PrevBlockHash
		}

		var dataPaths []string
		for i := len(dataBlocks) - 1; i >= 0; i-- { // oldest first
			slice := extractDataSlice(dataBlocks[i].Event)
			path, err := s.hostPath(inputDS.Data, slice.PhysicalHash)
			if err != nil {
				return nil, fmt.Errorf("transform: resolve data path for input %s: %w", inputName, err)
			}
			translated, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, path)
			if err != nil {
				return nil, fmt.Errorf("transform: translate data path for input %s: %w", inputName, err)
			}
			dataPaths = append(dataPaths, translated)
		}

		// Explicit watermarks declared on this input since it was last
		// consumed, oldest first: chain.IntoVariant returns most-recent
		// first.
		watermarkIt := inputDS.Chain.IterBlocksInterval(ctx, head, tail, false)
		watermarkBlocks, err := chain.IntoVariant[odf.SetWatermark](watermarkIt)
		if err != nil {
			return nil, fmt.Errorf("transform: scan input %s for watermarks: %w", inputName, err)
		}
		explicitWatermarks := make([]time.Time, 0, len(watermarkBlocks))
		for i := len(watermarkBlocks) - 1; i >= 0; i-- {
			explicitWatermarks = append(explicitWatermarks, watermarkBlocks[i].Event.(odf.SetWatermark).OutputWatermark)
		}

		// Schema file: the newest data slice known for this input, not
		// necessarily one that's new this round (a watermark-only round
		// still needs a schema to hand the engine).
		var schemaFile string
		if newestSlice, err := newestDataSlice(ctx, inputDS.Chain, head); err != nil {
			return nil, fmt.Errorf("transform: resolve schema file for input %s: %w", inputName, err)
		} else if newestSlice != nil {
			schemaHostPath, err := s.hostPath(inputDS.Data, newestSlice.PhysicalHash)
			if err != nil {
				return nil, fmt.Errorf("transform: resolve schema path for input %s: %w", inputName, err)
			}
			schemaFile, err = engine.TranslatePath(s.HostRoot, s.ContainerRoot, schemaHostPath)
			if err != nil {
				return nil, fmt.Errorf("transform: translate schema path for input %s: %w", inputName, err)
			}
		}

		plannedInputs = append(plannedInputs, PlannedInput{
			DatasetID:     inputID,
			BlockInterval: odf.BlockInterval{Start: intervalStart, End: head},
			DataInterval:  dataInterval,
		})
		engineInputs = append(engineInputs, engine.ExecuteQueryInput{
			DatasetID:          inputID,
			DataPaths:          dataPaths,
			SchemaFile:         schemaFile,
			ExplicitWatermarks: explicitWatermarks,
			DataInterval:       dataInterval,
		})
	}

	if !anyNew {
		return nil, nil
	}

	// Step 5: this dataset's own next output offset.
	ownIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("transform: iterate chain: %w", err)
	}
	ownDataBlocks, err := chain.FilterDataStreamBlocks(ownIter)
	if err != nil {
		return nil, fmt.Errorf("transform: scan own chain: %w", err)
	}
	var offsetBase int64
	if len(ownDataBlocks) > 0 {
		offsetBase = extractDataSlice(ownDataBlocks[0].Event).Interval.End + 1
	}

	// Step 6: stage checkpoint paths.
	checkpointsFS, ok := localFS(ds.Checkpoints)
	if !ok {
		return nil, &odferr.EngineContract{Message: "dataset's checkpoint store is not a local filesystem"}
	}
	dataFS, ok := localFS(ds.Data)
	if !ok {
		return nil, &odferr.EngineContract{Message: "dataset's data store is not a local filesystem"}
	}

	var prevCheckpointPath string
	if priorCheckpoint != nil {
		hostPath, err := s.hostPath(ds.Checkpoints, priorCheckpoint.PhysicalHash)
		if err != nil {
			return nil, fmt.Errorf("transform: resolve prior checkpoint: %w", err)
		}
		prevCheckpointPath, err = engine.TranslatePath(s.HostRoot, s.ContainerRoot, hostPath)
		if err != nil {
			return nil, fmt.Errorf("transform: translate prior checkpoint path: %w", err)
		}
	}

	newCheckpointHostPath := filepath.Join(checkpointsFS.StagingDir(), uuid.NewString())
	newCheckpointPath, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, newCheckpointHostPath)
	if err != nil {
		return nil, fmt.Errorf("transform: translate new checkpoint path: %w", err)
	}

	outDataHostPath := filepath.Join(dataFS.StagingDir(), uuid.NewString())
	outDataPath, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, outDataHostPath)
	if err != nil {
		return nil, fmt.Errorf("transform: translate output data path: %w", err)
	}

	datasetID, _, err := s.Repo.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("transform: resolve %s: %w", ref, err)
	}

	systemTime := s.now()
	req := engine.ExecuteQueryRequest{
		DatasetID:          datasetID,
		DatasetName:        name,
		SystemTime:         systemTime,
		OffsetBase:         offsetBase,
		Vocab:              vocab,
		Transform:          transformDecl,
		Inputs:             engineInputs,
		PrevCheckpointPath: prevCheckpointPath,
		NewCheckpointPath:  newCheckpointPath,
		OutDataPath:        outDataPath,
	}

	obslog.WithComponent("transform").Debug().
		Str("dataset", string(name)).
		Int("inputs", len(plannedInputs)).
		Msg("planned execute query round")

	return &PlannedOperation{
		Request:        req,
		Inputs:         plannedInputs,
		PrevCheckpoint: priorCheckpoint,
		SystemTime:     systemTime,
	}, nil
}

// Execute dispatches a planned operation to the engine and applies
// spec.md §4.5.2's response contract checks, collapsing the tagged
// response stream down to its terminal message.
func (s *Service) Execute(ctx context.Context, op *PlannedOperation) (engine.Response, error) {
	timer := prometheus.NewTimer(metrics.EngineRequestDuration)
	defer timer.ObserveDuration()

	responses, err := s.Engine.ExecuteQuery(ctx, op.Request)
	if err != nil {
		return engine.Response{}, fmt.Errorf("transform: dispatch to engine: %w", err)
	}

	var terminal engine.Response
	for resp := range responses {
		if resp.Kind == engine.ResponseProgress {
			continue
		}
		terminal = resp
	}

	switch terminal.Kind {
	case engine.ResponseSuccess:
		if terminal.DataInterval != nil {
			if terminal.DataInterval.End < terminal.DataInterval.Start {
				return engine.Response{}, &odferr.EngineContract{
					Message: fmt.Sprintf("response data_interval [%d,%d] has end before start",
						terminal.DataInterval.Start, terminal.DataInterval.End),
				}
			}
			if terminal.DataInterval.Start != op.Request.OffsetBase {
				return engine.Response{}, &odferr.EngineContract{
					Message: fmt.Sprintf("response data_interval starts at %d, requested offset_base was %d",
						terminal.DataInterval.Start, op.Request.OffsetBase),
				}
			}
			exists, err := lstatPlainFile(op.Request.OutDataPath)
			if err != nil {
				return engine.Response{}, &odferr.EngineContract{Message: fmt.Sprintf("output data file %s: %v", op.Request.OutDataPath, err)}
			}
			if !exists {
				return engine.Response{}, &odferr.EngineContract{Message: "response declares new data but output data file does not exist"}
			}
		} else {
			exists, err := lstatPlainFile(op.Request.OutDataPath)
			if err != nil {
				return engine.Response{}, &odferr.EngineContract{Message: fmt.Sprintf("output data file %s: %v", op.Request.OutDataPath, err)}
			}
			if exists {
				return engine.Response{}, &odferr.EngineContract{Message: "response declares no new data but output data file exists"}
			}
		}

		if _, err := lstatPlainFile(op.Request.NewCheckpointPath); err != nil {
			return engine.Response{}, &odferr.EngineContract{Message: fmt.Sprintf("checkpoint file %s: %v", op.Request.NewCheckpointPath, err)}
		}

		return terminal, nil
	case engine.ResponseInvalidQuery:
		return engine.Response{}, &odferr.EngineInvalidQuery{Message: terminal.Message}
	case engine.ResponseInternalError:
		return engine.Response{}, &odferr.EngineInternalError{Message: terminal.Message, Backtrace: terminal.Backtrace}
	default:
		return engine.Response{}, &odferr.EngineContract{Message: "engine closed the stream without a terminal message"}
	}
}

// Commit builds the ExecuteQuery block for a successful engine response
// and appends it to the dataset's chain (spec.md §4.5.3): physical and
// logical hashes are computed over the engine's output files, the files
// are moved into the dataset's object stores, and the resulting block is
// CAS-appended onto HEAD.
func (s *Service) Commit(ctx context.Context, name odf.DatasetName, ds *dataset.Dataset, op *PlannedOperation, resp engine.Response) (multihash.Multihash, error) {
	event, err := s.buildExecuteQueryEvent(ctx, ds, op, resp)
	if err != nil {
		return multihash.Multihash{}, err
	}

	head, err := ds.Chain.GetRef(ctx, refstore.Head)
	var seq int64
	var prevHash multihash.Multihash
	if err == nil {
		prevHash = head
		headBlock, err := ds.Chain.GetBlock(ctx, head)
		if err != nil {
			return multihash.Multihash{}, fmt.Errorf("transform: read head block: %w", err)
		}
		seq = headBlock.SequenceNumber + 1
	}

	hash, err := ds.Chain.Append(ctx, odf.MetadataBlock{
		SystemTime:     op.SystemTime,
		PrevBlockHash:  prevHash,
		SequenceNumber: seq,
		Event:          event,
	}, chain.AppendOpts{})
	if err != nil {
		return multihash.Multihash{}, fmt.Errorf("transform: commit: %w", err)
	}

	obslog.WithDatasetID(string(name)).Info().Str("block", hash.String()).Msg("committed transform result")
	return hash, nil
}

// buildExecuteQueryEvent materializes the ExecuteQuery event that Commit
// appends, without touching the chain — factored out so VerifyTransform
// can build an equivalent event from a re-execution and compare it
// against what was recorded, without a second Append.
func (s *Service) buildExecuteQueryEvent(ctx context.Context, ds *dataset.Dataset, op *PlannedOperation, resp engine.Response) (odf.ExecuteQuery, error) {
	inputSlices := make([]odf.ExecuteQueryInputSlice, 0, len(op.Inputs))
	for _, in := range op.Inputs {
		inputSlices = append(inputSlices, odf.ExecuteQueryInputSlice{
			DatasetID:     in.DatasetID,
			BlockInterval: in.BlockInterval,
			DataInterval:  in.DataInterval,
		})
	}

	event := odf.ExecuteQuery{
		InputSlices:     inputSlices,
		OutputWatermark: resp.OutputWatermark,
	}

	if resp.DataInterval != nil {
		physicalHash, size, err := GetFilePhysicalHash(op.Request.OutDataPath)
		if err != nil {
			return odf.ExecuteQuery{}, fmt.Errorf("transform: hash output data: %w", err)
		}
		logicalHash, err := GetFileLogicalHash(op.Request.OutDataPath)
		if err != nil {
			return odf.ExecuteQuery{}, fmt.Errorf("transform: logical-hash output data: %w", err)
		}
		if _, err := ds.Data.InsertFileMove(ctx, op.Request.OutDataPath, objectrepo.InsertOpts{PrecomputedHash: &physicalHash}); err != nil {
			return odf.ExecuteQuery{}, fmt.Errorf("transform: insert output data: %w", err)
		}
		event.OutputData = &odf.DataSlice{
			LogicalHash:  logicalHash,
			PhysicalHash: physicalHash,
			Interval:     *resp.DataInterval,
			Size:         size,
		}
	}

	checkpointExists, err := lstatPlainFile(op.Request.NewCheckpointPath)
	if err != nil {
		return odf.ExecuteQuery{}, fmt.Errorf("transform: new checkpoint: %w", err)
	}
	if checkpointExists {
		physicalHash, size, err := GetFilePhysicalHash(op.Request.NewCheckpointPath)
		if err != nil {
			return odf.ExecuteQuery{}, fmt.Errorf("transform: hash new checkpoint: %w", err)
		}
		if _, err := ds.Checkpoints.InsertFileMove(ctx, op.Request.NewCheckpointPath, objectrepo.InsertOpts{PrecomputedHash: &physicalHash}); err != nil {
			return odf.ExecuteQuery{}, fmt.Errorf("transform: insert new checkpoint: %w", err)
		}
		event.OutputCheckpoint = &odf.Checkpoint{PhysicalHash: physicalHash, Size: size}
	}

	return event, nil
}

// VerifyTransform re-executes the ExecuteQuery block at blockHash against
// the same input slices it originally recorded, and compares the
// reproduced result against what was committed (spec.md §4.5.4).
//
// Checkpoints are excluded from the comparison: they are hashed purely
// for storage identity, and engines are free to serialize equivalent
// internal state differently between runs (spec.md §9's Open Question
// decision on the checkpoint-hashing asymmetry).
func (s *Service) VerifyTransform(ctx context.Context, ref odf.DatasetRef, blockHash multihash.Multihash) error {
	name, ds, err := s.Repo.OpenByRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("transform: open %s: %w", ref, err)
	}

	block, err := ds.Chain.GetBlock(ctx, blockHash)
	if err != nil {
		return fmt.Errorf("transform: read block %s: %w", blockHash, err)
	}
	recorded, ok := block.Event.(odf.ExecuteQuery)
	if !ok {
		return &odferr.EngineContract{Message: fmt.Sprintf("block %s is not an ExecuteQuery block", blockHash)}
	}

	op, err := s.replan(ctx, ref, name, ds, recorded)
	if err != nil {
		return fmt.Errorf("transform: replan for verification: %w", err)
	}

	resp, err := s.Execute(ctx, op)
	if err != nil {
		return fmt.Errorf("transform: re-execution failed: %w", err)
	}

	rebuilt, err := s.buildExecuteQueryEvent(ctx, ds, op, resp)
	if err != nil {
		return fmt.Errorf("transform: build reproduced block: %w", err)
	}

	if err := CompareBlocks(recorded, rebuilt); err != nil {
		metrics.VerificationOutcomesTotal.WithLabelValues("not_reproducible").Inc()
		return &odferr.VerificationError{
			ExpectedBlockHash: blockHash.String(),
			Detail:            err.Error(),
		}
	}
	metrics.VerificationOutcomesTotal.WithLabelValues("valid").Inc()
	return nil
}

// replan rebuilds a PlannedOperation pinned to a previously-recorded
// ExecuteQuery's exact input slices, instead of whatever is newly
// available at HEAD — VerifyTransform must re-run precisely what ran
// before, not "catch up" to the latest data.
func (s *Service) replan(ctx context.Context, ref odf.DatasetRef, name odf.DatasetName, ds *dataset.Dataset, recorded odf.ExecuteQuery) (*PlannedOperation, error) {
	transformIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, err
	}
	transformBlocks, err := chain.IntoVariant[odf.SetTransform](transformIter)
	if err != nil || len(transformBlocks) == 0 {
		return nil, fmt.Errorf("transform: dataset %q has no SetTransform event", name)
	}
	transformDecl := transformBlocks[0].Event.(odf.SetTransform)

	var vocab odf.SetVocab
	vocabIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, err
	}
	vocabBlocks, err := chain.IntoVariant[odf.SetVocab](vocabIter)
	if err != nil {
		return nil, err
	}
	if len(vocabBlocks) > 0 {
		vocab = vocabBlocks[0].Event.(odf.SetVocab)
	}

	plannedInputs := make([]PlannedInput, 0, len(recorded.InputSlices))
	engineInputs := make([]engine.ExecuteQueryInput, 0, len(recorded.InputSlices))
	for _, sl := range recorded.InputSlices {
		inputDS, inputName, err := s.openByID(ctx, sl.DatasetID)
		if err != nil {
			return nil, err
		}
		it := inputDS.Chain.IterBlocksInterval(ctx, sl.BlockInterval.End, &sl.BlockInterval.Start, true)
		dataBlocks, err := chain.FilterDataStreamBlocks(it)
		if err != nil {
			return nil, fmt.Errorf("transform: re-scan input %s: %w", inputName, err)
		}

		var dataPaths []string
		for i := len(dataBlocks) - 1; i >= 0; i-- {
			slice := extractDataSlice(dataBlocks[i].Event)
			path, err := s.hostPath(inputDS.Data, slice.PhysicalHash)
			if err != nil {
				return nil, err
			}
			translated, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, path)
			if err != nil {
				return nil, err
			}
			dataPaths = append(dataPaths, translated)
		}

		plannedInputs = append(plannedInputs, PlannedInput{
			DatasetID:     sl.DatasetID,
			BlockInterval: sl.BlockInterval,
			DataInterval:  sl.DataInterval,
		})
		engineInputs = append(engineInputs, engine.ExecuteQueryInput{
			DatasetID:    sl.DatasetID,
			DataPaths:    dataPaths,
			DataInterval: sl.DataInterval,
		})
	}

	checkpointsFS, ok := localFS(ds.Checkpoints)
	if !ok {
		return nil, &odferr.EngineContract{Message: "dataset's checkpoint store is not a local filesystem"}
	}
	dataFS, ok := localFS(ds.Data)
	if !ok {
		return nil, &odferr.EngineContract{Message: "dataset's data store is not a local filesystem"}
	}

	newCheckpointHostPath := filepath.Join(checkpointsFS.StagingDir(), uuid.NewString())
	newCheckpointPath, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, newCheckpointHostPath)
	if err != nil {
		return nil, err
	}
	outDataHostPath := filepath.Join(dataFS.StagingDir(), uuid.NewString())
	outDataPath, err := engine.TranslatePath(s.HostRoot, s.ContainerRoot, outDataHostPath)
	if err != nil {
		return nil, err
	}

	datasetID, _, err := s.Repo.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	offsetBase := int64(0)
	if recorded.OutputData != nil {
		offsetBase = recorded.OutputData.Interval.Start
	}

	return &PlannedOperation{
		Request: engine.ExecuteQueryRequest{
			DatasetID:         datasetID,
			DatasetName:       name,
			SystemTime:        s.now(),
			OffsetBase:        offsetBase,
			Vocab:             vocab,
			Transform:         transformDecl,
			Inputs:            engineInputs,
			NewCheckpointPath: newCheckpointPath,
			OutDataPath:       outDataPath,
		},
		Inputs:     plannedInputs,
		SystemTime: s.now(),
	}, nil
}

func (s *Service) openByID(ctx context.Context, id identity.DatasetID) (*dataset.Dataset, odf.DatasetName, error) {
	name, ds, err := s.Repo.OpenByRef(ctx, odf.DatasetRef{Kind: odf.DatasetRefKindID, ID: id})
	if err != nil {
		return nil, "", fmt.Errorf("transform: open input %s: %w", id, err)
	}
	return ds, name, nil
}

// CompareBlocks reports whether two ExecuteQuery events describe the
// same reproducible result, ignoring their checkpoints (see
// VerifyTransform's doc comment for why).
func CompareBlocks(a, b odf.ExecuteQuery) error {
	if len(a.InputSlices) != len(b.InputSlices) {
		return fmt.Errorf("input slice count differs: %d vs %d", len(a.InputSlices), len(b.InputSlices))
	}
	for i := range a.InputSlices {
		sa, sb := a.InputSlices[i], b.InputSlices[i]
		if !sa.DatasetID.Equal(sb.DatasetID) {
			return fmt.Errorf("input %d dataset id differs", i)
		}
		if !sa.BlockInterval.Start.Equal(sb.BlockInterval.Start) || !sa.BlockInterval.End.Equal(sb.BlockInterval.End) {
			return fmt.Errorf("input %d block interval differs", i)
		}
		if (sa.DataInterval == nil) != (sb.DataInterval == nil) {
			return fmt.Errorf("input %d data interval presence differs", i)
		}
		if sa.DataInterval != nil && *sa.DataInterval != *sb.DataInterval {
			return fmt.Errorf("input %d data interval differs", i)
		}
	}

	if (a.OutputData == nil) != (b.OutputData == nil) {
		return fmt.Errorf("output data presence differs")
	}
	if a.OutputData != nil {
		if !a.OutputData.LogicalHash.Equal(b.OutputData.LogicalHash) {
			return fmt.Errorf("logical hash differs: %s vs %s", a.OutputData.LogicalHash, b.OutputData.LogicalHash)
		}
		if a.OutputData.Interval != b.OutputData.Interval {
			return fmt.Errorf("output interval differs")
		}
	}

	if (a.OutputWatermark == nil) != (b.OutputWatermark == nil) {
		return fmt.Errorf("output watermark presence differs")
	}
	if a.OutputWatermark != nil && !a.OutputWatermark.Equal(*b.OutputWatermark) {
		return fmt.Errorf("output watermark differs: %s vs %s", a.OutputWatermark, b.OutputWatermark)
	}

	return nil
}

func tailOrZero(tail *multihash.Multihash) multihash.Multihash {
	if tail == nil {
		return multihash.Multihash{}
	}
	return *tail
}

func extractDataSlice(event odf.MetadataEvent) *odf.DataSlice {
	switch e := event.(type) {
	case odf.AddData:
		return e.OutputData
	case odf.ExecuteQuery:
		return e.OutputData
	}
	return nil
}

// newestDataSlice walks c backward from head and returns the most recent
// data slice recorded on it, regardless of whether it falls inside any
// particular round's new interval. Returns nil if the chain has never
// carried data.
func newestDataSlice(ctx context.Context, c *chain.Chain, head multihash.Multihash) (*odf.DataSlice, error) {
	it := c.IterBlocksInterval(ctx, head, nil, false)
	block, ok, err := chain.TryFirst(it, func(b odf.MetadataBlock) bool {
		return extractDataSlice(b.Event) != nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return extractDataSlice(block.Event), nil
}

// lstatPlainFile reports whether path exists as a plain file. Unlike
// os.Stat, it does not follow symlinks: spec.md §4.5.2 treats a
// symlinked engine output as a contract violation, not as the file it
// points to.
func lstatPlainFile(path string) (exists bool, err error) {
	info, statErr := os.Lstat(path)
	if os.IsNotExist(statErr) {
		return false, nil
	}
	if statErr != nil {
		return false, statErr
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return false, fmt.Errorf("%s is a symlink", path)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

// mustContiguousInterval folds a set of data-stream blocks (most-recent
// first, as returned by FilterDataStreamBlocks) into the single offset
// interval they jointly cover, panicking if they are not contiguous.
// GetNextOperation recovers this panic into ErrCorruptedSource; it is
// never allowed to propagate past this package.
func mustContiguousInterval(datasetName odf.DatasetName, blocks []odf.MetadataBlock) *odf.OffsetInterval {
	if len(blocks) == 0 {
		return nil
	}
	// blocks is most-recent-first; read oldest to newest.
	var interval odf.OffsetInterval
	for i := len(blocks) - 1; i >= 0; i-- {
		slice := extractDataSlice(blocks[i].Event)
		if slice == nil {
			continue
		}
		if i == len(blocks)-1 {
			interval = slice.Interval
			continue
		}
		if !interval.PrecedesContiguously(slice.Interval) {
			panic(fmt.Sprintf("input %s: offset interval [%d,%d] does not contiguously follow [%d,%d]",
				datasetName, slice.Interval.Start, slice.Interval.End, interval.Start, interval.End))
		}
		interval = slice.Interval
	}
	return &interval
}
