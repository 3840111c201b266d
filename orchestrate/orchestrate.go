// Package orchestrate implements the streaming per-read pipeline (C6):
// read -> chunk/map worker pool -> in-order reassembly -> PAF output, plus
// the Sequence-Until early-stop controller. The fan-out/fan-in shape is
// ported from cmd/bio-fusion/main.go's processFASTQ (reqCh/resCh +
// sync.WaitGroup); the worker pool itself uses golang.org/x/sync/errgroup,
// as fusion/cmd/fusion_e2e_test.go does for its own concurrent test harness.
package orchestrate

import (
	"context"
	"runtime"

	"github.com/CMU-SAFARI/rawalign/index"
	"github.com/CMU-SAFARI/rawalign/mapping"
	"github.com/CMU-SAFARI/rawalign/paf"
	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/CMU-SAFARI/rawalign/revent"
	"github.com/CMU-SAFARI/rawalign/signal"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// job is one read handed from the read stage to a mapping worker.
type job struct {
	seq  uint64
	read signal.Read
}

// result is one mapped read's outcome, tagged with its input sequence
// number so the passthrough stage can reassemble input order.
type result struct {
	seq     uint64
	record  paf.Record
	refID   uint32
	mapped  bool
	fragLen uint32
}

func chunked(values []float32, chunkSize int) [][]float32 {
	if chunkSize <= 0 {
		return [][]float32{values}
	}
	var chunks [][]float32
	for len(values) > 0 {
		n := chunkSize
		if n > len(values) {
			n = len(values)
		}
		chunks = append(chunks, values[:n])
		values = values[n:]
	}
	return chunks
}

// mapRead runs one read's full chunk loop (C5) to completion.
func mapRead(ctx context.Context, read signal.Read, ed revent.Detector, idx index.Index, opt rconf.MapOpts) result {
	s := mapping.NewState(read.ID, read.Name)
	for _, chunk := range chunked(read.Values, int(opt.ChunkSize)) {
		if s.Advance(ctx, chunk, ed, idx, opt) {
			break
		}
	}
	rec := s.Finalize(idx, opt)

	var refID uint32
	if len(s.Chains) > 0 {
		refID = s.Chains[0].ReferenceID
	}
	return result{record: rec, refID: refID, mapped: rec.Mapped, fragLen: uint32(len(s.Events))}
}

// readAll streams reads from src into jobCh, stopping early if ctx is
// canceled (by a Sequence-Until stop decision or an upstream error). A
// signal file that fails to open or decode is logged and skipped; the
// remaining files are still read.
func readAll(ctx context.Context, src signal.Source, jobCh chan<- job) error {
	var seq uint64
	for {
		read, ok, err := src.Next(ctx)
		if err != nil {
			log.Printf("orchestrate: skipping signal file: %v", err)
			continue
		}
		if !ok {
			return nil
		}
		select {
		case jobCh <- job{seq: seq, read: read}:
			seq++
		case <-ctx.Done():
			return nil
		}
	}
}

// Run drives one mapping pass: it reads every signal from src, maps each
// with up to opt.Parallelism concurrent workers, reassembles results in
// input order, optionally runs the Sequence-Until stop test on each mapped
// read in that order, and writes a PAF record per read to w.
func Run(ctx context.Context, src signal.Source, idx index.Index, ed revent.Detector, opt rconf.MapOpts, w *paf.Writer) error {
	parallelism := opt.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobCh := make(chan job, parallelism*4)
	resCh := make(chan result, parallelism*4)

	var g errgroup.Group
	for i := 0; i < parallelism; i++ {
		g.Go(func() error {
			for j := range jobCh {
				r := mapRead(runCtx, j.read, ed, idx, opt)
				r.seq = j.seq
				select {
				case resCh <- r:
				case <-runCtx.Done():
					return runCtx.Err()
				}
			}
			return nil
		})
	}

	var su *SequenceUntil
	if opt.SequenceUntil {
		su = NewSequenceUntil(idx.NumSequences(), opt)
	}

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- reassembleAndWrite(resCh, w, su, cancel)
	}()

	readErr := readAll(runCtx, src, jobCh)
	close(jobCh)
	workerErr := g.Wait()
	close(resCh)
	writeErr := <-writeErrCh

	if readErr != nil {
		return readErr
	}
	if workerErr != nil && workerErr != context.Canceled {
		return workerErr
	}
	return writeErr
}

// reassembleAndWrite drains resCh, buffering out-of-order completions
// until the next expected sequence number is available, then writes that
// read's PAF record and (if su is non-nil) feeds Sequence-Until, canceling
// the run when it signals a stop.
func reassembleAndWrite(resCh <-chan result, w *paf.Writer, su *SequenceUntil, cancel context.CancelFunc) error {
	next := uint64(0)
	pending := make(map[uint64]result)
	for r := range resCh {
		pending[r.seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := w.Write(ready.record); err != nil {
				return err
			}
			if su != nil {
				if su.Observe(ready.refID, ready.mapped, ready.fragLen) {
					log.Printf("sequence-until: stopping after %d reads", next)
					cancel()
				}
			}
		}
	}
	return w.Flush()
}
