// Command rawalign-map maps nanopore raw-current reads against a
// pre-built reference index without basecalling, emitting a PAF-like
// record per read. Flag wiring and bootstrap mirror cmd/bio-fusion and
// cmd/bio-pileup's main.go; the --performance-benchmark mode ports
// check_dtw.cpp's performance_benchmark.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/CMU-SAFARI/rawalign/dtw"
	"github.com/CMU-SAFARI/rawalign/index"
	"github.com/CMU-SAFARI/rawalign/orchestrate"
	"github.com/CMU-SAFARI/rawalign/paf"
	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/CMU-SAFARI/rawalign/revent"
	"github.com/CMU-SAFARI/rawalign/signal"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rawalign-map [flags] <index-path> <signal-dir>

Maps every raw-current read found under <signal-dir> against the index
built at <index-path>, writing PAF-like records to -output (default stdout).

`)
	flag.PrintDefaults()
}

func generateRandomVector(n int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(r.NormFloat64())
	}
	return out
}

// runPerformanceBenchmark ports check_dtw.cpp's performance_benchmark: time
// each DTW kernel variant on the same pair of random vectors.
func runPerformanceBenchmark(iterations, aLen, bLen int, bandRadiusFrac float64) {
	a := generateRandomVector(aLen, 42)
	b := generateRandomVector(bLen, 43)
	bandRadius := int(float64(aLen) * bandRadiusFrac)

	variants := []struct {
		name string
		run  func() float32
	}{
		{"global", func() float32 { return dtw.Global(a, b, false) }},
		{"global_slantedbanded", func() float32 { return dtw.GlobalSlantedBanded(a, b, bandRadius, false) }},
		{"global_slantedbanded_antidiagonalwise", func() float32 { return dtw.GlobalSlantedBandedAntidiag(a, b, bandRadius, false) }},
		{"global_diagonalbanded", func() float32 { return dtw.GlobalDiagonalBanded(a, b, bandRadius, false) }},
	}
	for _, v := range variants {
		start := time.Now()
		var result float32
		for i := 0; i < iterations; i++ {
			result = v.run()
		}
		elapsed := time.Since(start)
		fmt.Printf("%-40s %v total, %v/iter (last result %v)\n", v.name, elapsed, elapsed/time.Duration(iterations), result)
	}
}

func main() {
	flag.Usage = usage

	opt := rconf.DefaultMapOpts()
	outputPath := flag.String("output", "-", "Output PAF path. \"-\" writes to stdout.")
	zstdOutput := flag.Bool("zstd-output", false, "Compress -output with zstd.")

	flag.Float64Var(&opt.BPPerSec, "bp-per-sec", opt.BPPerSec, "Assumed translocation speed, bases/sec.")
	flag.Float64Var(&opt.SampleRate, "sample-rate", opt.SampleRate, "Raw signal sample rate, Hz.")
	uintVar(&opt.ChunkSize, "chunk-size", opt.ChunkSize, "Signal chunk size, samples.")
	uintVar(&opt.MinEvents, "min-events", opt.MinEvents, "Minimum accumulated events before seeding.")
	flag.IntVar(&opt.MaxNumChunk, "max-num-chunk", opt.MaxNumChunk, "Max chunks consumed before giving up on a read.")

	uintVar(&opt.MaxGapLength, "max-gap-length", opt.MaxGapLength, "Chaining: max |query gap - target gap|.")
	uintVar(&opt.MaxTargetGapLength, "max-target-gap-length", opt.MaxTargetGapLength, "Chaining: max target gap before breaking.")
	uintVar(&opt.ChainingBandLength, "chaining-band-length", opt.ChainingBandLength, "Chaining: predecessor window width.")
	flag.IntVar(&opt.MaxNumSkips, "max-num-skips", opt.MaxNumSkips, "Chaining: skip-counter heuristic bound.")
	uintVar(&opt.MinNumAnchors, "min-num-anchors", opt.MinNumAnchors, "Chaining: minimum anchors per reported chain.")
	flag.IntVar(&opt.NumBestChains, "num-best-chains", opt.NumBestChains, "Chaining: best chains kept per bucket.")
	floatVar(&opt.MinChainingScore, "min-chaining-score", opt.MinChainingScore, "Chaining: minimum score to keep a chain.")
	flag.BoolVar(&opt.DisableChainingScoreFiltering, "disable-chainingscore-filtering", opt.DisableChainingScoreFiltering, "Disable the best/2 end-anchor score filter.")

	uintVar(&opt.MinChainAnchor, "min-chain-anchor", opt.MinChainAnchor, "High-confidence predicate: single-chain anchor floor.")
	uintVar(&opt.MinChainAnchorOut, "min-chain-anchor-out", opt.MinChainAnchorOut, "Finalize-time relaxed single-chain anchor floor.")
	floatVar(&opt.MinBestmapRatio, "min-bestmap-ratio", opt.MinBestmapRatio, "High-confidence predicate: best/second ratio floor.")
	floatVar(&opt.MinBestmapRatioOut, "min-bestmap-ratio-out", opt.MinBestmapRatioOut, "Finalize-time relaxed best/second ratio floor.")
	floatVar(&opt.MinMeanmapRatio, "min-meanmap-ratio", opt.MinMeanmapRatio, "High-confidence predicate: best/mean ratio floor.")
	floatVar(&opt.MinMeanmapRatioOut, "min-meanmap-ratio-out", opt.MinMeanmapRatioOut, "Finalize-time relaxed best/mean ratio floor.")

	flag.BoolVar(&opt.EvaluateChains, "dtw-evaluate-chains", opt.EvaluateChains, "Rescore candidate chains with DTW.")
	borderConstraint := flag.String("dtw-border-constraint", string(opt.DTWBorderConstraint), "DTW border policy: global|sparse|local.")
	fillMethod := flag.String("dtw-fill-method", string(opt.DTWFillMethod), "DTW fill method: full|banded.")
	floatVar(&opt.DTWBandRadiusFrac, "dtw-band-radius-frac", opt.DTWBandRadiusFrac, "DTW band radius as a fraction of query length.")
	floatVar(&opt.DTWMatchBonus, "dtw-match-bonus", opt.DTWMatchBonus, "DTW alignment_score match bonus per event.")
	floatVar(&opt.DTWMinScore, "dtw-min-score", opt.DTWMinScore, "Minimum alignment_score to keep a chain after DTW.")
	flag.BoolVar(&opt.DTWOutputCIGAR, "dtw-output-cigar", opt.DTWOutputCIGAR, "Stored in the options only; no aln:s tag is written.")
	flag.BoolVar(&opt.DTWLogScores, "dtw-log-scores", opt.DTWLogScores, "Stored in the options only; DTW scores are not logged.")

	flag.BoolVar(&opt.SequenceUntil, "sequence-until", opt.SequenceUntil, "Stop the run early once per-reference abundance stabilizes.")
	floatVar(&opt.TThreshold, "t-threshold", opt.TThreshold, "Sequence-Until: stability threshold.")
	flag.IntVar(&opt.TNSamples, "tn-samples", opt.TNSamples, "Sequence-Until: abundance samples compared.")
	flag.IntVar(&opt.TTestFreq, "ttest-freq", opt.TTestFreq, "Sequence-Until: mapped reads between checks.")
	flag.IntVar(&opt.TMinReads, "tmin-reads", opt.TMinReads, "Sequence-Until: mapped reads before the first check.")
	flag.Int64Var(&opt.MiniBatchSize, "mini-batch-size", opt.MiniBatchSize, "Stored in the options only; reads are not batched by size.")
	flag.IntVar(&opt.Parallelism, "parallelism", opt.Parallelism, "Mapping worker count. 0 means runtime.NumCPU().")

	uintVar(&opt.WindowLength1, "window-length1", opt.WindowLength1, "Event detector: short window length.")
	uintVar(&opt.WindowLength2, "window-length2", opt.WindowLength2, "Event detector: long window length.")
	floatVar(&opt.Threshold1, "threshold1", opt.Threshold1, "Event detector: t-statistic threshold.")
	floatVar(&opt.Threshold2, "threshold2", opt.Threshold2, "Event detector: secondary t-statistic threshold.")
	floatVar(&opt.PeakHeight, "peak-height", opt.PeakHeight, "Event detector: peak height scale.")

	flag.IntVar(&opt.SketchW, "w", opt.SketchW, "Sketch: minimizer window width (must match the index build).")
	flag.IntVar(&opt.SketchE, "e", opt.SketchE, "Sketch: event concatenation depth (must match the index build).")
	flag.IntVar(&opt.SketchQ, "q", opt.SketchQ, "Sketch: quantization levels (must match the index build).")
	flag.IntVar(&opt.SketchLQ, "lq", opt.SketchLQ, "Sketch: bits per quantized value (must match the index build).")
	flag.IntVar(&opt.SketchK, "k", opt.SketchK, "Sketch: quantized events per hash window (must match the index build).")

	flag.BoolVar(&opt.OutputChains, "output-chains", opt.OutputChains, "Stored in the options only; one record per read is written regardless.")
	flag.BoolVar(&opt.LogAnchors, "log-anchors", opt.LogAnchors, "Stored in the options only; no anchors:s tag is written.")
	flag.BoolVar(&opt.LogNumAnchors, "log-num-anchors", opt.LogNumAnchors, "Stored in the options only; anchor counts are not logged.")

	perfBenchmark := flag.Bool("performance-benchmark", false, "Run the DTW kernel performance benchmark instead of mapping.")

	flag.Parse()

	if *perfBenchmark {
		if flag.NArg() != 4 {
			log.Fatal("--performance-benchmark requires <iterations> <a_len> <b_len> <band_radius_frac>")
		}
		iterations, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			log.Fatalf("invalid iterations: %v", err)
		}
		aLen, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("invalid a_len: %v", err)
		}
		bLen, err := strconv.Atoi(flag.Arg(2))
		if err != nil {
			log.Fatalf("invalid b_len: %v", err)
		}
		bandFrac, err := strconv.ParseFloat(flag.Arg(3), 64)
		if err != nil {
			log.Fatalf("invalid band_radius_frac: %v", err)
		}
		runPerformanceBenchmark(iterations, aLen, bLen, bandFrac)
		return
	}

	opt.DTWBorderConstraint = rconf.DTWBorderConstraint(*borderConstraint)
	opt.DTWFillMethod = rconf.DTWFillMethod(*fillMethod)
	if err := opt.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	indexPath, signalDir := flag.Arg(0), flag.Arg(1)

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	idx := loadIndex(ctx, indexPath)
	defer func() {
		if err := idx.Close(); err != nil {
			log.Printf("closing index: %v", err)
		}
	}()
	index.Stat(idx, rconf.IndexOpts{SketchK: opt.SketchK, SketchE: opt.SketchE, SketchLQ: opt.SketchLQ})

	src := &signal.DirSource{}
	if err := src.Open(ctx, signalDir); err != nil {
		log.Fatalf("opening %v: %v", signalDir, err)
	}
	defer func() { _ = src.Close(ctx) }()

	w, closeFile := openOutput(ctx, *outputPath, *zstdOutput)
	defer func() {
		if err := w.Close(ctx); err != nil {
			log.Fatalf("closing output: %v", err)
		}
		if err := closeFile(); err != nil {
			log.Fatalf("closing %v: %v", *outputPath, err)
		}
	}()

	if err := orchestrate.Run(ctx, src, idx, revent.TTestDetector{}, opt, w); err != nil {
		log.Fatalf("mapping: %v", err)
	}
	log.Printf("All done")
}

func loadIndex(ctx context.Context, path string) *index.MemIndex {
	f, err := file.Open(ctx, path)
	if err != nil {
		log.Fatalf("opening index %v: %v", path, err)
	}
	defer func() { _ = f.Close(ctx) }()
	idx, err := index.ReadMemIndex(f.Reader(ctx))
	if err != nil {
		log.Fatalf("reading index %v: %v", path, err)
	}
	return idx
}

// openOutput returns the PAF writer plus a closer for the underlying
// file.File (a no-op when writing to stdout).
func openOutput(ctx context.Context, path string, zstdCompress bool) (*paf.Writer, func() error) {
	noop := func() error { return nil }
	if path == "-" {
		if zstdCompress {
			w, err := paf.NewZstdWriter(os.Stdout)
			if err != nil {
				log.Fatalf("creating zstd writer: %v", err)
			}
			return w, noop
		}
		return paf.NewWriter(os.Stdout), noop
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		log.Fatalf("creating %v: %v", path, err)
	}
	closeFile := func() error { return out.Close(ctx) }
	if zstdCompress {
		zw, err := paf.NewZstdWriter(out.Writer(ctx))
		if err != nil {
			log.Fatalf("creating zstd writer: %v", err)
		}
		return zw, closeFile
	}
	return paf.NewWriter(out.Writer(ctx)), closeFile
}

// uintVar registers a uint32 flag via the string-backed flag.Func, since
// the standard flag package has no native uint32 variant.
func uintVar(p *uint32, name string, value uint32, usage string) {
	*p = value
	flag.Func(name, fmt.Sprintf("%s (default %d)", usage, value), func(s string) error {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*p = uint32(n)
		return nil
	})
}

// floatVar registers a float32 flag via the string-backed flag.Func, since
// the standard flag package has no native float32 variant.
func floatVar(p *float32, name string, value float32, usage string) {
	*p = value
	flag.Func(name, fmt.Sprintf("%s (default %v)", usage, value), func(s string) error {
		n, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		*p = float32(n)
		return nil
	})
}
