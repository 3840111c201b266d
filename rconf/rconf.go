// Package rconf holds the mapping and index-build configuration structs,
// their defaults, and validation, grounded on fusion.Opts/DefaultOpts'
// struct-of-documented-fields idiom and ported field for field from the
// source program's ri_mapopt_init.
package rconf

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// DTWBorderConstraint selects how eval bounds the DTW rescoring rectangle.
type DTWBorderConstraint string

const (
	BorderGlobal DTWBorderConstraint = "global"
	BorderSparse DTWBorderConstraint = "sparse"
	BorderLocal  DTWBorderConstraint = "local"
)

// DTWFillMethod selects which DTW kernel eval dispatches to.
type DTWFillMethod string

const (
	FillFull   DTWFillMethod = "full"
	FillBanded DTWFillMethod = "banded"
)

// MapOpts carries every mapping-time option in spec.md §6's Configuration
// table. Field names and defaults mirror ri_mapopt_t/ri_mapopt_init in
// roptions.h/roptions.c.
type MapOpts struct {
	// Read pipeline (C5) / event-conversion timing.
	BPPerSec   float64
	SampleRate float64
	ChunkSize  uint32
	MinEvents  uint32
	MaxNumChunk int
	StepSize   uint32

	// Chaining (C3).
	MaxGapLength         uint32
	MaxTargetGapLength   uint32
	ChainingBandLength   uint32
	MaxNumSkips          int
	MinNumAnchors        uint32
	NumBestChains        int
	MinChainingScore     float32
	DisableChainingScoreFiltering bool

	// High-confidence mapped predicate (C5 step 5) and its looser
	// finalize-time counterparts (SUPPLEMENTED: *_out fields from
	// roptions.h, not named by spec.md's distillation).
	MinChainAnchor       uint32
	MinChainAnchorOut    uint32
	MinBestmapRatio      float32
	MinBestmapRatioOut   float32
	MinMeanmapRatio      float32
	MinMeanmapRatioOut   float32

	// DTW rescoring (C4).
	EvaluateChains     bool
	DTWBorderConstraint DTWBorderConstraint
	DTWFillMethod       DTWFillMethod
	DTWBandRadiusFrac   float32
	DTWMatchBonus       float32
	DTWMinScore         float32
	DTWOutputCIGAR      bool
	DTWLogScores        bool

	// Orchestrator (C6) / Sequence-Until.
	SequenceUntil bool
	TThreshold    float32
	TNSamples     int
	TTestFreq     int
	TMinReads     int
	MiniBatchSize int64
	Parallelism   int

	// Event detection defaults passed to revent.Params.
	WindowLength1 uint32
	WindowLength2 uint32
	Threshold1    float32
	Threshold2    float32
	PeakHeight    float32

	// Sketching (C2). Read-side mirror of IndexOpts' identically named
	// fields: a read's sketch must use the same {w,e,q,lq,k} the Index
	// was built with, or seeding silently yields zero hits.
	SketchW  int
	SketchE  int
	SketchQ  int
	SketchLQ int
	SketchK  int

	// Debug/output (SUPPLEMENTED from rmap.cpp's gen_chains/anchors_to_string).
	OutputChains  bool
	LogAnchors    bool
	LogNumAnchors bool
}

// IndexOpts configures a reference index build: bucket count and the
// sketching parameters every mapped read must also use.
type IndexOpts struct {
	BucketBits uint
	SketchW    int
	SketchE    int
	SketchQ    int
	SketchLQ   int
	SketchK    int
}

// DefaultIndexOpts mirrors ri_idx_init's default {w,e,q,lq,k,b} block.
func DefaultIndexOpts() IndexOpts {
	return IndexOpts{
		BucketBits: 16,
		SketchW:    3,
		SketchE:    1,
		SketchQ:    16,
		SketchLQ:   4,
		SketchK:    5,
	}
}

// DefaultMapOpts returns the exact numeric defaults of ri_mapopt_init.
func DefaultMapOpts() MapOpts {
	return MapOpts{
		BPPerSec:   450,
		SampleRate: 4000,
		ChunkSize:  4000,
		MinEvents:  50,
		MaxNumChunk: 30,
		StepSize:   1,

		MaxGapLength:       2000,
		MaxTargetGapLength: 5000,
		ChainingBandLength: 5000,
		MaxNumSkips:        25,
		MinNumAnchors:      2,
		NumBestChains:      3,
		MinChainingScore:   10.0,

		MinChainAnchor:     2,
		MinChainAnchorOut:  2,
		MinBestmapRatio:    1.2,
		MinBestmapRatioOut: 1.2,
		MinMeanmapRatio:    5,
		MinMeanmapRatioOut: 5,

		EvaluateChains:      false,
		DTWBorderConstraint: BorderSparse,
		DTWFillMethod:       FillBanded,
		DTWBandRadiusFrac:   0.10,
		DTWMatchBonus:       0.4,
		DTWMinScore:         20.0,

		SequenceUntil: false,
		TThreshold:    1.5,
		TNSamples:     5,
		TTestFreq:     500,
		TMinReads:     500,
		MiniBatchSize: 500000000,
		Parallelism:   0, // 0 == runtime.NumCPU(), per bio-pileup's -parallelism convention

		WindowLength1: 3,
		WindowLength2: 6,
		Threshold1:    4.30265,
		Threshold2:    2.57058,
		PeakHeight:    1.0,

		SketchW:  3,
		SketchE:  1,
		SketchQ:  16,
		SketchLQ: 4,
		SketchK:  5,
	}
}

// ConfigError wraps an invalid configuration value, fatal at startup per
// spec.md §7.
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string { return e.err.Error() }
func (e *ConfigError) Unwrap() error { return e.err }

func invalid(format string, args ...interface{}) error {
	return &ConfigError{err: errors.E(errors.Invalid, fmt.Sprintf(format, args...))}
}

// Validate rejects out-of-range values in BPPerSec, SampleRate, ChunkSize,
// MaxNumChunk, MaxNumSkips, NumBestChains, MinChainingScore,
// DTWBandRadiusFrac, DTWMatchBonus, TNSamples, SketchK and SketchW, and
// unrecognized border constraint / fill method strings. Other numeric
// fields are not range-checked.
func (o MapOpts) Validate() error {
	switch {
	case o.BPPerSec <= 0:
		return invalid("bp_per_sec must be positive, got %v", o.BPPerSec)
	case o.SampleRate <= 0:
		return invalid("sample_rate must be positive, got %v", o.SampleRate)
	case o.ChunkSize == 0:
		return invalid("chunk_size must be positive")
	case o.MaxNumChunk <= 0:
		return invalid("max_num_chunk must be positive, got %v", o.MaxNumChunk)
	case o.MaxNumSkips < 0:
		return invalid("max_num_skips must be non-negative, got %v", o.MaxNumSkips)
	case o.NumBestChains <= 0:
		return invalid("num_best_chains must be positive, got %v", o.NumBestChains)
	case o.MinChainingScore < 0:
		return invalid("min_chaining_score must be non-negative, got %v", o.MinChainingScore)
	case o.DTWBandRadiusFrac <= 0:
		return invalid("dtw_band_radius_frac must be positive, got %v", o.DTWBandRadiusFrac)
	case o.DTWMatchBonus < 0:
		return invalid("dtw_match_bonus must be non-negative, got %v", o.DTWMatchBonus)
	case o.TNSamples <= 0:
		return invalid("tn_samples must be positive, got %v", o.TNSamples)
	case o.SketchK <= 0:
		return invalid("sketch k must be positive, got %v", o.SketchK)
	case o.SketchW <= 0:
		return invalid("sketch w must be positive, got %v", o.SketchW)
	}
	switch o.DTWBorderConstraint {
	case BorderGlobal, BorderSparse, BorderLocal:
	default:
		return invalid("unrecognized dtw_border_constraint %q", o.DTWBorderConstraint)
	}
	switch o.DTWFillMethod {
	case FillFull, FillBanded:
	default:
		return invalid("unrecognized dtw_fill_method %q", o.DTWFillMethod)
	}
	return nil
}

// Validate rejects an index configuration with a non-positive bucket count
// or sketch parameter.
func (o IndexOpts) Validate() error {
	switch {
	case o.BucketBits == 0:
		return invalid("bucket_bits must be positive")
	case o.SketchK <= 0:
		return invalid("sketch k must be positive, got %v", o.SketchK)
	case o.SketchW <= 0:
		return invalid("sketch w must be positive, got %v", o.SketchW)
	}
	return nil
}
