// Package ec wraps github.com/vivint/infectious to erasure-code sealed
// segments into data+parity shards for the 4+2 default striping scheme
// of spec §4.8/§9 (D3/D8).
package ec

import (
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/vivint/infectious"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

var mon = monkit.Package()

// DefaultDataShards and DefaultParityShards are the core's assumed 4+2
// scheme (spec §9 glossary: "the core assumes 4+2 per D3/D8").
const (
	DefaultDataShards   = 4
	DefaultParityShards = 2
)

// Shard is one erasure-coded piece of a segment, either original data
// (Number < DataShards) or computed parity.
type Shard struct {
	Number int
	Data   []byte
}

// Scheme encodes and decodes segments under a fixed (data, parity)
// shard count.
type Scheme struct {
	log          *zap.Logger
	fec          *infectious.FEC
	dataShards   int
	parityShards int
}

// New returns a Scheme with dataShards required shards out of
// dataShards+parityShards total.
func New(log *zap.Logger, dataShards, parityShards int) (*Scheme, error) {
	fec, err := infectious.NewFEC(dataShards, dataShards+parityShards)
	if err != nil {
		return nil, claudefserrs.InvalidConfig(err.Error())
	}
	return &Scheme{log: log, fec: fec, dataShards: dataShards, parityShards: parityShards}, nil
}

// NewDefault returns a Scheme using the 4+2 default.
func NewDefault(log *zap.Logger) (*Scheme, error) {
	return New(log, DefaultDataShards, DefaultParityShards)
}

// DataShards returns the number of shards required to reconstruct.
func (s *Scheme) DataShards() int { return s.dataShards }

// TotalShards returns the total shard count (data + parity).
func (s *Scheme) TotalShards() int { return s.dataShards + s.parityShards }

// padded returns data zero-padded up to the next multiple of
// s.dataShards, along with the original (unpadded) length.
func (s *Scheme) padded(data []byte) ([]byte, int) {
	origLen := len(data)
	rem := len(data) % s.dataShards
	if rem == 0 {
		return data, origLen
	}
	out := make([]byte, len(data)+s.dataShards-rem)
	copy(out, data)
	return out, origLen
}

// Encode splits data into s.dataShards equal-size pieces (zero-padded to
// a multiple of s.dataShards) and computes s.parityShards parity shards
// over them, returning all TotalShards() shards in Number order.
func (s *Scheme) Encode(data []byte) ([]Shard, error) {
	defer mon.Task()(nil)(nil)

	padded, _ := s.padded(data)

	shards := make([]Shard, s.TotalShards())
	err := s.fec.Encode(padded, func(sh infectious.Share) {
		shards[sh.Number] = Shard{Number: sh.Number, Data: append([]byte(nil), sh.Data...)}
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("erasure encode failed", zap.Error(err))
		}
		return nil, claudefserrs.SerializationError(err.Error())
	}
	return shards, nil
}

// Decode reconstructs the original data of length originalSize from any
// s.dataShards of the available shards.
func (s *Scheme) Decode(shards []Shard, originalSize int) ([]byte, error) {
	defer mon.Task()(nil)(nil)

	if len(shards) < s.dataShards {
		return nil, claudefserrs.ProtocolError("insufficient shards to reconstruct segment")
	}

	in := make([]infectious.Share, len(shards))
	for i, sh := range shards {
		in[i] = infectious.Share{Number: sh.Number, Data: sh.Data}
	}

	out, err := s.fec.Decode(nil, in)
	if err != nil {
		if s.log != nil {
			s.log.Error("erasure decode failed", zap.Error(err))
		}
		return nil, claudefserrs.SerializationError(err.Error())
	}

	if originalSize > len(out) {
		return nil, claudefserrs.ProtocolError("reconstructed data shorter than original size")
	}
	return out[:originalSize], nil
}
