package blocksync

import (
	"errors"
	"fmt"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	"github.com/ethersync/ethersync/types"
)

// MaxInRequest is the maximum number of headers or bodies carried by a
// single wire request.
const MaxInRequest = 192

// HeadersRequest describes a header fetch: either a (start, count) range or
// a skip-list anchored at a hash. Exactly one of Start and Hash is set; a
// non-empty Hash selects the anchored flavour.
type HeadersRequest struct {
	Start   int64
	Hash    tmbytes.HexBytes
	Count   int
	Step    int
	Reverse bool
}

// NewRangeRequest builds a header range request starting at the given height.
func NewRangeRequest(start int64, count int, reverse bool) *HeadersRequest {
	return &HeadersRequest{Start: start, Count: count, Reverse: reverse}
}

// NewAnchorRequest builds a skip-list header request anchored at hash, with
// step blocks between consecutive headers.
func NewAnchorRequest(hash tmbytes.HexBytes, count, step int, reverse bool) *HeadersRequest {
	return &HeadersRequest{Hash: hash, Count: count, Step: step, Reverse: reverse}
}

// ByHash reports whether this is the anchored flavour.
func (r *HeadersRequest) ByHash() bool { return len(r.Hash) > 0 }

// Validate checks the request's internal consistency.
func (r *HeadersRequest) Validate() error {
	if r.Count <= 0 {
		return errors.New("non-positive header count")
	}
	if r.Count > MaxInRequest {
		return fmt.Errorf("header count %d exceeds request cap %d", r.Count, MaxInRequest)
	}
	if r.ByHash() {
		if r.Start != 0 {
			return errors.New("both start height and anchor hash are set")
		}
		if r.Step < 0 {
			return errors.New("negative step")
		}
		return nil
	}
	if r.Start <= 0 {
		return errors.New("non-positive start height")
	}
	if r.Step != 0 {
		return errors.New("step is only valid for anchored requests")
	}
	return nil
}

// End returns the last height covered by a forward range request.
func (r *HeadersRequest) End() int64 {
	return r.Start + int64(r.Count) - 1
}

func (r *HeadersRequest) String() string {
	if r.ByHash() {
		return fmt.Sprintf("HeadersRequest{anchor:%v count:%d step:%d reverse:%v}",
			r.Hash.ShortString(), r.Count, r.Step, r.Reverse)
	}
	return fmt.Sprintf("HeadersRequest{start:%d count:%d reverse:%v}", r.Start, r.Count, r.Reverse)
}

// BlocksRequest is an ordered list of headers whose bodies are missing. An
// empty request means no body work is available.
type BlocksRequest struct {
	Headers []*types.HeaderWrapper
}

// IsEmpty reports whether the request covers no headers.
func (r *BlocksRequest) IsEmpty() bool { return r == nil || len(r.Headers) == 0 }

// Split shards the request into requests of at most max headers each,
// preserving order. An empty request splits into no shards.
func (r *BlocksRequest) Split(max int) []*BlocksRequest {
	if r.IsEmpty() {
		return nil
	}
	shards := make([]*BlocksRequest, 0, (len(r.Headers)+max-1)/max)
	for start := 0; start < len(r.Headers); start += max {
		end := start + max
		if end > len(r.Headers) {
			end = len(r.Headers)
		}
		shards = append(shards, &BlocksRequest{Headers: r.Headers[start:end]})
	}
	return shards
}

func (r *BlocksRequest) String() string {
	if r.IsEmpty() {
		return "BlocksRequest{empty}"
	}
	return fmt.Sprintf("BlocksRequest{%v ... %v, %d headers}",
		r.Headers[0].Header.ShortDescr(), r.Headers[len(r.Headers)-1].Header.ShortDescr(), len(r.Headers))
}
