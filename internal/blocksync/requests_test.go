package blocksync

import (
	"testing"

	"github.com/stretchr/testify/require"

	tmrand "github.com/ethersync/ethersync/libs/rand"
	"github.com/ethersync/ethersync/types"
)

func TestHeadersRequestValidate(t *testing.T) {
	anchor := tmrand.Bytes(types.HashByteLength)

	testCases := []struct {
		name      string
		req       *HeadersRequest
		expectErr bool
	}{
		{"valid range", NewRangeRequest(1, 192, false), false},
		{"valid reverse range", NewRangeRequest(500, 10, true), false},
		{"valid anchor", NewAnchorRequest(anchor, 10, 8, false), false},
		{"zero count", NewRangeRequest(1, 0, false), true},
		{"oversized count", NewRangeRequest(1, MaxInRequest+1, false), true},
		{"zero start", NewRangeRequest(0, 10, false), true},
		{"both flavours set", &HeadersRequest{Start: 5, Hash: anchor, Count: 1}, true},
		{"step on range request", &HeadersRequest{Start: 5, Count: 1, Step: 2}, true},
		{"negative anchor step", &HeadersRequest{Hash: anchor, Count: 1, Step: -1}, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHeadersRequestEnd(t *testing.T) {
	req := NewRangeRequest(100, 192, false)
	require.EqualValues(t, 291, req.End())
}

func TestBlocksRequestSplit(t *testing.T) {
	chain := makeTestChain(10)
	peer := testNodeID()

	var empty *BlocksRequest
	require.Nil(t, empty.Split(4))
	require.Nil(t, (&BlocksRequest{}).Split(4))

	req := &BlocksRequest{Headers: chain.wrap(peer, 1, 10)}
	shards := req.Split(4)
	require.Len(t, shards, 3)
	require.Len(t, shards[0].Headers, 4)
	require.Len(t, shards[1].Headers, 4)
	require.Len(t, shards[2].Headers, 2)

	// order is preserved across shards
	next := int64(1)
	for _, shard := range shards {
		for _, hw := range shard.Headers {
			require.Equal(t, next, hw.Height())
			next++
		}
	}
}
