package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
)

// Data holds the body payload of a block. The pipeline never interprets it;
// body-to-header consistency is verified by the importer.
type Data struct {
	Txs [][]byte `json:"txs"`
}

// Block is a header together with its body payload. Blocks are keyed by
// their header's hash.
type Block struct {
	Header *Header `json:"header"`
	Data   Data    `json:"data"`
}

// NewBlock assembles a block from a header and its body payload.
func NewBlock(header *Header, data Data) *Block {
	return &Block{Header: header, Data: data}
}

// Hash returns the hash of the block's header.
func (b *Block) Hash() tmbytes.HexBytes {
	if b == nil {
		return nil
	}
	return b.Header.Hash()
}

// Height returns the height recorded in the block's header.
func (b *Block) Height() int64 {
	if b == nil || b.Header == nil {
		return 0
	}
	return b.Header.Height
}

// ValidateBasic performs stateless checks on a block received from a peer.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if b.Header == nil {
		return errors.New("block without header")
	}
	return b.Header.ValidateBasic()
}

// ShortDescr returns a compact form for log lines.
func (b *Block) ShortDescr() string {
	if b == nil {
		return "nil"
	}
	return b.Header.ShortDescr()
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{%v txs:%d}", b.Header.ShortDescr(), len(b.Data.Txs))
}

// BlockWrapper couples a block with the ID of the node that delivered its
// body.
type BlockWrapper struct {
	Block  *Block `json:"block"`
	NodeID NodeID `json:"node_id"`
}

// NewBlockWrapper attributes block to the given node.
func NewBlockWrapper(block *Block, nodeID NodeID) *BlockWrapper {
	return &BlockWrapper{Block: block, NodeID: nodeID}
}

// Height is a shortcut for the wrapped block's height.
func (bw *BlockWrapper) Height() int64 { return bw.Block.Height() }

func (bw *BlockWrapper) String() string {
	return fmt.Sprintf("BlockWrapper{%v from %s}", bw.Block.ShortDescr(), bw.NodeID)
}
