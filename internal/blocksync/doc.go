/*
Package blocksync implements the block download pipeline: given a pool of
remote peers speaking the block exchange protocol, it retrieves the canonical
sequence of block headers and block bodies, validates them, and hands them to
the importer in strictly ascending, gap-free order.

There are two long-lived workers. The header loop asks the reassembly queue
for gap-filling header requests, dispatches them to idle peers and feeds
validated responses back into the queue. The body loop requests bodies for
headers the queue already holds, throttled by the importer's free queue
space. Both workers pace themselves with countdown latches: an iteration
waits for roughly half (headers) or most (bodies) of its outstanding
responses before scheduling more work, so throughput is not bound to the
slowest peer.

Peers are semi-trusted. A response that fails validation, breaks the hash
chain, or errors at the transport level causes the offending peer to be
dropped; its outstanding work is reclaimed and reissued to another peer.
*/
package blocksync
