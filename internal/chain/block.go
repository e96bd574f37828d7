package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// GetBlockTimestamp 区块时间
func (r *Reader) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header of block %d: %w", blockNumber, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// GetCurrentBlockNumber 获取当前最新区块号
func (r *Reader) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	return r.client.BlockNumber(ctx)
}
