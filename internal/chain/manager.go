package chain

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/config"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var supportedChainTypes = []string{"ethereum", "polygon", "zkevm", "arbitrum", "optimism"}

// Backend Reader 依赖的节点接口，*ethclient.Client 实现了它
type Backend interface {
	ethereum.ContractCaller
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Vesting 编排合约中的一条奖励释放记录
type Vesting struct {
	Recipient common.Address
	Amount    *big.Int // 最小单位
	Start     time.Time
	Cliff     time.Duration
	End       time.Time
}

type vestingTuple struct {
	Recipient common.Address
	Amount    *big.Int
	Start     *big.Int
	Cliff     *big.Int
	End       *big.Int
}

// Reader 单链只读访问
type Reader struct {
	client       Backend
	orchestrator *Contract
	config       config.ChainConfig
}

// NewReader 连接节点并加载编排合约 ABI
func NewReader(cfg config.ChainConfig) (*Reader, error) {
	client, err := createChainClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	reader, err := NewReaderWithBackend(cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return reader, nil
}

// NewReaderWithBackend 使用已有的节点连接
func NewReaderWithBackend(cfg config.ChainConfig, client Backend) (*Reader, error) {
	orchestrator, err := NewContract("orchestrator", cfg.ABIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load orchestrator contract: %w", err)
	}
	return &Reader{client: client, orchestrator: orchestrator, config: cfg}, nil
}

// createChainClient 创建链客户端
func createChainClient(cfg config.ChainConfig) (*ethclient.Client, error) {
	rpcUrl := cfg.RpcUrl
	if rpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	if !slices.Contains(supportedChainTypes, cfg.ChainType) {
		return nil, fmt.Errorf("unsupported chain type %s, supported types: %s",
			cfg.ChainType, strings.Join(supportedChainTypes, ", "))
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, rpcUrl)
	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	if err := testClientConnection(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	logger.Info("Successfully created %s client", cfg.ChainType)
	return client, nil
}

// testClientConnection 测试客户端连接
func testClientConnection(client Backend) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	return nil
}

// GetProjectRewardInfo 读取项目编排合约上的全部 vesting
func (r *Reader) GetProjectRewardInfo(ctx context.Context, orchestrator common.Address) ([]Vesting, error) {
	values, err := r.orchestrator.Call(ctx, r.client, orchestrator, "getVestings")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	tuples := *abi.ConvertType(values[0], new([]vestingTuple)).(*[]vestingTuple)
	vestings := make([]Vesting, 0, len(tuples))
	for _, t := range tuples {
		vestings = append(vestings, Vesting{
			Recipient: t.Recipient,
			Amount:    t.Amount,
			Start:     time.Unix(t.Start.Int64(), 0).UTC(),
			Cliff:     time.Duration(t.Cliff.Int64()) * time.Second,
			End:       time.Unix(t.End.Int64(), 0).UTC(),
		})
	}

	logger.Debug("Loaded %d vestings from orchestrator %s", len(vestings), orchestrator.Hex())
	return vestings, nil
}

// GetChainId 获取链ID
func (r *Reader) GetChainId() int64 {
	return r.config.ChainId
}

// Close 关闭节点连接
func (r *Reader) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	logger.Info("Chain reader closed")
	return nil
}
