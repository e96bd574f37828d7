package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 编排合约的 vesting 查询接口
const orchestratorABI = `[
  {
    "type": "function",
    "name": "getVestings",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {
        "name": "",
        "type": "tuple[]",
        "components": [
          {"name": "recipient", "type": "address"},
          {"name": "amount", "type": "uint256"},
          {"name": "start", "type": "uint256"},
          {"name": "cliff", "type": "uint256"},
          {"name": "end", "type": "uint256"}
        ]
      }
    ]
  }
]`

// Contract 只读合约调用
type Contract struct {
	abi  abi.ABI
	name string
}

// NewContract 加载合约 ABI，abiPath 为空时使用内置 ABI
func NewContract(name, abiPath string) (*Contract, error) {
	if abiPath == "" {
		parsed, err := abi.JSON(strings.NewReader(orchestratorABI))
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in ABI: %w", err)
		}
		return &Contract{abi: parsed, name: name}, nil
	}

	abiData, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ABI from %s: %w", abiPath, err)
	}
	parsed, err := ParseABI(abiData)
	if err != nil {
		return nil, err
	}
	return &Contract{abi: parsed, name: name}, nil
}

// ParseABI 支持完整编译输出（含 abi 字段）和纯 ABI 数组两种格式
func ParseABI(data []byte) (abi.ABI, error) {
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsed, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsed, nil
	}

	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

// GetABI 获取合约ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// Call 在最新区块上执行只读调用并解码返回值
func (c *Contract) Call(ctx context.Context, caller ethereum.ContractCaller, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.name, method, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s.%s at %s: %w", c.name, method, address.Hex(), err)
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s.%s: %w", c.name, method, err)
	}
	return values, nil
}
