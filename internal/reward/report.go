package reward

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/shopspring/decimal"
)

// ErrReportNotFound 项目在该轮次没有奖励报告
var ErrReportNotFound = errors.New("reward report not found")

// Collateral 以抵押代币计的金额
type Collateral struct {
	InCollateral decimal.Decimal `json:"inCollateral"`
}

// Transaction 报告中参与者的单笔有效捐赠
type Transaction struct {
	TransactionHash   string     `json:"transactionHash"`
	ValidContribution Collateral `json:"validContribution"`
}

// Participant 报告中的一个参与者
type Participant struct {
	IssuanceAllocation decimal.Decimal `json:"issuanceAllocation"`
	ValidContribution  Collateral      `json:"validContribution"`
	Transactions       []Transaction   `json:"transactions"`
}

// Transaction 按交易哈希查找，不区分大小写
func (p Participant) Transaction(hash string) (Transaction, bool) {
	for _, tx := range p.Transactions {
		if strings.EqualFold(tx.TransactionHash, hash) {
			return tx, true
		}
	}
	return Transaction{}, false
}

// Report 按小写钱包地址索引的参与者
type Report map[string]Participant

// ParseReport 解析报告 JSON，地址统一转为小写
func ParseReport(data []byte) (Report, error) {
	var raw map[string]Participant
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode reward report: %w", err)
	}

	report := make(Report, len(raw))
	for address, participant := range raw {
		report[strings.ToLower(address)] = participant
	}
	return report, nil
}

// LoadReport 读取报告文件
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrReportNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reward report %s: %w", path, err)
	}
	return ParseReport(data)
}

// Participant 按钱包地址查找，不区分大小写
func (r Report) Participant(address string) (Participant, bool) {
	p, ok := r[strings.ToLower(address)]
	return p, ok
}

// FileReportStore 报告目录，布局为 <dir>/<kind>-<roundNumber>/<projectSlug>.json
type FileReportStore struct {
	dir string
}

// NewFileReportStore 创建报告目录读取器
func NewFileReportStore(dir string) *FileReportStore {
	return &FileReportStore{dir: dir}
}

// Path 项目轮次报告的文件路径
func (s *FileReportStore) Path(project *model.ProjectModel, round model.Round) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%d", round.Kind(), round.Number()), project.Slug+".json")
}

// ProjectReport 读取项目在轮次内的报告
func (s *FileReportStore) ProjectReport(project *model.ProjectModel, round model.Round) (Report, error) {
	return LoadReport(s.Path(project, round))
}
