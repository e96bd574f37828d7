package reward

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "0xAbC0000000000000000000000000000000000001": {
    "issuanceAllocation": "1000",
    "validContribution": {"inCollateral": 400},
    "transactions": [
      {"transactionHash": "0xT1", "validContribution": {"inCollateral": 100}},
      {"transactionHash": "0xt2", "validContribution": {"inCollateral": "300"}}
    ]
  }
}`

func TestParseReport(t *testing.T) {
	report, err := ParseReport([]byte(sampleReport))
	require.NoError(t, err)

	p, ok := report.Participant("0xabc0000000000000000000000000000000000001")
	require.True(t, ok)
	assert.True(t, p.IssuanceAllocation.Equal(decimal.NewFromInt(1000)))
	assert.True(t, p.ValidContribution.InCollateral.Equal(decimal.NewFromInt(400)))

	tx, ok := p.Transaction("0xt1")
	require.True(t, ok)
	assert.True(t, tx.ValidContribution.InCollateral.Equal(decimal.NewFromInt(100)))

	tx, ok = p.Transaction("0xT2")
	require.True(t, ok)
	assert.True(t, tx.ValidContribution.InCollateral.Equal(decimal.NewFromInt(300)))

	_, ok = p.Transaction("0xT3")
	assert.False(t, ok)

	_, ok = report.Participant("0xdef")
	assert.False(t, ok)

	_, err = ParseReport([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestFileReportStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileReportStore(dir)
	project := &model.ProjectModel{Slug: "alpha"}
	round := &model.QfRoundModel{RoundNumber: 2}

	path := store.Path(project, round)
	assert.Equal(t, filepath.Join(dir, "qf-2", "alpha.json"), path)

	_, err := store.ProjectReport(project, round)
	assert.ErrorIs(t, err, ErrReportNotFound)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))

	report, err := store.ProjectReport(project, round)
	require.NoError(t, err)
	assert.Len(t, report, 1)
}
