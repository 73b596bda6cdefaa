package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/adapters"
	"github.com/DataBridgeTech/dbqprep/config"
	"github.com/DataBridgeTech/dbqprep/reportstore"
	"github.com/DataBridgeTech/dbqprep/table"
)

const passingRules = `version: 1
rules:
  - dataset: telco_churn
    where: "tenure > 0"
    checks:
      - row_count between 10 and 100
      - column_count == 6
      - not_null(customerID, gender)
      - value_set(gender):
          values: [Male, Female]
      - range(tenure) between 0 and 72
      - range(TotalCharges) between 0 and 10000
      - type(TotalCharges) == float
`

const failingRules = `version: 1
rules:
  - dataset: telco_churn
    checks:
      - column_count == 21
      - value_set(gender):
          values: [Male]
`

// churnCSV has 31 rows: one blank TotalCharges and one duplicate of row 3.
func churnCSV() string {
	var sb strings.Builder
	sb.WriteString("customerID,gender,tenure,MonthlyCharges,TotalCharges,Churn\n")
	rows := make([]string, 0, 31)
	for i := 0; i < 30; i++ {
		gender := "Male"
		if i%2 == 1 {
			gender = "Female"
		}
		monthly := 20.0 + float64(i)
		total := fmt.Sprintf("%.2f", monthly*float64(i*2))
		if i == 5 {
			total = " "
		}
		churn := "No"
		if i%3 == 0 {
			churn = "Yes"
		}
		rows = append(rows, fmt.Sprintf("C%03d,%s,%d,%.2f,%s,%s", i, gender, i*2, monthly, total, churn))
	}
	rows = append(rows, rows[3])
	sb.WriteString(strings.Join(rows, "\n"))
	sb.WriteString("\n")
	return sb.String()
}

type fixture struct {
	dir    string
	cfg    *config.Config
	store  *config.Store
	logs   *bytes.Buffer
	logger *slog.Logger
}

func newFixture(t *testing.T, rules string) *fixture {
	t.Helper()
	dir := t.TempDir()

	source := filepath.Join(dir, "csv_files", "Telco_Customer_Churn.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0o755))
	require.NoError(t, os.WriteFile(source, []byte(churnCSV()), 0o644))

	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rules), 0o644))

	configFile := filepath.Join(dir, "data_config.yaml")
	configYAML := fmt.Sprintf(`dataset:
  name: Telco_Customer_Churn
  source_path: %q
  data_path: %q
  processed_data_path: %q
validation:
  rules_file: %q
  rule_set: telco_churn
  numeric_columns: [TotalCharges]
  profile: true
reports:
  store: file
  dir: %q
`, source, filepath.Join(dir, "data", "raw"), filepath.Join(dir, "data", "processed"), rulesFile, filepath.Join(dir, "reports"))
	require.NoError(t, os.WriteFile(configFile, []byte(configYAML), 0o644))

	cfg, store, err := config.Load(configFile, config.LoadOptions{Environment: map[string]string{}})
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	return &fixture{
		dir:    dir,
		cfg:    cfg,
		store:  store,
		logs:   logs,
		logger: slog.New(slog.NewTextHandler(logs, nil)),
	}
}

func (f *fixture) state(t *testing.T) *State {
	t.Helper()
	reports, err := OpenReportStore(context.Background(), f.cfg.Reports, f.logger)
	require.NoError(t, err)
	return &State{Config: f.cfg, Store: f.store, Reports: reports}
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t, passingRules)
	state := f.state(t)

	err := New(f.logger, DefaultStages(f.logger)...).Run(context.Background(), state)
	require.NoError(t, err, f.logs.String())

	assert.FileExists(t, f.cfg.Dataset.RawFilePath())
	assert.FileExists(t, f.cfg.Dataset.ProcessedFilePath())

	require.NotNil(t, state.Report)
	assert.True(t, state.Report.OverallSuccess)
	assert.Equal(t, 8, state.Report.TotalChecks)
	require.NotNil(t, state.Profile)
	assert.Equal(t, int64(31), state.Profile.TotalRows)

	// blank TotalCharges and the duplicate are cleaned away
	assert.Equal(t, 29, state.Data.NumRows())
	assert.Equal(t, 18, state.Split.Train.NumRows())
	assert.Equal(t, 6, state.Split.Test.NumRows())
	assert.Equal(t, 5, state.Split.Val.NumRows())

	processed := filepath.Join(f.dir, "data", "processed")
	assert.Equal(t, filepath.Join(processed, "train", "Telco_Customer_Churn_train.csv"), state.Paths.Train)
	for _, path := range []string{state.Paths.Train, state.Paths.Test, state.Paths.Val} {
		assert.FileExists(t, path)
	}

	reopened, err := config.Open(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, state.Paths.Train, reopened.GetString(config.KeyTrainDataPath, ""))
	assert.Equal(t, state.Paths.Test, reopened.GetString(config.KeyTestDataPath, ""))
	assert.Equal(t, state.Paths.Val, reopened.GetString(config.KeyValDataPath, ""))
	assert.Equal(t, state.Paths.Val, f.cfg.Dataset.ValDataPath)

	runs, err := state.Reports.List(context.Background(), "telco_churn", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Report.OverallSuccess)
	require.NotNil(t, runs[0].Profile)

	logs := f.logs.String()
	assert.Contains(t, logs, "STARTING stage=ingestion")
	assert.Contains(t, logs, "COMPLETED stage=splitting")
	assert.Contains(t, logs, "unparsable=1")
	assert.Contains(t, logs, "data validation passed")
}

func TestPipeline_HaltsOnFailedValidation(t *testing.T) {
	f := newFixture(t, failingRules)
	state := f.state(t)

	err := New(f.logger, DefaultStages(f.logger)...).Run(context.Background(), state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "validation: data validation failed: 2 of 2 checks failed")

	assert.NoFileExists(t, f.cfg.Dataset.ProcessedFilePath())
	assert.Contains(t, f.logs.String(), "FAILED stage=validation")
	assert.Contains(t, f.logs.String(), "failed check")

	runs, err := state.Reports.List(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Report.OverallSuccess)
	assert.Equal(t, 2, runs[0].Report.FailedChecks)
}

func TestPipeline_SingleStageReadsFromDisk(t *testing.T) {
	f := newFixture(t, passingRules)
	require.NoError(t, NewIngestionStage(nil).Run(context.Background(), &State{Config: f.cfg}))

	cleaningStage, err := StageByName("cleaning", f.logger)
	require.NoError(t, err)

	state := &State{Config: f.cfg}
	require.NoError(t, New(f.logger, cleaningStage).Run(context.Background(), state))
	assert.Equal(t, 29, state.Data.NumRows())
	assert.Nil(t, state.Report)

	_, err = StageByName("training", nil)
	assert.Error(t, err)
}

func TestPipeline_RequiresConfig(t *testing.T) {
	assert.Error(t, New(nil).Run(context.Background(), &State{}))
}

type fakeWarehouse struct {
	*table.Table
	pingErr error
	closed  bool
}

var _ adapters.WarehouseTarget = (*fakeWarehouse)(nil)

func (w *fakeWarehouse) NumericStats(context.Context, string) (*dbqprep.NumericStats, error) {
	return nil, nil
}

func (w *fakeWarehouse) Ping(context.Context) error {
	return w.pingErr
}

func (w *fakeWarehouse) Close() error {
	w.closed = true
	return nil
}

func TestValidationStage_Warehouse(t *testing.T) {
	f := newFixture(t, passingRules)
	f.cfg.Validation.Profile = false
	f.cfg.Validation.DataSource = dbqprep.DataSource{ID: "dwh", Type: dbqprep.DataSourceTypePostgresql}

	data, err := table.ReadCSV(strings.NewReader(churnCSV()), table.CSVOptions{})
	require.NoError(t, err)
	data, _, err = data.CoerceNumeric("TotalCharges")
	require.NoError(t, err)

	warehouse := &fakeWarehouse{Table: data}
	var gotDataset, gotWhere string
	stage := NewValidationStage(f.logger)
	stage.openWarehouse = func(_ *dbqprep.DataSource, dataset string, where string, _ *slog.Logger) (adapters.WarehouseTarget, error) {
		gotDataset, gotWhere = dataset, where
		return warehouse, nil
	}

	state := &State{Config: f.cfg}
	require.NoError(t, stage.Run(context.Background(), state))
	assert.True(t, state.Report.OverallSuccess)
	assert.Equal(t, "telco_churn", gotDataset)
	assert.Equal(t, "tenure > 0", gotWhere)
	assert.True(t, warehouse.closed)
	assert.Nil(t, state.Data)

	unreachable := &fakeWarehouse{Table: data, pingErr: errors.New("connection refused")}
	stage.openWarehouse = func(*dbqprep.DataSource, string, string, *slog.Logger) (adapters.WarehouseTarget, error) {
		return unreachable, nil
	}
	err = stage.Run(context.Background(), &State{Config: f.cfg})
	assert.ErrorContains(t, err, "connection refused")
	assert.True(t, unreachable.closed)
}

func TestNewCleaningChain(t *testing.T) {
	chain, err := NewCleaningChain(config.CleaningConfig{
		NullStrategy:   "drop",
		DuplicateKeep:  "first",
		OutlierColumns: []string{"MonthlyCharges"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, chain.Len())

	_, err = NewCleaningChain(config.CleaningConfig{NullStrategy: "fill", DuplicateKeep: "first"}, nil)
	assert.Error(t, err)

	_, err = NewCleaningChain(config.CleaningConfig{NullStrategy: "drop", DuplicateKeep: "random"}, nil)
	assert.Error(t, err)
}

func TestOpenReportStore(t *testing.T) {
	store, err := OpenReportStore(context.Background(), config.ReportsConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = OpenReportStore(context.Background(), config.ReportsConfig{Store: "file", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &reportstore.FileStore{}, store)

	_, err = OpenReportStore(context.Background(), config.ReportsConfig{Store: "s3"}, nil)
	assert.Error(t, err)
}
