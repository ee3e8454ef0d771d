package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Feeds)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Agents)
	assert.Equal(t, []string{"Uncontacted", "In-Progress"}, cfg.Targeting.Statuses)
	assert.Equal(t, 31, cfg.KPI.DailyWindowDays)
	assert.Equal(t, 1, cfg.KPI.ByListPeriodMonths)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Len(t, cfg.Outcomes, 8)

	seminar := cfg.Feeds[1]
	assert.Equal(t, KindCSV, seminar.Kind)
	assert.Equal(t, 1, seminar.HeaderRow)
	assert.Equal(t, 2, seminar.DataStartRow)
	assert.Equal(t, "Seminar", seminar.Mapping.SourceDetail)

	require.NoError(t, cfg.Validate())
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
agents: [carol]
kpi:
  daily_window_days: 7
server:
  port: 9000
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"carol"}, cfg.Agents)
	assert.Equal(t, 7, cfg.KPI.DailyWindowDays)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Defaults still apply for unspecified fields.
	assert.Equal(t, 1, cfg.KPI.ByListPeriodMonths)
	assert.Equal(t, DefaultOutcomes(), cfg.Outcomes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseFeedRowDefaults(t *testing.T) {
	cfg, err := parse([]byte(`
feeds:
  - name: offset
    source_type: gift-claim
    location: a.csv
    header_row: 3
    mapping: {phone: Tel}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, 3, cfg.Feeds[0].HeaderRow)
	assert.Equal(t, 4, cfg.Feeds[0].DataStartRow)
}

func TestValidateRejectsUnknownSourceType(t *testing.T) {
	cfg, err := parse([]byte(`
feeds:
  - name: x
    source_type: billboard
    location: x.csv
    mapping: {handle: Name}
`))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "unknown source type")
}

func TestValidateRejectsFeedWithoutIdentityColumns(t *testing.T) {
	cfg, err := parse([]byte(`
feeds:
  - name: x
    source_type: gift-claim
    location: x.csv
    mapping: {email: Mail}
`))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "neither handle nor phone")
}

func TestValidateSchema(t *testing.T) {
	require.NoError(t, validateSchema(DefaultConfigYAML))

	err := validateSchema([]byte(`
feeds:
  - name: x
    source_type: gift-claim
    kind: ftp
    location: x
`))
	assert.ErrorContains(t, err, "invalid config")

	err = validateSchema([]byte("server:\n  port: 0\n"))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Feeds)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LEADFLOW_DATA_DIR", "/tmp/leadflow-data")
	t.Setenv("LEADFLOW_LOG_LEVEL", "debug")
	t.Setenv("LEADFLOW_SERVER_PORT", "9100")

	cfg, err := parse(nil)
	require.NoError(t, err)
	applyEnv(cfg)

	assert.Equal(t, "/tmp/leadflow-data", cfg.GetDataDir())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.GetDataDir())

	cfg.Output.DataDir = "/custom/path"
	assert.Equal(t, "/custom/path", cfg.GetDataDir())
}
