package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/forecast"
	"github.com/HatiCode/rainfall/pkg/series"
)

const header = "Tahun;CH_Jan;CH_Feb;CH_Mar;CH_Apr;CH_May;CH_Jun;CH_Jul;CH_Aug;CH_Sep;CH_Oct;CH_Nov;CH_Dec;;;\n"

const twoYears = header +
	"2019;410;380;300;210;120;60;30;20;45;150;290;400;;;\n" +
	"2020;420;390;310;200;110;55;25;15;50;160;300;410;;;\n"

func writeData(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rainfall.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestReshape(t *testing.T) {
	out, _, err := run(t, "", "reshape", "--data", writeData(t, twoYears))
	require.NoError(t, err)

	records := readCSV(t, out)
	require.Len(t, records, 25, "header plus 24 months")
	assert.Equal(t, []string{"date", "rain_mm"}, records[0])
	assert.Equal(t, []string{"2019-01-01", "410"}, records[1])
	assert.Equal(t, []string{"2019-12-01", "400"}, records[12])
	assert.Equal(t, []string{"2020-01-01", "420"}, records[13])
	assert.Equal(t, []string{"2020-12-01", "410"}, records[24])
}

func TestReshape_Stdin(t *testing.T) {
	out, _, err := run(t, twoYears, "reshape", "--data", "-")
	require.NoError(t, err)
	assert.Len(t, readCSV(t, out), 25)
}

func TestReshape_CommaDelimiter(t *testing.T) {
	data := strings.ReplaceAll(twoYears, ";", ",")
	out, _, err := run(t, "", "reshape", "--data", writeData(t, data), "--delimiter", ",")
	require.NoError(t, err)
	assert.Len(t, readCSV(t, out), 25)
}

func TestReshape_Diagnostics(t *testing.T) {
	data := "Tahun;CH_Jan;Keterangan\n2020;12.5;ok\n"
	out, stderr, err := run(t, "", "reshape", "--data", writeData(t, data))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"date", "rain_mm"}, {"2020-01-01", "12.5"}}, readCSV(t, out))
	assert.Contains(t, stderr, "reshape diagnostics")
	assert.Contains(t, stderr, "Keterangan")
}

func TestReshape_Errors(t *testing.T) {
	t.Run("missing year column", func(t *testing.T) {
		data := "Year;CH_Jan\n2020;1\n"
		_, _, err := run(t, "", "reshape", "--data", writeData(t, data))
		var dfe *series.DataFormatError
		assert.ErrorAs(t, err, &dfe)
	})

	t.Run("duplicate year", func(t *testing.T) {
		data := header + "2020;1;2;3;4;5;6;7;8;9;10;11;12;;;\n2020;1;2;3;4;5;6;7;8;9;10;11;12;;;\n"
		_, _, err := run(t, "", "reshape", "--data", writeData(t, data))
		var dfe *series.DataFormatError
		assert.ErrorAs(t, err, &dfe)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := run(t, "", "reshape", "--data", filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})

	t.Run("bad delimiter", func(t *testing.T) {
		_, _, err := run(t, "", "reshape", "--data", "-", "--delimiter", ";;")
		assert.ErrorContains(t, err, "single character")
	})

	t.Run("custom year column", func(t *testing.T) {
		data := strings.Replace(twoYears, "Tahun", "Year", 1)
		out, _, err := run(t, "", "reshape", "--data", writeData(t, data), "--year-column", "Year")
		require.NoError(t, err)
		assert.Len(t, readCSV(t, out), 25)
	})
}

func TestFeatures(t *testing.T) {
	out, _, err := run(t, "", "features", "--data", writeData(t, twoYears), "--lags", "3")
	require.NoError(t, err)

	records := readCSV(t, out)
	require.Len(t, records, 1+21, "24 months minus 3 without full lag depth")
	assert.Equal(t,
		[]string{"date", "lag_1", "lag_2", "lag_3", "month", "month_sin", "month_cos", "value"},
		records[0])

	// April 2019: lags are Mar, Feb, Jan
	first := records[1]
	assert.Equal(t, "2019-04-01", first[0])
	assert.Equal(t, []string{"300", "380", "410", "4"}, first[1:5])
	assert.Equal(t, "210", first[7])

	last := records[len(records)-1]
	assert.Equal(t, "2020-12-01", last[0])
	assert.Equal(t, "410", last[7])
}

func TestFeatures_Errors(t *testing.T) {
	_, _, err := run(t, "", "features", "--data", writeData(t, twoYears), "--lags", "0")
	var ve *features.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, _, err = run(t, "", "features", "--data", writeData(t, twoYears), "--lags", "24")
	var ihe *forecast.InsufficientHistoryError
	assert.ErrorAs(t, err, &ihe)
}

func TestForecast(t *testing.T) {
	for _, model := range []string{"linear", "baseline"} {
		t.Run(model, func(t *testing.T) {
			out, _, err := run(t, "", "forecast",
				"--data", writeData(t, twoYears),
				"--lags", "6",
				"--months", "18",
				"--model", model,
			)
			require.NoError(t, err)

			records := readCSV(t, out)
			require.Len(t, records, 19)
			assert.Equal(t, []string{"date", "rain_mm"}, records[0])
			assert.Equal(t, "2021-01-01", records[1][0])
			assert.Equal(t, "2022-06-01", records[18][0])
			for _, r := range records[1:] {
				_, err := strconv.ParseFloat(r[1], 64)
				assert.NoError(t, err, "row %v", r)
			}
		})
	}
}

func TestForecast_Deterministic(t *testing.T) {
	path := writeData(t, twoYears)
	first, _, err := run(t, "", "forecast", "--data", path, "--lags", "12", "--months", "24")
	require.NoError(t, err)
	second, _, err := run(t, "", "forecast", "--data", path, "--lags", "12", "--months", "24")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestForecast_ZeroMonths(t *testing.T) {
	out, _, err := run(t, "", "forecast", "--data", writeData(t, twoYears), "--lags", "6", "--months", "0")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"date", "rain_mm"}}, readCSV(t, out))
}

func TestForecast_Errors(t *testing.T) {
	path := writeData(t, twoYears)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, err error)
	}{
		{
			name: "insufficient history",
			args: []string{"--lags", "30"},
			check: func(t *testing.T, err error) {
				var ihe *forecast.InsufficientHistoryError
				require.ErrorAs(t, err, &ihe)
				assert.Equal(t, 24, ihe.Have)
				assert.Equal(t, 30, ihe.Need)
			},
		},
		{
			name: "negative months",
			args: []string{"--months", "-1"},
			check: func(t *testing.T, err error) {
				var ve *features.ValidationError
				assert.ErrorAs(t, err, &ve)
			},
		},
		{
			name: "unknown model",
			args: []string{"--model", "arima"},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "invalid model type")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"forecast", "--data", path}, tt.args...)
			out, _, err := run(t, "", args...)
			tt.check(t, err)
			assert.Empty(t, out, "no partial output")
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := run(t, "", "train")
	assert.Error(t, err)
}
