package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/logging"
	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/services"
)

type runOptions struct {
	input     string
	format    string
	horizon   int
	methods   []string
	gapPolicy string
	budget    float64
	currency  string
	output    string
	logLevel  string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forecast a daily cost history file",
		Long: `Read a daily cost history and print the forecast.

The input is CSV with date,cost columns (a header row is optional) or JSON,
either an array of {"date","cost"} objects or {"historical_data": [...]}.

Examples:
  forecastctl run --input costs.csv --horizon 30
  forecastctl run --input costs.json --methods ARIMA,PROPHET --output yaml
  cat costs.csv | forecastctl run --input - --format csv --budget 5000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "History file, or - for stdin")
	cmd.Flags().StringVar(&opts.format, "format", "", "Input format (csv|json); detected from the file extension when empty")
	cmd.Flags().IntVar(&opts.horizon, "horizon", 30, "Days to forecast")
	cmd.Flags().StringSliceVar(&opts.methods, "methods", nil, "Methods to run (ARIMA,PROPHET,EXPONENTIAL_SMOOTHING)")
	cmd.Flags().StringVar(&opts.gapPolicy, "gap-policy", string(forecast.GapInterpolate), "Missing day handling (interpolate|reject)")
	cmd.Flags().Float64Var(&opts.budget, "budget", 0, "Budget threshold for the forecast horizon")
	cmd.Flags().StringVar(&opts.currency, "currency", "USD", "Currency for budget messages")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "Output format (json|yaml)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runForecast(ctx context.Context, stdin io.Reader, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	output := strings.ToLower(opts.output)
	if output != "json" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}
	policy := forecast.GapPolicy(strings.ToLower(opts.gapPolicy))
	if !policy.Valid() {
		return fmt.Errorf("unknown gap policy %q", opts.gapPolicy)
	}

	history, err := loadHistory(stdin, opts.input, opts.format)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logging.ParseLogrusLevel(opts.logLevel))

	cfg := forecast.DefaultConfig()
	cfg.GapPolicy = policy
	engine := forecast.NewEngine(cfg, logger)
	budget := services.NewBudgetEvaluator(config.BudgetConfig{WarningRatio: 0.8, Currency: opts.currency})
	service := services.NewForecastService(engine, nil, budget, 0, logger)

	resp, err := service.Forecast(ctx, services.ForecastRequest{
		History:         history,
		Horizon:         opts.horizon,
		Methods:         opts.methods,
		BudgetThreshold: opts.budget,
	})
	if err != nil {
		return err
	}
	return writeResponse(out, output, resp)
}

func loadHistory(stdin io.Reader, input, format string) ([]models.HistoricalPoint, error) {
	if input == "" {
		return nil, errors.New("an input file is required")
	}
	format = strings.ToLower(format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(input)), ".")
	}

	var r io.Reader = stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	switch format {
	case "csv":
		return parseCSV(r)
	case "json":
		return parseJSON(r)
	default:
		return nil, fmt.Errorf("cannot determine input format for %q; use --format csv|json", input)
	}
}

func parseCSV(r io.Reader) ([]models.HistoricalPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []models.HistoricalPoint
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line++
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected date,cost", line)
		}
		cost, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: invalid cost %q", line, record[1])
		}
		points = append(points, models.HistoricalPoint{Date: strings.TrimSpace(record[0]), Cost: cost})
	}
	return points, nil
}

func parseJSON(r io.Reader) ([]models.HistoricalPoint, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}

	var points []models.HistoricalPoint
	if err := json.Unmarshal(raw, &points); err == nil {
		return points, nil
	}
	var wrapped struct {
		History []models.HistoricalPoint `json:"historical_data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse json history: %w", err)
	}
	return wrapped.History, nil
}

// writeResponse renders YAML through the JSON encoding so both outputs share field names
func writeResponse(out io.Writer, format string, resp *services.ForecastResponse) error {
	raw, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode forecast as yaml: %w", err)
	}
	return enc.Close()
}
