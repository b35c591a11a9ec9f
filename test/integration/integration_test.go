package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/rainfall/cmd/forecaster/router"
	"github.com/HatiCode/rainfall/pkg/adapters"
	"github.com/HatiCode/rainfall/pkg/client"
	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/forecast"
	"github.com/HatiCode/rainfall/pkg/models"
	"github.com/HatiCode/rainfall/pkg/series"
	"github.com/HatiCode/rainfall/pkg/storage"
)

const seriesName = "kulon-progo"

// wideTable renders years of synthetic seasonal rainfall in the export layout.
func wideTable(years ...int) string {
	var b strings.Builder
	b.WriteString("Tahun;CH_Jan;CH_Feb;CH_Mar;CH_Apr;CH_May;CH_Jun;CH_Jul;CH_Aug;CH_Sep;CH_Oct;CH_Nov;CH_Dec;;;\n")
	for _, y := range years {
		b.WriteString(fmt.Sprint(y))
		for m := 1; m <= 12; m++ {
			fmt.Fprintf(&b, ";%.1f", 220+180*math.Cos(2*math.Pi*float64(m-1)/12))
		}
		b.WriteString(";;;\n")
	}
	return b.String()
}

// pipeline serves on-demand forecasts over a fixed history and trained model.
type pipeline struct {
	history series.History
	runner  *forecast.CachedRunner
}

func (p *pipeline) Forecast(ctx context.Context, monthsAhead int) (client.ForecastResponse, error) {
	seq, err := p.runner.Run(ctx, p.history, monthsAhead)
	if err != nil {
		return client.ForecastResponse{}, err
	}
	points := make([]storage.Point, len(seq.Points))
	for i, pt := range seq.Points {
		points[i] = storage.Point{Date: pt.Date, Value: pt.Value}
	}
	return client.ForecastResponse{
		Series:      seriesName,
		Model:       p.runner.Engine().Predictor().Name(),
		NLags:       p.runner.Engine().Schema().NLags,
		HistoryEnd:  p.history.Last().Date,
		MonthsAhead: monthsAhead,
		Points:      points,
	}, nil
}

// TestForecastPipelineE2E runs CSV -> reshape -> train -> forecast -> Redis,
// then reads the snapshot back through the HTTP API and the Go client.
func TestForecastPipelineE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Start Redis
	redisReq := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: redisReq,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis host: %v", err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get redis port: %v", err)
	}

	store, err := storage.NewRedisStore(net.JoinHostPort(redisHost, redisPort.Port()), "", 0, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create redis store: %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Redis not reachable: %v", err)
	}

	// 2. Load and reshape
	reshaper, err := series.NewReshaper(series.DefaultConfig())
	if err != nil {
		t.Fatalf("NewReshaper failed: %v", err)
	}
	df, err := adapters.NewReaderAdapter(strings.NewReader(wideTable(2018, 2019, 2020, 2021)), ';').Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	history, report, err := reshaper.Reshape(*df)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if len(history) != 48 {
		t.Fatalf("history length = %d, want 48", len(history))
	}
	if !report.Clean() {
		t.Errorf("unexpected reshape diagnostics: %+v", report)
	}

	// 3. Train and forecast
	schema := features.Schema{NLags: 12}
	builder, err := features.NewBuilder(schema)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	frame, err := builder.TrainingFrame(history)
	if err != nil {
		t.Fatalf("TrainingFrame failed: %v", err)
	}
	model := models.NewLinearModel(schema.Columns(), models.DefaultRidgeLambda)
	if err := model.Train(ctx, frame); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	engine, err := forecast.NewEngine(schema, model, forecast.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	runner, err := forecast.NewCachedRunner(engine, 8)
	if err != nil {
		t.Fatalf("NewCachedRunner failed: %v", err)
	}

	seq, err := runner.Run(ctx, history, 24)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	points := make([]storage.Point, len(seq.Points))
	for i, p := range seq.Points {
		points[i] = storage.Point{Date: p.Date, Value: p.Value}
	}
	if err := store.Put(storage.Snapshot{
		Series:      seriesName,
		Model:       model.Name(),
		GeneratedAt: time.Now().UTC(),
		NLags:       schema.NLags,
		HistoryEnd:  history.Last().Date,
		Points:      points,
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// 4. Serve the API
	server := httptest.NewServer(router.SetupRoutes(router.Deps{
		Store:         store,
		Forecaster:    &pipeline{history: history, runner: runner},
		DefaultMonths: 24,
		StaleAfter:    time.Hour,
		Logger:        logger,
	}))
	defer server.Close()

	c := client.NewForecasterClient(server.URL)

	t.Run("GetSnapshot", func(t *testing.T) {
		result, err := c.GetSnapshot(ctx, seriesName)
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if result.Stale {
			t.Error("Expected fresh snapshot, got stale")
		}
		if len(result.Snapshot.Points) != 24 {
			t.Fatalf("points = %d, want 24", len(result.Snapshot.Points))
		}
		want := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
		if got := result.Snapshot.Points[0].Date; !got.Equal(want) {
			t.Errorf("first forecast month = %v, want %v", got, want)
		}
		for i, p := range result.Snapshot.Points {
			if p.Value != seq.Points[i].Value {
				t.Errorf("point %d = %v, want %v", i, p.Value, seq.Points[i].Value)
			}
		}
	})

	t.Run("Forecast", func(t *testing.T) {
		resp, err := c.Forecast(ctx, 6)
		if err != nil {
			t.Fatalf("Forecast failed: %v", err)
		}
		if len(resp.Points) != 6 {
			t.Fatalf("points = %d, want 6", len(resp.Points))
		}
		for i, p := range resp.Points {
			if p.Value != seq.Points[i].Value {
				t.Errorf("point %d = %v, want prefix value %v", i, p.Value, seq.Points[i].Value)
			}
		}
	})

	t.Run("GetSnapshot_UnknownSeries", func(t *testing.T) {
		if _, err := c.GetSnapshot(ctx, "bantul"); err == nil {
			t.Error("Expected error for unknown series, got nil")
		}
	})

	t.Run("Forecast_InsufficientHistory", func(t *testing.T) {
		short := &pipeline{history: history[:6], runner: runner}
		srv := httptest.NewServer(router.SetupRoutes(router.Deps{Store: store, Forecaster: short, DefaultMonths: 12, Logger: logger}))
		defer srv.Close()

		_, err := client.NewForecasterClient(srv.URL).Forecast(ctx, 12)
		var se *client.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("Expected StatusError for short history, got %v", err)
		}
		if se.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want %d", se.Code, http.StatusUnprocessableEntity)
		}
	})
}

// TestGRPCHealth checks the health service the forecaster exposes next to its
// HTTP API.
func TestGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc := grpc_health_v1.NewHealthClient(conn)
	resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}

	healthServer.Shutdown()
	resp, err = hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check after shutdown failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", resp.Status)
	}
}
