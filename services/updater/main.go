// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bundlenudge/bundlenudge/pkg/logging"
	"github.com/bundlenudge/bundlenudge/services/updater/observability"
	"github.com/bundlenudge/bundlenudge/services/updater/routes"
	"github.com/bundlenudge/bundlenudge/services/updater/storage"
	badgerstore "github.com/bundlenudge/bundlenudge/services/updater/storage/badger"
	"github.com/bundlenudge/bundlenudge/services/updater/storage/gcs"
	"github.com/bundlenudge/bundlenudge/services/updater/storage/memory"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "bundlenudge-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("updater-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("UPDATER_PORT")
	if port == "" {
		port = "12310"
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "updater",
		JSON:    true,
	})
	defer appLogger.Close()
	logger := appLogger.Slog()
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	badgerPath := os.Getenv("BADGER_PATH")
	if badgerPath == "" {
		badgerPath = "/var/lib/bundlenudge/releases"
	}
	dbCfg := badgerstore.DefaultConfig()
	dbCfg.Path = badgerPath
	dbCfg.Logger = logger
	db, err := badgerstore.Open(dbCfg)
	if err != nil {
		log.Fatalf("FATAL: Could not open the release database: %v", err)
	}
	releases := badgerstore.NewReleaseStore(db)
	defer releases.Close()

	gcRunner, err := badgerstore.NewGCRunner(db, dbCfg.GCInterval, dbCfg.GCDiscardRatio, logger)
	if err != nil {
		log.Fatalf("FATAL: Could not create the database GC runner: %v", err)
	}
	gcRunner.Start()
	defer gcRunner.Stop()

	// Bundle artifacts go to GCS when a bucket is configured; otherwise the
	// service runs in lightweight mode with in-process storage, enough for
	// local development and CI.
	var bundles storage.BundleStore
	bucket := strings.Trim(os.Getenv("GCS_BUCKET"), "\"' ")
	if bucket != "" {
		gcsClient, err := gcs.NewClient(context.Background(), bucket, os.Getenv("GCS_SA_KEY_PATH"))
		if err != nil {
			log.Fatalf("FATAL: Could not create the GCS client: %v", err)
		}
		defer gcsClient.Close()
		bundles = gcsClient
		slog.Info("Using GCS bundle storage", "bucket", bucket)
	} else {
		bundles = memory.NewStore()
		slog.Info("GCS_BUCKET not set. Running in lightweight mode (in-process bundle storage).")
	}

	deployKeys := splitKeys(os.Getenv("NUDGE_DEPLOY_KEYS"))
	if len(deployKeys) == 0 {
		slog.Warn("NUDGE_DEPLOY_KEYS is not set; release management endpoints will reject all requests")
	}

	metrics := observability.InitMetrics()

	router := gin.Default()
	router.Use(otelgin.Middleware("updater-service"))

	routes.SetupRoutes(router, releases, bundles, metrics, deployKeys)

	log.Println("Starting the updater server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// splitKeys parses the comma-separated deploy key list.
func splitKeys(raw string) []string {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
