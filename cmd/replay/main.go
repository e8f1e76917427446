package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/config"
	pkgkafka "CoinCast/pkg/kafka"
)

// replay publishes recorded observation batches to the ingest topic, one
// JSON batch per input line. Used to backfill history before training.
func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	filePath := flag.String("file", "", "NDJSON file of observation batches")
	interval := flag.Duration("interval", 0, "pause between batches")
	flag.Parse()

	if *filePath == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithBatchTimeout(200*time.Millisecond),
	)
	if err != nil {
		log.Fatalf("producer init failed: %v", err)
	}
	defer producer.Close()

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("open %s: %v", *filePath, err)
	}
	defer f.Close()

	ctx := context.Background()
	published, skipped := 0, 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var batch models.ObservationBatch
		if err := json.Unmarshal(line, &batch); err != nil {
			log.Printf("skipping malformed batch: %v", err)
			skipped++
			continue
		}
		if err := producer.Publish(ctx, cfg.Kafka.Topic, []byte(batch.Source), &batch); err != nil {
			log.Fatalf("publish failed after %d batches: %v", published, err)
		}
		published++
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read %s: %v", *filePath, err)
	}

	log.Printf("replay done: published=%d skipped=%d", published, skipped)
}
