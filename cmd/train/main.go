package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"CoinCast/internal/di"
	"CoinCast/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	fromFlag := flag.String("from", "", "observation range start (RFC3339)")
	toFlag := flag.String("to", "", "observation range end (RFC3339)")
	force := flag.Bool("force", false, "rerun even if an identical run exists")
	flag.Parse()

	from, err := time.Parse(time.RFC3339, *fromFlag)
	if err != nil {
		log.Fatalf("invalid -from: %v", err)
	}
	to, err := time.Parse(time.RFC3339, *toFlag)
	if err != nil {
		log.Fatalf("invalid -to: %v", err)
	}

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	training, err := di.InitializeTraining(cfg)
	if err != nil {
		log.Fatalf("training initialization failed: %v", err)
	}

	run, err := training.Run(context.Background(), from, to, *force)
	if err != nil {
		if run != nil {
			log.Printf("run %s ended with status %s: %v", run.RunID, run.Status, err)
		} else {
			log.Printf("training failed: %v", err)
		}
		os.Exit(1)
	}

	log.Printf("run %s finished: status=%s best_epoch=%d best_val_loss=%g",
		run.RunID, run.Status, run.BestEpoch, run.BestValLoss)
}
