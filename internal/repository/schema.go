package repository

// Schema statements are idempotent and run at startup through the
// ClickHouse client. Raw observation tables are append-only; snapshots and
// runs use ReplacingMergeTree so re-inserts converge to the latest record.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS coincast`,

	`CREATE TABLE IF NOT EXISTS coincast.obs_price (
        ts          DateTime64(3),
        ingested_at DateTime64(3),
        open        Float64,
        high        Float64,
        low         Float64,
        close       Float64,
        volume      Float64
    ) ENGINE = ReplacingMergeTree(ingested_at)
    ORDER BY ts`,

	`CREATE TABLE IF NOT EXISTS coincast.obs_text (
        ts          DateTime64(3),
        ingested_at DateTime64(3),
        source      LowCardinality(String),
        author      String,
        body        String,
        weight      Float64
    ) ENGINE = MergeTree
    ORDER BY (ts, source, author)`,

	`CREATE TABLE IF NOT EXISTS coincast.feature_snapshot_meta (
        version     String,
        created_at  DateTime64(3),
        schema_json String,
        row_count   UInt64
    ) ENGINE = ReplacingMergeTree(created_at)
    ORDER BY version`,

	`CREATE TABLE IF NOT EXISTS coincast.feature_snapshot_rows (
        version     String,
        ts          DateTime64(3),
        fields_json String
    ) ENGINE = ReplacingMergeTree
    ORDER BY (version, ts)`,

	`CREATE TABLE IF NOT EXISTS coincast.runs (
        run_id        String,
        data_version  String,
        config_json   String,
        status        LowCardinality(String),
        started_at    DateTime64(3),
        ended_at      DateTime64(3),
        epochs_json   String,
        best_epoch    Int32,
        best_val_loss Float64,
        error         String,
        updated_at    DateTime64(3)
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY run_id`,
}
