package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-ingest/internal/infra/sqlite"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type bigqueryFlags struct {
	projectID     string
	datasetID     string
	appliedBy     string
	migrationsDir string
}

func main() {
	log := logger.New()
	if err := newRootCmd(log).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func newRootCmd(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply schema migrations to the ledger stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBigQueryCmd(log), newSQLiteCmd(log))
	return root
}

func newBigQueryCmd(log zerolog.Logger) *cobra.Command {
	f := &bigqueryFlags{}
	cmd := &cobra.Command{
		Use:   "bigquery",
		Short: "Apply pending migrations/bigquery/*.sql files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBigQuery(cmd.Context(), log, f)
		},
	}
	cmd.Flags().StringVar(&f.projectID, "project", "", "GCP project ID (required)")
	cmd.Flags().StringVar(&f.datasetID, "dataset", "ledger", "BigQuery dataset ID")
	cmd.Flags().StringVar(&f.appliedBy, "applied-by", "migrate-cli", "Name of the tool applying migrations")
	cmd.Flags().StringVar(&f.migrationsDir, "migrations", "migrations/bigquery", "Path to migrations directory")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newSQLiteCmd(log zerolog.Logger) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "sqlite",
		Short: "Bring a SQLite database to the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := sqlite.Open(path, log)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("path", path).Int("version", sqlite.SchemaVersion).Msg("Database is up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "ledger.db", "Path to the SQLite database")
	return cmd
}

func runBigQuery(ctx context.Context, log zerolog.Logger, f *bigqueryFlags) error {
	// Create BigQuery client
	client, err := bigquery.NewClient(ctx, f.projectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", f.projectID).Str("dataset", f.datasetID).Msg("Connected to BigQuery")

	// Ensure schema_migrations table exists
	if err := runStatement(ctx, client, schemaMigrationsDDL(f.projectID, f.datasetID), nil); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	dir, err := resolveDir(f.migrationsDir)
	if err != nil {
		return err
	}
	migrations, err := readMigrations(log, dir, f.projectID, f.datasetID)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := getAppliedMigrations(ctx, client, f.projectID, f.datasetID)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}

	for _, m := range pending {
		log.Info().Msgf("  [RUN]  %04d_%s", m.Version, m.Name)

		if err := runStatement(ctx, client, m.SQL, nil); err != nil {
			return fmt.Errorf("executing migration %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := recordMigration(ctx, client, f, m); err != nil {
			return fmt.Errorf("recording migration %04d_%s: %w", m.Version, m.Name, err)
		}

		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

func schemaMigrationsDDL(projectID, datasetID string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, projectID, datasetID)
}

// resolveDir finds the migrations directory relative to the working
// directory or, when run from cmd/migrate, the repository root.
func resolveDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// parseMigrationFilename splits 0001_name.sql into its version and name.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// checksum hashes the file content before placeholder substitution, so the
// same migration applied to different datasets records the same value.
func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// readMigrations reads all migration files from dir, sorted by version.
func readMigrations(log zerolog.Logger, dir, projectID, datasetID string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied. An applied
// migration whose file changed since is an error.
func pendingMigrations(all []Migration, applied []AppliedMigration) ([]Migration, error) {
	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	var pending []Migration
	for _, m := range all {
		am, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s was modified after it was applied", m.Version, m.Name)
		}
	}
	return pending, nil
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, client *bigquery.Client, projectID, datasetID string) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, projectID, datasetID)

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func runStatement(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	query := client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// recordMigration records a successfully applied migration in schema_migrations
func recordMigration(ctx context.Context, client *bigquery.Client, f *bigqueryFlags, m Migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, f.projectID, f.datasetID)

	return runStatement(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: f.appliedBy},
	})
}
