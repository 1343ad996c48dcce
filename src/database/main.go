package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// TradesimDatabase persists run results for later querying.
type TradesimDatabase interface {
	WritePeriodStats(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error
	ReadPeriodStats(ctx context.Context, params datamodels.RunParams) ([]PeriodStatRecord, error)
}

type databaseImplementation struct {
	gormDb *gorm.DB
}

func NewDBConnection(dbConfig datamodels.PostgresConfig) (TradesimDatabase, error) {
	dbConnString := MakeConnectionString(&dbConfig)

	gormConfig := &gorm.Config{
		Logger: slogGorm.New(),
	}

	gormDb, err := gorm.Open(postgres.Open(dbConnString), gormConfig)
	if err != nil {
		return nil, errors.WrapE(err, errors.New("cannot create gorm engine"))
	}

	slog.Info("Connected to database", "host", dbConfig.Host, "database", dbConfig.Database, "user", dbConfig.User)

	if err := gormDb.AutoMigrate(DbTables...); err != nil {
		return nil, errors.WrapE(err, errors.New("cannot migrate tables"))
	}

	return &databaseImplementation{gormDb: gormDb}, nil
}

func MakeConnectionString(dbConfig *datamodels.PostgresConfig) string {
	if dbConfig.URI != "" { // If url is provided, use it
		return dbConfig.URI
	}

	sslMode := dbConfig.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	hostPort := net.JoinHostPort(dbConfig.Host, strconv.Itoa(dbConfig.Port))

	if dbConfig.Password == "" {
		slog.Warn("No password provided for database connection, using empty password")
		return fmt.Sprintf("postgres://%s@%s/%s?search_path=public&sslmode=%s",
			dbConfig.User,
			hostPort,
			dbConfig.Database,
			sslMode,
		)
	}

	return fmt.Sprintf("postgres://%s:%s@%s/%s?search_path=public&sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		hostPort,
		dbConfig.Database,
		sslMode,
	)
}

// WritePeriodStats inserts one row per period. Rows are keyed by run ids and
// period, and conflicts are ignored so a re-settled period after a crash
// never duplicates or overwrites a row.
func (d *databaseImplementation) WritePeriodStats(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error {
	records := make([]PeriodStatRecord, 0, len(stats))
	for _, stat := range stats {
		record, err := NewPeriodStatRecord(params, stat)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	result := d.gormDb.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records)
	if result.Error != nil {
		return errors.WrapE(result.Error, errors.New("cannot write period stats"))
	}
	return nil
}

func (d *databaseImplementation) ReadPeriodStats(ctx context.Context, params datamodels.RunParams) ([]PeriodStatRecord, error) {
	var records []PeriodStatRecord
	result := d.gormDb.WithContext(ctx).
		Where("user_id = ? AND strategy_id = ? AND backtest_id = ?", params.UserID, params.StrategyID, params.BacktestID).
		Order("period asc").
		Find(&records)
	if result.Error != nil {
		return nil, errors.WrapE(result.Error, errors.New("cannot read period stats"))
	}
	return records, nil
}
