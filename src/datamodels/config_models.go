package datamodels

import (
	"tradesim/src/utils/errors"
)

type TradesimConfig struct {
	BacktestConfig   BacktestConfig   `mapstructure:"backtest"`
	SymbolsConfig    SymbolsConfig    `mapstructure:"symbols"`
	MarketDataConfig MarketDataConfig `mapstructure:"market_data"`
	RabbitConfig     RabbitConfig     `mapstructure:"rabbitmq"`
	ResultsConfig    ResultsConfig    `mapstructure:"results"`
	DatabaseConfig   PostgresConfig   `mapstructure:"postgres"`
}

// ExecutionMode selects the pipeline coordinator variant for a run.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeSharedMem  ExecutionMode = "sharedmem"
	ModeRabbitMQ   ExecutionMode = "rabbitmq"
)

type BacktestConfig struct {
	UserID             string        `mapstructure:"user_id"`
	StrategyID         string        `mapstructure:"strategy_id"`
	Mode               ExecutionMode `mapstructure:"mode"`
	Universe           string        `mapstructure:"universe"`
	Periods            int           `mapstructure:"periods"`
	InitialFunds       float64       `mapstructure:"initial_funds"`
	TransactionCost    float64       `mapstructure:"transaction_cost"`
	MaxStockPercentage float64       `mapstructure:"max_stock_percentage"`
	Seed               int64         `mapstructure:"seed"`
}

func (c *BacktestConfig) Validate() error {
	if c.Periods <= 0 {
		return errors.New("periods must be greater than 0")
	}
	if c.InitialFunds <= 0 {
		return errors.New("initial_funds must be greater than 0")
	}
	if c.TransactionCost < 0 {
		return errors.New("transaction_cost must not be negative")
	}
	if c.MaxStockPercentage <= 0 || c.MaxStockPercentage > 1 {
		return errors.New("max_stock_percentage must be in (0, 1]")
	}
	switch c.Mode {
	case ModeSequential, ModeSharedMem, ModeRabbitMQ:
	default:
		return errors.Newf("unknown execution mode: %s", c.Mode)
	}
	switch c.Universe {
	case "", "singlechar", "all":
	default:
		return errors.Newf("unknown universe policy: %s", c.Universe)
	}
	return nil
}

type SymbolsConfig struct {
	FilePath string `mapstructure:"file_path"`
}

type MarketDataConfig struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
	BatchSize    int    `mapstructure:"batch_size"`
}

type RabbitConfig struct {
	URL string `mapstructure:"url"`
}

type ResultsConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	DbWriter bool   `mapstructure:"db_writer"`
	WsWriter bool   `mapstructure:"ws_writer"`
	WsPort   int    `mapstructure:"ws_port"`
	PlotPath string `mapstructure:"plot_path"`
}

type PostgresConfig struct {
	Database string `mapstructure:"database"`
	Host     string `mapstructure:"host"`
	Password string `mapstructure:"password"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl_mode"`
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
}
