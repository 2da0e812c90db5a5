package config

import "time"

// Config - корневая структура конфигурации приложения
// yaml и validate теги для парсинга и валидации

type Config struct {
	Logger LoggerConfig `yaml:"logger" validate:"required"`
	Server ServerConfig `yaml:"http-server" validate:"required"`
	DB     `yaml:"db" validate:"required"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

type DB struct {
	Memtable    MemtableConfig    `yaml:"memtable" validate:"required"`
	Persistence PersistenceConfig `yaml:"persistence" validate:"required"`
	Table       TableConfig       `yaml:"table" validate:"required"`
}

type MemtableConfig struct {
	FlushThresholdBytes int `yaml:"flush_threshold" validate:"required,min=1"`
	FlushChanBuffSize   int `yaml:"flush_chan_buff_size" validate:"required,min=1"`
}

type PersistenceConfig struct {
	RootPath string      `yaml:"path" validate:"required"`
	Cache    CacheConfig `yaml:"cache" validate:"required"`
	// ReadaheadSize is the number of bytes read ahead once index node reads
	// turn sequential; zero disables readahead.
	ReadaheadSize int `yaml:"readahead_size" validate:"min=0"`
}

type CacheConfig struct {
	// Capacity is the number of blocks kept by the LRU block cache.
	Capacity int `yaml:"capacity" validate:"required,min=1"`
}

// TableConfig shapes every table file written by a flush.
type TableConfig struct {
	BlockSize          int         `yaml:"block_size" validate:"required,min=64"`
	BlockSizeDeviation int         `yaml:"block_size_deviation" validate:"min=0,max=100"`
	IndexNodeSize      int         `yaml:"index_node_size" validate:"required,min=64"`
	Compression        string      `yaml:"compression" validate:"oneof=none snappy zstd"`
	Index              string      `yaml:"index" validate:"oneof=key curve"`
	BoxSource          string      `yaml:"box_source" validate:"oneof=key value"`
	Curve              CurveConfig `yaml:"curve" validate:"required"`
}

// CurveConfig is the domain and resolution of the Z-order grid used by
// curve-ordered indexes.
type CurveConfig struct {
	XMin       float64 `yaml:"x_min"`
	XMax       float64 `yaml:"x_max" validate:"gtfield=XMin"`
	YMin       float64 `yaml:"y_min"`
	YMax       float64 `yaml:"y_max" validate:"gtfield=YMin"`
	Resolution uint32  `yaml:"resolution" validate:"required,min=1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		DB: DB{
			Memtable: MemtableConfig{
				FlushThresholdBytes: 4 << 20,
				FlushChanBuffSize:   3,
			},
			Persistence: PersistenceConfig{
				RootPath: "./data",
				Cache: CacheConfig{
					Capacity: 1024,
				},
				ReadaheadSize: 64 << 10,
			},
			Table: TableConfig{
				BlockSize:          4096,
				BlockSizeDeviation: 10,
				IndexNodeSize:      4096,
				Compression:        "snappy",
				Index:              "curve",
				BoxSource:          "key",
				Curve: CurveConfig{
					XMin:       -180,
					XMax:       180,
					YMin:       -90,
					YMax:       90,
					Resolution: 2048,
				},
			},
		},
	}
}
