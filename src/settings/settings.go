package settings

import "sync"

// Arguments holds the tunables for a single index instance.
type Arguments struct {
	DataDir   string // directory holding <name>.btree / .data / .meta
	IndexName string // base file name; empty means generate one with uuid

	Order        int // B-tree order d; nodes hold between d and 2d cells
	RecordSize   int // fixed on-disk size of a record, bytes
	DataPageSize int // page size of the record heap file, bytes

	Debug   bool // verbose zap development logging
	Verbose bool // echo startup options to the log

	Version string
}

var (
	instance *Arguments
	once     sync.Once
	mu       sync.RWMutex
)

// GetSettings returns the global settings instance, lazily
// initialized with defaults on first call.
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{
			DataDir:      "./data",
			Order:        64,
			RecordSize:   128,
			DataPageSize: 4096,
			Verbose:      false,
			Version:      "0.1.0",
		}
	})
	return instance
}

// UpdateSettings merges non-zero fields of args into the global
// instance; only explicitly provided values override defaults.
func UpdateSettings(args Arguments) {
	mu.Lock()
	defer mu.Unlock()

	if args.DataDir != "" {
		instance.DataDir = args.DataDir
	}
	if args.IndexName != "" {
		instance.IndexName = args.IndexName
	}
	if args.Order != 0 {
		instance.Order = args.Order
	}
	if args.RecordSize != 0 {
		instance.RecordSize = args.RecordSize
	}
	if args.DataPageSize != 0 {
		instance.DataPageSize = args.DataPageSize
	}
	// Boolean flags need special handling since false is a valid value.
	instance.Debug = args.Debug
	instance.Verbose = args.Verbose

	if args.Version != "" {
		instance.Version = args.Version
	}
}
