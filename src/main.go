package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sbdbtree/src/btreeindex"
	"sbdbtree/src/helpers"
	"sbdbtree/src/record"
	"sbdbtree/src/settings"

	"go.uber.org/zap"
)

// printUsage prints helpful usage information.
func printUsage() {
	log.Println("btreeindex demo CLI - interactive get/set/delete over a disk-backed B-tree index")
	log.Println("\nUsage:")
	log.Println("  btreeindex [options]")
	log.Println("\nOptions:")
	flag.PrintDefaults()
	log.Println("\nCommands (typed at the prompt once running):")
	log.Println("  set <key> <value>")
	log.Println("  get <key>")
	log.Println("  del <key>")
	log.Println("  list")
	log.Println("  quit")
}

func main() {
	args := settings.GetSettings()

	flag.StringVar(&args.DataDir, "datadir", "./datafiles", "Directory to store index files")
	flag.StringVar(&args.IndexName, "name", "", "Base file name for the index (default: a generated uuid)")
	flag.IntVar(&args.Order, "order", 64, "B-tree order d (nodes hold between d and 2d cells)")
	flag.IntVar(&args.RecordSize, "recordsize", 256, "Fixed on-disk size of a record, in bytes")
	flag.IntVar(&args.DataPageSize, "datapagesize", 4096, "Page size of the record heap file, in bytes")
	flag.BoolVar(&args.Verbose, "verbose", true, "Enable verbose logging")
	flag.BoolVar(&args.Debug, "debug", true, "Enable debug-level logging")
	flag.StringVar(&args.Version, "version", "0.1.0", "Version string shown in the startup banner")

	flag.Parse()

	if args.IndexName == "" {
		args.IndexName = "idx-" + helpers.GenerateUUID()
	}

	if err := validateArguments(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printUsage()
		os.Exit(1)
	}

	logger, err := newLogger(args.Debug)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger.Desugar())

	metaPath := filepath.Join(args.DataDir, args.IndexName+".meta")
	if helpers.FileExists(metaPath, args.Verbose, logger) {
		logger.Infow("reopening existing index", "path", metaPath)
	} else {
		logger.Infow("initializing new index", "path", metaPath)
	}

	if args.Verbose {
		logger.Infow("btreeindex starting with options",
			"datadir", args.DataDir, "name", args.IndexName,
			"order", args.Order, "recordsize", args.RecordSize, "datapagesize", args.DataPageSize)
	}

	if err := os.MkdirAll(args.DataDir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	tree, err := btreeindex.Open(args.DataDir, args.IndexName, args.Order, args.RecordSize, args.DataPageSize, logger)
	if err != nil {
		log.Fatalf("failed to open index: %v", err)
	}
	defer tree.Close()

	fmt.Printf("btreeindex %s ready: %s/%s (order=%d)\n", args.Version, args.DataDir, args.IndexName, args.Order)
	fmt.Println("type 'help' for commands, 'quit' to exit")

	runREPL(tree, args.RecordSize, logger)

	if err := tree.Flush(); err != nil {
		logger.Errorw("flush on exit failed", "error", err)
	}
}

// newLogger builds a development config in debug mode and a
// production logger otherwise.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// runREPL drives a minimal interactive session over the tree, using
// record.BSONRecord so a single free-form "key=value,..." string
// round-trips through the record.Record interface.
func runREPL(tree *btreeindex.Tree, recordSize int, logger *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printUsage()
		case "set":
			handleSet(tree, recordSize, fields, logger)
		case "get":
			handleGet(tree, fields, logger)
		case "del":
			handleDelete(tree, fields, logger)
		case "list":
			handleList(tree, logger)
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func handleSet(tree *btreeindex.Tree, recordSize int, fields []string, logger *zap.SugaredLogger) {
	if len(fields) < 3 {
		fmt.Println("usage: set <key> <value>")
		return
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("key must be an integer")
		return
	}
	rec := record.NewBSONRecord(recordSize, map[string]interface{}{"value": strings.Join(fields[2:], " ")})
	if err := tree.Set(key, rec); err != nil {
		logger.Errorw("set failed", "key", key, "error", err)
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func handleGet(tree *btreeindex.Tree, fields []string, logger *zap.SugaredLogger) {
	if len(fields) < 2 {
		fmt.Println("usage: get <key>")
		return
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("key must be an integer")
		return
	}
	var rec record.BSONRecord
	found, err := tree.Get(key, &rec)
	if err != nil {
		logger.Errorw("get failed", "key", key, "error", err)
		fmt.Printf("error: %v\n", err)
		return
	}
	if !found {
		fmt.Println("(absent)")
		return
	}
	fmt.Printf("%v\n", rec.Fields["value"])
}

func handleDelete(tree *btreeindex.Tree, fields []string, logger *zap.SugaredLogger) {
	if len(fields) < 2 {
		fmt.Println("usage: del <key>")
		return
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("key must be an integer")
		return
	}
	if err := tree.Delete(key); err != nil {
		logger.Errorw("delete failed", "key", key, "error", err)
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func handleList(tree *btreeindex.Tree, logger *zap.SugaredLogger) {
	err := tree.PrintAll(
		func() record.Record { return &record.BSONRecord{} },
		func(key int64, rec record.Record) error {
			bsonRec, _ := rec.(*record.BSONRecord)
			fmt.Printf("%d -> %v\n", key, bsonRec.Fields["value"])
			return nil
		},
	)
	if err != nil {
		logger.Errorw("list failed", "error", err)
		fmt.Printf("error: %v\n", err)
	}
}

// validateArguments ensures the data directory exists (creating it if
// needed) and that numeric options are sane.
func validateArguments(args *settings.Arguments) error {
	dirInfo, err := os.Stat(args.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(args.DataDir, 0755); err != nil {
				return fmt.Errorf("could not create data directory: %w", err)
			}
		} else {
			return fmt.Errorf("error accessing data directory: %w", err)
		}
	} else if !dirInfo.IsDir() {
		return fmt.Errorf("data directory path exists but is not a directory: %s", args.DataDir)
	}

	if args.Order < 1 {
		return fmt.Errorf("invalid order: %d (must be >= 1)", args.Order)
	}
	if args.RecordSize < 1 {
		return fmt.Errorf("invalid record size: %d (must be >= 1)", args.RecordSize)
	}
	if args.DataPageSize < args.RecordSize {
		return fmt.Errorf("data page size %d must be >= record size %d", args.DataPageSize, args.RecordSize)
	}

	return nil
}
