// Command fdb is the catalogue CLI: archive, list, purge, wipe and
// TOC/index dump subcommands (spec.md §6). Grounded on the teacher's
// own command surface being a library with no CLI of its own — this
// file instead follows the erigon pack's cobra+pflag wiring
// (KartikBazzad-bunbase cmd/cli/main.go: persistent root command,
// sub-commands as separate *cobra.Command values, errors surfaced via
// RunE rather than log.Fatal).
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	fdb "github.com/ecmwf/fdb-sub005"
	"github.com/ecmwf/fdb-sub005/key"
	"github.com/ecmwf/fdb-sub005/schema"
	"github.com/ecmwf/fdb-sub005/toc"
)

// exit codes, spec.md §6: "0 success; 1 usage; 2 I/O failure; 3 schema
// violation; 4 lock timeout; 5 version incompatibility."
const (
	exitOK                  = 0
	exitUsage               = 1
	exitIOFailure           = 2
	exitSchemaViolation     = 3
	exitLockTimeout         = 4
	exitVersionIncompatible = 5
)

// resourceConfig is the optional YAML file naming the catalogue root,
// aux extensions and hash algorithm (spec.md §6: "FDB_AUX_EXTENSIONS").
// The YAML keys are the lowercase names given in the struct tags.
type resourceConfig struct {
	Root          string   `yaml:"root"`
	AuxExtensions []string `yaml:"auxextensions"`
	HashAlgorithm string   `yaml:"hashalgorithm"`
	BufferSize    string   `yaml:"buffersize"`
}

func loadResourceConfig(path string) (resourceConfig, error) {
	var cfg resourceConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read resource config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse resource config: %w", err)
	}
	return cfg, nil
}

func hashAlgorithmFromName(name string) int {
	switch strings.ToLower(name) {
	case "fnv1a":
		return key.AlgFNV1a
	case "blake2b":
		return key.AlgBlake2b
	default:
		return key.AlgXXHash3
	}
}

func loadSchema(path string, reg *key.Registry) (*schema.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var def schema.Def
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	return schema.Build(def, reg)
}

// parseRequest parses a CLI request string of the form
// "class=od,date=20260101/20260102,param=130/131" into a schema.Request:
// keyword=value pairs separated by commas, alternative values within a
// keyword separated by slashes.
func parseRequest(s string) (*schema.Request, error) {
	req := &schema.Request{Values: make(map[string][]string)}
	if s == "" {
		return req, nil
	}
	for _, clause := range strings.Split(s, ",") {
		kv := strings.SplitN(clause, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid request clause %q, want keyword=value[/value...]", clause)
		}
		req.Values[kv[0]] = strings.Split(kv[1], "/")
	}
	return req, nil
}

// parseKey parses the same "keyword=value,..." grammar as parseRequest
// but into a single concrete key.Key (no alternatives), for archive.
func parseKey(s string, reg *key.Registry) (*key.Key, error) {
	k := key.New(reg)
	if s == "" {
		return k, nil
	}
	for _, clause := range strings.Split(s, ",") {
		kv := strings.SplitN(clause, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid key clause %q, want keyword=value", clause)
		}
		if err := k.Set(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return k, nil
}

type rootFlags struct {
	root        string
	schemaPath  string
	configPath  string
	auxCSV      string
	hashAlgName string
	bufferSize  datasize.ByteSize
}

func main() {
	flags := &rootFlags{}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	root := &cobra.Command{
		Use:           "fdb",
		Short:         "Field database catalogue: archive, list, purge, wipe.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.root, "root", "", "catalogue root directory")
	pf.StringVar(&flags.schemaPath, "schema", "", "schema definition YAML file")
	pf.StringVar(&flags.configPath, "config", "", "resource config YAML file")
	pf.StringVar(&flags.auxCSV, "aux-extensions", "", "comma-separated auxiliary file extensions")
	pf.StringVar(&flags.hashAlgName, "hash-algorithm", "", "xxh3 | fnv1a | blake2b")
	var bufSize pflag.Value = (*datasizeValue)(&flags.bufferSize)
	pf.Var(bufSize, "buffer-size", "read buffer size (e.g. 64KB)")

	root.AddCommand(
		newArchiveCmd(flags, logger),
		newListCmd(flags, logger),
		newPurgeCmd(flags, logger),
		newWipeCmd(flags, logger),
		newDumpTocCmd(flags),
		newDumpIndexCmd(flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fdb:", err)
		os.Exit(exitCodeFor(err))
	}
}

// datasizeValue adapts c2h5oh/datasize.ByteSize to pflag.Value so
// --buffer-size accepts human units ("64KB", "1MiB").
type datasizeValue datasize.ByteSize

func (v *datasizeValue) String() string { return datasize.ByteSize(*v).HumanReadable() }
func (v *datasizeValue) Type() string   { return "size" }
func (v *datasizeValue) Set(s string) error {
	var d datasize.ByteSize
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	*v = datasizeValue(d)
	return nil
}

// exitCodeFor maps a returned error to spec.md §6's fixed exit-code
// table. Errors with no more specific home (a missing database
// directory, a poisoned archiver, a corrupt TOC record) fall to
// exitIOFailure, the table's catch-all for storage-layer problems.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errUsage), errors.Is(err, key.ErrDuplicateKey), errors.Is(err, fdb.ErrWrongState):
		return exitUsage
	case errors.Is(err, schema.ErrIncompatible), errors.Is(err, schema.ErrOverspecified):
		return exitSchemaViolation
	case errors.Is(err, fdb.ErrLockTimeout):
		return exitLockTimeout
	case errors.Is(err, toc.ErrVersionTooNew):
		return exitVersionIncompatible
	default:
		return exitIOFailure
	}
}

var errUsage = errors.New("usage error")

func resolveSchema(flags *rootFlags) (*schema.Schema, *key.Registry, resourceConfig, error) {
	cfg, err := loadResourceConfig(flags.configPath)
	if err != nil {
		return nil, nil, cfg, err
	}
	if flags.root != "" {
		cfg.Root = flags.root
	}
	if env := os.Getenv("FDB_AUX_EXTENSIONS"); env != "" {
		cfg.AuxExtensions = strings.Split(env, ",")
	}
	if flags.auxCSV != "" {
		cfg.AuxExtensions = strings.Split(flags.auxCSV, ",")
	}
	if flags.hashAlgName != "" {
		cfg.HashAlgorithm = flags.hashAlgName
	}
	if cfg.Root == "" {
		return nil, nil, cfg, fmt.Errorf("%w: --root or config.root is required", errUsage)
	}
	if flags.schemaPath == "" {
		return nil, nil, cfg, fmt.Errorf("%w: --schema is required", errUsage)
	}

	reg := key.DefaultRegistry()
	sch, err := loadSchema(flags.schemaPath, reg)
	if err != nil {
		return nil, nil, cfg, err
	}
	return sch, reg, cfg, nil
}

func newArchiveCmd(flags *rootFlags, logger *zap.Logger) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "archive <keyword=value,...> <payload-file|->",
		Short: "Archive a single field under the given key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, reg, cfg, err := resolveSchema(flags)
			if err != nil {
				return err
			}
			k, err := parseKey(args[0], reg)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			var payload []byte
			if args[1] == "-" {
				payload, err = io.ReadAll(os.Stdin)
			} else {
				payload, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}

			a := fdb.NewArchiver(sch, reg, fdb.ArchiverConfig{
				Root:          cfg.Root,
				HashAlgorithm: hashAlgorithmFromName(cfg.HashAlgorithm),
				Strict:        strict,
				Logger:        logger,
			})
			defer a.Close()

			if err := a.Archive(k, payload); err != nil {
				return err
			}
			return a.Flush()
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject duplicate keys within this invocation")
	return cmd
}

func newListCmd(flags *rootFlags, logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <keyword=value[/value...],...>",
		Short: "List every field matching a request.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, reg, cfg, err := resolveSchema(flags)
			if err != nil {
				return err
			}
			reqStr := ""
			if len(args) == 1 {
				reqStr = args[0]
			}
			req, err := parseRequest(reqStr)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			r, err := fdb.NewRetriever(sch, reg, fdb.RetrieverConfig{
				Root:          cfg.Root,
				HashAlgorithm: hashAlgorithmFromName(cfg.HashAlgorithm),
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			it := r.List(req)
			for it.Next() {
				k, m := it.Entry()
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k.String(), m.Location.Path)
			}
			return it.Err()
		},
	}
	return cmd
}

func newPurgeCmd(flags *rootFlags, logger *zap.Logger) *cobra.Command {
	var doit bool
	cmd := &cobra.Command{
		Use:   "purge <db-dir>",
		Short: "Report (and, with --doit, delete) duplicate and orphan files in a database directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, cfg, err := resolveSchema(flags)
			if err != nil {
				return err
			}
			aux := fdb.ParseAuxExtensions(strings.Join(cfg.AuxExtensions, ","))
			report, err := fdb.Purge(args[0], aux, doit)
			if err != nil {
				return err
			}
			printReport(cmd, report, doit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&doit, "doit", false, "actually delete duplicate/orphan files")
	return cmd
}

func newWipeCmd(flags *rootFlags, logger *zap.Logger) *cobra.Command {
	var doit bool
	var secret string
	cmd := &cobra.Command{
		Use:   "wipe <db-dir>",
		Short: "Mark a database wiped and, with --doit, delete its files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := fdb.Wipe(args[0], doit, []byte(secret))
			if err != nil {
				return err
			}
			printReport(cmd, report, doit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&doit, "doit", false, "actually delete the database's files")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret for the deletion manifest")
	return cmd
}

func printReport(cmd *cobra.Command, report *fdb.SpaceReport, doit bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "active:    %6d files  %10d bytes\n", report.ActiveFiles, report.ActiveBytes)
	fmt.Fprintf(out, "duplicate: %6d files  %10d bytes\n", report.DuplicateFiles, report.DuplicateBytes)
	fmt.Fprintf(out, "orphan:    %6d files  %10d bytes\n", report.OrphanFiles, report.OrphanBytes)
	if doit {
		fmt.Fprintf(out, "deleted %d files\n", len(report.Deleted))
	}
	if report.Signature != ([32]byte{}) {
		fmt.Fprintf(out, "signature: %s\n", hex.EncodeToString(report.Signature[:]))
	}
}

func newDumpTocCmd(flags *rootFlags) *cobra.Command {
	var walk bool
	cmd := &cobra.Command{
		Use:   "dump-toc <db-dir>",
		Short: "Dump every TOC record in a database directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := toc.NewReader()
			out := cmd.OutOrStdout()
			if walk {
				records, err := r.ReadAll(args[0] + "/toc")
				if err != nil {
					return err
				}
				for _, rec := range records {
					fmt.Fprintf(out, "%s\tv%d\t%s\t%s\n", tagName(rec.Tag), rec.TagVersion, hex.EncodeToString(rec.Metadata[:]), rec.Timestamp.Format("2006-01-02T15:04:05"))
				}
				return nil
			}
			records, err := r.ReadAll(args[0] + "/toc")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d records\n", len(records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&walk, "walk", false, "print every record instead of a summary count")
	return cmd
}

func newDumpIndexCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-index <index-file>",
		Short: "Dump every (key digest, value) pair in a B-tree index file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fdb.DumpIndex(cmd.OutOrStdout(), args[0])
		},
	}
	return cmd
}

func tagName(t toc.Tag) string {
	switch t {
	case toc.TagInit:
		return "TOC_INIT"
	case toc.TagIndex:
		return "TOC_INDEX"
	case toc.TagClear:
		return "TOC_CLEAR"
	case toc.TagWipe:
		return "TOC_WIPE"
	case toc.TagSub:
		return "TOC_SUB"
	default:
		return "TOC_UNKNOWN"
	}
}
