package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/wemcdonald/sqlgate/internal/app"
	"github.com/wemcdonald/sqlgate/internal/config"
	"github.com/wemcdonald/sqlgate/internal/logging"
	"github.com/wemcdonald/sqlgate/internal/render"
	"github.com/wemcdonald/sqlgate/internal/tui"
	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

var version = "dev"

// errCommandFailed marks a statement that ran but failed; its message has
// already been printed.
var errCommandFailed = errors.New("command failed")

type flags struct {
	configPath  string
	dir         string
	db          string
	usersDB     string
	driver      string
	dsn         string
	policy      string
	format      string
	audit       bool
	auditDB     string
	exec        string
	tables      bool
	auditLog    int
	user        string
	password    string
	role        string
	register    bool
	writeConfig bool
	storeDBPass bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "config file (default ~/.sqlgate/config.yaml)")
	flag.StringVar(&f.dir, "dir", "", "directory scanned for *.db files")
	flag.StringVar(&f.db, "db", "", "SQLite database to open, skipping the picker")
	flag.StringVar(&f.usersDB, "users-db", "", "SQLite file holding the users table")
	flag.StringVar(&f.driver, "driver", "", "database driver: sqlite3 or pgx")
	flag.StringVar(&f.dsn, "dsn", "", "PostgreSQL connection string")
	flag.StringVar(&f.policy, "policy", "", "authorization policy: text or classified")
	flag.StringVar(&f.format, "format", "", "result format: table, json, yaml or csv")
	flag.BoolVar(&f.audit, "audit", false, "record every command in the audit trail")
	flag.StringVar(&f.auditDB, "audit-db", "", "SQLite file holding the audit trail (default <db>.audit)")
	flag.StringVar(&f.exec, "exec", "", "run one statement and exit")
	flag.BoolVar(&f.tables, "tables", false, "list tables and exit")
	flag.IntVar(&f.auditLog, "audit-log", 0, "print the N most recent audit entries and exit")
	flag.StringVar(&f.user, "user", "", "username for -exec, -tables and -register")
	flag.StringVar(&f.password, "password", "", "password (default $SQLGATE_PASSWORD)")
	flag.StringVar(&f.role, "role", string(types.RoleUser), "role for -register")
	flag.BoolVar(&f.register, "register", false, "register -user and exit")
	flag.BoolVar(&f.writeConfig, "write-config", false, "write the effective configuration and exit")
	flag.BoolVar(&f.storeDBPass, "store-db-password", false, "save $SQLGATE_DB_PASSWORD in the OS keyring and exit")
	flag.Parse()

	if f.password == "" {
		f.password = os.Getenv("SQLGATE_PASSWORD")
	}
	return f
}

func (f flags) apply(cfg *config.Config) {
	if f.dir != "" {
		cfg.Database.Dir = f.dir
	}
	if f.db != "" {
		cfg.Database.Path = f.db
	}
	if f.usersDB != "" {
		cfg.Database.UsersPath = f.usersDB
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if f.policy != "" {
		cfg.Policy.Mode = f.policy
	}
	if f.format != "" {
		cfg.UI.Format = f.format
	}
	if f.audit {
		cfg.Audit.Enabled = true
	}
	if f.auditDB != "" {
		cfg.Audit.Path = f.auditDB
	}
}

func (f flags) interactive() bool {
	return f.exec == "" && !f.tables && !f.register && f.auditLog == 0
}

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	f.apply(cfg)

	switch {
	case f.writeConfig:
		path := f.configPath
		if path == "" {
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	case f.storeDBPass:
		if err := cfg.Database.StorePassword(os.Getenv("SQLGATE_DB_PASSWORD")); err != nil {
			return err
		}
		fmt.Println("Database password stored in the keyring.")
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg, f.interactive())
	if err != nil {
		return err
	}
	defer logger.Close()

	svc, err := app.New(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if f.interactive() {
		return runTUI(svc, cfg, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runBatch(ctx, svc, cfg, f)
}

// newLogger keeps terminal output clear of log lines while the TUI owns the
// screen.
func newLogger(cfg *config.Config, interactive bool) (*logging.Logger, error) {
	out := strings.ToLower(cfg.Logging.Output)
	if interactive && (out == "" || out == "stderr" || out == "stdout") {
		return logging.Discard(), nil
	}
	return logging.New(cfg.Logging, version)
}

func runTUI(svc *app.Service, cfg *config.Config, f flags) error {
	opts := tui.Options{Dir: cfg.Database.Dir, Format: cfg.UI.Format}
	if d, err := dialect.ForDriver(cfg.Database.Driver); err == nil && d.Name == dialect.DriverPostgres {
		opts.Path = "postgres"
	} else if f.db != "" {
		opts.Path = cfg.Database.Path
	}

	p := tea.NewProgram(tui.New(svc, opts), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(tui.Model); ok {
		m.Close() //nolint:errcheck // exiting
	}
	if err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

func runBatch(ctx context.Context, svc *app.Service, cfg *config.Config, f flags) error {
	if err := svc.Open(ctx, ""); err != nil {
		return err
	}

	if f.auditLog > 0 {
		entries, err := svc.AuditLog(ctx, f.auditLog)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(entries)
	}

	ctrl, err := svc.NewController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if f.register {
		role, err := types.ParseRole(f.role, cfg.Auth.StrictRoles)
		if err != nil {
			return err
		}
		if err := ctrl.Register(ctx, f.user, f.password, role); err != nil {
			return err
		}
		fmt.Println("User registered successfully.")
		if f.exec == "" && !f.tables {
			return nil
		}
	}

	if _, err := ctrl.Login(ctx, f.user, f.password); err != nil {
		return err
	}

	if f.tables {
		names, err := ctrl.ListTables(ctx)
		if err != nil {
			return err
		}
		fmt.Println(render.Tables(names))
	}

	if f.exec != "" {
		out, err := ctrl.Submit(ctx, f.exec)
		if err != nil {
			return err
		}
		if err := render.Outcome(os.Stdout, out, cfg.UI.Format); err != nil {
			return err
		}
		if out.IsFailure() {
			return errCommandFailed
		}
	}

	return ctrl.Logout()
}
