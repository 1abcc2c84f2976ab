package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"

	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/config"
	"raffle-ledger/internal/database"
	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/router"
	"raffle-ledger/internal/util"

	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

// app 持有一次命令运行期间初始化好的组件
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	svc     *raffle.Service
	logFile *os.File
	log     *logger.Logger
}

func main() {
	// .env 可选，先于配置加载
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	cliApp := &cli.App{
		Name:  "raffle-ledger",
		Usage: "chance ledger and draw engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML config file",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: serve,
			},
			{
				Name:   "summary",
				Usage:  "Print chances per identifier",
				Action: printSummary,
			},
			{
				Name:   "draw",
				Usage:  "Draw one winner from the current ledger",
				Action: drawOnce,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func bootstrap(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// ensure basic directories exist
	if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := ensureDir(filepath.Dir(cfg.Log.File)); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := ensureDir(cfg.Backup.Dir); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.open(); err != nil {
		a.close()
		return nil, err
	}
	logger.Infof("ledger ready: mode=%s db=%s", a.svc.Mode(), cfg.Database.Path)
	return a, nil
}

// open 依次打开日志文件、数据库和账本；失败时由调用方 close 已打开的部分
func (a *app) open() error {
	cfg := a.cfg
	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	a.log = logger.Init("raffle-ledger", cfg.Log.Verbose, false, logOut)

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.db = db
	if err := database.AutoMigrate(a.db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	mode, err := ledger.ParseMode(cfg.Raffle.Mode)
	if err != nil {
		return err
	}
	l, err := ledger.New(a.db, mode, ledger.Options{InsertBatchSize: cfg.Raffle.InsertBatchSize})
	if err != nil {
		return err
	}
	a.svc = raffle.NewService(l, raffle.Rules{
		UnitSize:             cfg.Raffle.UnitSize,
		MaxChancesPerRequest: cfg.Raffle.MaxChancesPerRequest,
	})
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = database.Close(a.db)
	}
	if a.log != nil {
		a.log.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func serve(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	// 未配置的密钥在启动时随机生成，重启后失效
	if cfg.JWT.Secret == "" {
		if cfg.JWT.Secret, err = util.RandomString(48); err != nil {
			return err
		}
		logger.Warning("jwt.secret is empty, tokens will not survive a restart")
	}
	if cfg.Security.EncryptionKey == "" {
		if cfg.Security.EncryptionKey, err = util.RandomString(48); err != nil {
			return err
		}
		logger.Warning("security.encryption_key is empty, backups and audit logs will not be readable after a restart")
	}

	adminHash, err := util.HashPassword(cfg.Security.AdminPassword, cfg.Security.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	r := router.SetupRouter(cfg, router.Deps{
		DB:        a.db,
		Service:   a.svc,
		Backups:   backup.NewManager(a.db, a.svc, cfg.Backup.Dir, cfg.Security.EncryptionKey),
		AdminHash: adminHash,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	logger.Infof("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}

func printSummary(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.svc.Summary(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "mode: %s\ttotal: %d\n", s.Mode, s.TotalEntries)
	fmt.Fprintln(w, "ID\tCHANCES\tSHARE")
	for _, t := range s.Totals {
		fmt.Fprintf(w, "%s\t%d\t%.2f%%\n", t.ParticipantID, t.Chances, s.Share(t))
	}
	return w.Flush()
}

func drawOnce(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.svc.Draw(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "winner: %s (1 of %d chances) at %s\n",
		res.ParticipantID, res.TotalChances, res.DrawnAt.Format("2006-01-02 15:04:05"))
	return nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
