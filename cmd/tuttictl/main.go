package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	ctl "github.com/tutti-stock/tutti-stock/cmd/tuttictl/cli"
	"github.com/tutti-stock/tutti-stock/internal/app"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/platform/db"
	"github.com/tutti-stock/tutti-stock/jobs"
)

type runtime struct {
	cfg      *app.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	services *app.Services
}

func (r *runtime) connect(c *cli.Context) error {
	if r.services != nil {
		return nil
	}
	pool, err := db.New(c.Context, db.PoolConfig{DSN: r.cfg.PGDSN, MaxConns: 2})
	if err != nil {
		return err
	}
	r.pool = pool
	// The CLI reads straight from the ledger; the level cache stays off.
	r.services = app.NewServices(r.cfg, pool, nil, nil, r.logger)
	return nil
}

func (r *runtime) close(*cli.Context) error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func levelFilter(c *cli.Context) (inventory.LevelFilter, error) {
	raw := c.String("branch")
	if raw == "" {
		return inventory.LevelFilter{LocationType: masterdata.LocationWarehouse}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return inventory.LevelFilter{}, fmt.Errorf("--branch must be a location id: %w", err)
	}
	return inventory.LevelFilter{LocationID: id}, nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	rt := &runtime{cfg: cfg, logger: app.NewLoggerTo(os.Stderr, cfg, "ctl")}

	branchFlag := &cli.StringFlag{Name: "branch", Usage: "location id to report instead of the warehouse"}

	tuttictl := &cli.App{
		Name:  "tuttictl",
		Usage: "Operate the stock service",
		After: rt.close,
		Commands: []*cli.Command{
			{
				Name:  "jobs",
				Usage: "Background job helpers",
				Subcommands: []*cli.Command{
					{
						Name:      "trigger",
						Usage:     "Enqueue a job now",
						ArgsUsage: "<" + fmt.Sprint(jobs.TaskNames) + ">",
						Action: func(c *cli.Context) error {
							name := c.Args().First()
							if name == "" {
								return cli.Exit("job name required", 2)
							}
							helper, err := ctl.NewJobsCLI(cfg.Redis().Asynq())
							if err != nil {
								return err
							}
							defer func() { _ = helper.Close() }()
							info, err := helper.Trigger(c.Context, name)
							if err != nil {
								return err
							}
							fmt.Fprintf(c.App.Writer, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
							return nil
						},
					},
					{
						Name:  "stats",
						Usage: "Show per-queue counters",
						Action: func(c *cli.Context) error {
							helper, err := ctl.NewJobsCLI(cfg.Redis().Asynq())
							if err != nil {
								return err
							}
							defer func() { _ = helper.Close() }()
							queues, err := helper.InspectQueues()
							if err != nil {
								return err
							}
							for _, q := range queues {
								fmt.Fprintf(c.App.Writer, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
									q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived)
							}
							return nil
						},
					},
				},
			},
			{
				Name:   "inventory",
				Usage:  "Inventory levels",
				Before: rt.connect,
				Subcommands: []*cli.Command{
					{
						Name:  "levels",
						Usage: "Print on-hand levels",
						Flags: []cli.Flag{branchFlag},
						Action: func(c *cli.Context) error {
							filter, err := levelFilter(c)
							if err != nil {
								return err
							}
							return ctl.PrintLevels(c.Context, c.App.Writer, rt.services.Inventory, filter)
						},
					},
					{
						Name:  "export",
						Usage: "Write on-hand levels to an xlsx workbook",
						Flags: []cli.Flag{
							branchFlag,
							&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "inventory.xlsx", Usage: "output file"},
						},
						Action: func(c *cli.Context) error {
							filter, err := levelFilter(c)
							if err != nil {
								return err
							}
							f, err := os.Create(c.String("out"))
							if err != nil {
								return err
							}
							n, err := ctl.ExportLevels(c.Context, f, rt.services.Inventory, filter)
							if closeErr := f.Close(); err == nil {
								err = closeErr
							}
							if err != nil {
								return err
							}
							fmt.Fprintf(c.App.Writer, "wrote %d rows to %s\n", n, c.String("out"))
							return nil
						},
					},
				},
			},
			{
				Name:   "counts",
				Usage:  "Stock count maintenance",
				Before: rt.connect,
				Subcommands: []*cli.Command{
					{
						Name:  "orphans",
						Usage: "List stock count headers saved without items",
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "min-age", Value: cfg.OrphanCountMinAge, Usage: "ignore headers newer than this"},
						},
						Action: func(c *cli.Context) error {
							_, err := ctl.PrintOrphans(c.Context, c.App.Writer, rt.services.Counts, c.Duration("min-age"))
							return err
						},
					},
				},
			},
		},
	}

	if err := tuttictl.Run(os.Args); err != nil {
		rt.logger.Error("tuttictl", slog.Any("error", err))
		os.Exit(1)
	}
}
