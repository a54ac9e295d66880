package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/koopa0/system-design/route-cache/internal/config"
	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
	"github.com/koopa0/system-design/route-cache/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli 命令列共用參數
type cli struct {
	configPath string
	redisAddr  string
	prefix     string
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	app := &cli{}

	rootCmd := &cobra.Command{
		Use:           "erc",
		Short:         "erc - inspect and manage the Redis route cache",
		Long:          "A CLI for listing, adding and deleting entries of a Redis-backed route cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "config.yaml", "Config file (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&app.redisAddr, "redis", "", "Redis address, overrides config")
	rootCmd.PersistentFlags().StringVar(&app.prefix, "prefix", "", "Cache prefix, overrides config")
	rootCmd.PersistentFlags().BoolVar(&app.asJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(
		app.lsCmd(),
		app.getCmd(),
		app.addCmd(),
		app.delCmd(),
		app.sizeCmd(),
		app.tagCmd(),
	)
	return rootCmd
}

// open 依配置建立快取實例；Redis 不可用時直接失敗
func (app *cli) open(ctx context.Context) (*cache.Cache, func(), error) {
	cfg, err := config.Load(app.configPath)
	if err != nil {
		return nil, nil, err
	}
	if app.redisAddr != "" {
		cfg.Redis.Addr = app.redisAddr
	}
	if app.prefix != "" {
		cfg.Cache.Prefix = app.prefix
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("redis %s unavailable", opts.Addr))
	}

	c := cache.New(client, cache.Options{
		Prefix: cfg.Cache.Prefix,
		Expire: cfg.Cache.Expire,
		Type:   cfg.Cache.Type,
		Logger: logger.Discard(),
	})
	return c, func() { _ = client.Close() }, nil
}

// withCache 開啟快取後執行 fn
func (app *cli) withCache(cmd *cobra.Command, fn func(ctx context.Context, c *cache.Cache) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, closeFn, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(ctx, c)
}

func (app *cli) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [pattern]",
		Short: "List entries matching a name or glob pattern (all entries by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}

			return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
				entries, err := c.Get(ctx, pattern)
				if err != nil {
					return err
				}
				return app.printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func (app *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print the body of one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
				entry, ok, err := c.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.ErrEntryNotFound.WithDetails(args[0])
				}

				if app.asJSON {
					return writeJSON(cmd.OutOrStdout(), entry)
				}
				fmt.Fprintln(cmd.OutOrStdout(), entry.Body)
				return nil
			})
		},
	}
}

func (app *cli) addCmd() *cobra.Command {
	var (
		expire    int
		entryType string
		tag       string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <body>",
		Short: "Add or replace an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
				var opts []cache.AddOption
				if cmd.Flags().Changed("expire") {
					opts = append(opts, cache.WithExpire(expire))
				}
				if entryType != "" {
					opts = append(opts, cache.WithType(entryType))
				}
				if tag != "" {
					opts = append(opts, cache.WithTag(tag))
				}

				res, err := c.Add(ctx, args[0], args[1], opts...)
				if err != nil {
					return err
				}

				if app.asJSON {
					return writeJSON(cmd.OutOrStdout(), res.Entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\texpire %s\n",
					c.StorageKey(res.Name), res.Entry.Type, cache.SizeOf(res.Entry), formatExpire(res.Entry.Expire))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&expire, "expire", "e", cache.Forever, "TTL in seconds (-1 never expires)")
	cmd.Flags().StringVarP(&entryType, "type", "t", "", "Entry type (default from config)")
	cmd.Flags().StringVar(&tag, "tag", "", "Add the entry to a tag")

	return cmd
}

func (app *cli) delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <pattern>",
		Short: "Delete entries matching a name or glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
				n, err := c.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return nil
			})
		},
	}
}

func (app *cli) sizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Approximate size of all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
				n, err := c.Size(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes (~%.2f Kb)\n", c.Prefix(), n, float64(n)/1024)
				return nil
			})
		},
	}
}

func (app *cli) tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tagged entries",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls <tag>",
			Short: "List entries of a tag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
					entries, err := c.Tagged(ctx, args[0])
					if err != nil {
						return err
					}
					return app.printEntries(cmd.OutOrStdout(), entries)
				})
			},
		},
		&cobra.Command{
			Use:   "del <tag>",
			Short: "Delete all entries of a tag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withCache(cmd, func(ctx context.Context, c *cache.Cache) error {
					n, err := c.DeleteTag(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
					return nil
				})
			},
		},
	)
	return cmd
}

// printEntries 以表格或 JSON 輸出
func (app *cli) printEntries(out io.Writer, entries []cache.Entry) error {
	if app.asJSON {
		return writeJSON(out, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSIZE\tTOUCHED\tEXPIRE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Name,
			e.Type,
			cache.SizeOf(e),
			e.TouchedAt().Format(time.RFC3339),
			formatExpire(e.Expire),
		)
	}
	return w.Flush()
}

func formatExpire(seconds int) string {
	if seconds <= 0 {
		return "never"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
