package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/config"
	"github.com/sarassure/sarassure/internal/events"
	"github.com/sarassure/sarassure/internal/offline"
)

var (
	proxyFlag     string
	broadcastFlag bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage learner caches",
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop every cached entry and response",
	Long: `Sweeps the configured key-value store and response storage. With --proxy
the sweep runs on a remote sarassure-proxy instead (SARASSURE_ADMIN_TOKEN must
match). With --broadcast a ContentChanged event is published so every
subscriber sweeps too.`,
	RunE: runCacheInvalidate,
}

func init() {
	cacheInvalidateCmd.Flags().StringVar(&proxyFlag, "proxy", "", "Base URL of a sarassure-proxy to sweep")
	cacheInvalidateCmd.Flags().BoolVar(&broadcastFlag, "broadcast", false, "Publish a ContentChanged event")
	cacheCmd.AddCommand(cacheInvalidateCmd)
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	awsLoader := &boot.AWS{}

	if broadcastFlag {
		p := boot.Publisher(ctx, cfg, awsLoader)
		if p == nil {
			return fmt.Errorf("--broadcast needs SARASSURE_EVENT_BUS")
		}
		if err := p.ContentChanged(ctx, events.ContentChanged{Entity: "all", Action: "invalidate"}); err != nil {
			return err
		}
		fmt.Println("ContentChanged published")
	}

	if proxyFlag != "" {
		return invalidateRemote(cmd, cfg)
	}

	store, closeStore, err := boot.CacheStore(ctx, cfg, awsLoader)
	if err != nil {
		return err
	}
	defer closeStore()
	storage, err := boot.ResponseStorage(ctx, cfg, awsLoader)
	if err != nil {
		return err
	}

	res := cache.InvalidateAll(ctx, store, storage)
	fmt.Printf("removed %d keys, %d response buckets\n", res.Keys, res.Buckets)
	return res.Err()
}

func invalidateRemote(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.AdminToken == "" {
		return fmt.Errorf("--proxy needs SARASSURE_ADMIN_TOKEN")
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		strings.TrimRight(proxyFlag, "/")+offline.InvalidatePath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AdminToken)

	resp, err := (&http.Client{Timeout: time.Minute}).Do(req)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", proxyFlag, err)
	}
	defer resp.Body.Close()

	var body struct {
		Keys    int      `json:"keys"`
		Buckets int      `json:"buckets"`
		Errors  []string `json:"errors"`
		Error   string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalidate %s: status %d: %w", proxyFlag, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != "" {
			return fmt.Errorf("invalidate %s: %s", proxyFlag, body.Error)
		}
		return fmt.Errorf("invalidate %s: %s", proxyFlag, strings.Join(body.Errors, "; "))
	}
	fmt.Printf("removed %d keys, %d response buckets on %s\n", body.Keys, body.Buckets, proxyFlag)
	return nil
}
