package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"

	"github.com/elonfeng/bestpick/internal/config"
	"github.com/elonfeng/bestpick/internal/scheduler"
	"github.com/elonfeng/bestpick/internal/store"
	"github.com/elonfeng/bestpick/pkg/alert"
	"github.com/elonfeng/bestpick/pkg/enrich"
	"github.com/elonfeng/bestpick/pkg/pick"
	"github.com/elonfeng/bestpick/pkg/rank"
	"github.com/elonfeng/bestpick/pkg/score"
	"github.com/elonfeng/bestpick/pkg/server"
	"github.com/elonfeng/bestpick/pkg/source"
	"github.com/elonfeng/bestpick/pkg/tier"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func loadTiers(cfg *config.Config) (*tier.Table, error) {
	if cfg.Tiers.Path == "" {
		return tier.Default(), nil
	}
	return tier.Load(cfg.Tiers.Path)
}

// app holds everything built from config for one command.
type app struct {
	engine *pick.Engine
	tiers  *tier.Table
	rdb    *redis.Client
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func buildApp(cfg *config.Config) (*app, error) {
	tiers, err := loadTiers(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{tiers: tiers}
	searchers := buildSearchers(cfg)

	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := source.NewRedisCache(a.rdb, cfg.Redis.Prefix)
		for i, s := range searchers {
			searchers[i].Searcher = source.Cached(s.Searcher, cache, s.label, 0)
		}
		slog.Info("redis cache enabled", "addr", cfg.Redis.Addr)
	}

	var classifier enrich.Classifier
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		classifier = enrich.NewLLMClassifier(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.BaseURL)
		slog.Info("llm classifier enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	var excerpter *source.Excerpter
	if cfg.Sources.Excerpt.Enabled {
		excerpter = source.NewExcerpter(cfg.Sources.Excerpt.ParseTimeout(), cfg.Sources.Excerpt.MaxItems)
	}

	list := make([]source.Searcher, len(searchers))
	for i, s := range searchers {
		list[i] = s.Searcher
	}

	a.engine = pick.New(pick.Config{
		Searchers:   list,
		Classifier:  classifier,
		Scorer:      score.NewScorer(cfg.Scoring.Weights, slog.Default()),
		Mapper:      enrich.NewMapper(cfg.Scoring.Credibility, cfg.Scoring.ForumDomains),
		Tiers:       tiers,
		Excerpter:   excerpter,
		Rank:        cfg.Ranking,
		SearchLimit: cfg.Sources.SearchLimit,
		Logger:      slog.Default(),
	})
	return a, nil
}

type labeledSearcher struct {
	source.Searcher
	label string
}

func buildSearchers(cfg *config.Config) []labeledSearcher {
	var out []labeledSearcher

	if cfg.Sources.Reddit.Enabled {
		out = append(out, labeledSearcher{source.NewReddit(
			cfg.Sources.Reddit.ClientID,
			cfg.Sources.Reddit.ClientSecret,
			cfg.Sources.Reddit.Limit,
			cfg.Sources.Reddit.Window,
		), "reddit"})
	}
	if cfg.Sources.YouTube.Enabled && cfg.Sources.YouTube.APIKey != "" {
		out = append(out, labeledSearcher{source.NewYouTube(cfg.Sources.YouTube.APIKey, cfg.Sources.YouTube.MaxResults), "youtube"})
	}
	if cfg.Sources.Web.Enabled && cfg.Sources.Web.APIKey != "" {
		out = append(out, labeledSearcher{source.NewWeb(cfg.Sources.Web.APIKey, cfg.Sources.Web.Num), "web"})
	}
	if cfg.Sources.RSS.Enabled && len(cfg.Sources.RSS.Feeds) > 0 {
		feeds := make([]source.RSSFeed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = source.RSSFeed{Name: f.Name, URL: f.URL}
		}
		out = append(out, labeledSearcher{source.NewRSS(feeds, cfg.Sources.RSS.ParseMaxAge()), "rss"})
	}

	return out
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runSearch(ctx context.Context, query string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.engine.Search(ctx, query)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, hits)
	}
	if len(hits) == 0 {
		fmt.Println("no results (enable more sources in config.yaml)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSOURCE\tTIER\tPUBLISHED\tTITLE")
	for _, h := range hits {
		tr := "-"
		if h.Tier != nil {
			tr = fmt.Sprintf("%d %s", h.Tier.Tier, h.Tier.Label)
		}
		published := "-"
		if h.PublishedAt != nil {
			published = humanize.Time(*h.PublishedAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", h.Score, h.Source, tr, published, h.Title)
	}
	return w.Flush()
}

func runScore(file, query string) error {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}

	var items []score.SourceItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return fmt.Errorf("decode source items: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	scorer := score.NewScorer(cfg.Scoring.Weights, slog.Default())
	return writeJSON(os.Stdout, scorer.Score(query, items))
}

func runTop(ctx context.Context, query string, jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if limit > 0 {
		cfg.Ranking.Limit = limit
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Top(ctx, query)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, res)
	}
	if res.Fallback {
		fmt.Fprintln(os.Stderr, "no classifier available: ranking raw hits by engagement")
	}
	if len(res.Picks) == 0 {
		fmt.Println("no picks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tCONF\tPRICE\tUPDATED\tBADGES\tNAME")
	for _, p := range res.Picks {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			p.Rank, p.Score, p.Confidence, formatPrice(p), formatUpdated(p),
			strings.Join(p.Badges, ", "), p.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for i, p := range res.Picks {
		if p.Verdict == "" {
			continue
		}
		if i == 0 || res.Picks[i-1].Verdict == "" {
			fmt.Println()
		}
		line := fmt.Sprintf("%d. %s: %s", p.Rank, p.Name, p.Verdict)
		if len(p.Cons) > 0 {
			line += " (cons: " + strings.Join(p.Cons, ", ") + ")"
		}
		fmt.Println(line)
	}
	if res.Overall != nil {
		fmt.Printf("\noverall: %d (confidence %d) from %d sources\n",
			res.Overall.BestPickScore, res.Overall.Confidence, len(res.Overall.Sources))
	}
	return nil
}

func formatPrice(p rank.RankedPick) string {
	if p.Price == nil {
		return "-"
	}
	return "$" + humanize.FormatFloat("#,###.##", *p.Price)
}

func formatUpdated(p rank.RankedPick) string {
	if p.UpdatedAt == nil {
		return "-"
	}
	return humanize.Time(*p.UpdatedAt)
}

func runTiers(domain string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tiers, err := loadTiers(cfg)
	if err != nil {
		return err
	}

	if domain != "" {
		tr, ok := tiers.Lookup(domain)
		if !ok {
			fmt.Printf("%s: not tiered\n", domain)
			return nil
		}
		fmt.Printf("%s: tier %d %s %s\n", domain, tr.Tier, tr.Emoji, tr.Label)
		if tr.WhyTrusted != "" {
			fmt.Println(tr.WhyTrusted)
		}
		return nil
	}

	fmt.Printf("vertical: %s\n\n", tiers.Vertical())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tLABEL\tDOMAINS")
	for _, tr := range tiers.Tiers() {
		fmt.Fprintf(w, "%d\t%s %s\t%s\n", tr.Tier, tr.Emoji, tr.Label, strings.Join(tr.Domains, ", "))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(db, a.engine, a.tiers, port, slog.Default())
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(cfg.Watch.Queries) == 0 {
		fmt.Fprintln(os.Stderr, "no watch.queries configured; scheduler idle")
	}
	sched := scheduler.New(db, a.engine, buildAlertManager(cfg), cfg.Watch.Queries,
		cfg.Schedule.ParseRefreshInterval(), cfg.Watch.MinScore, slog.Default())

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler error", "error", err)
		}
	}()

	srv := server.New(db, a.engine, a.tiers, port, slog.Default())
	return srv.ListenAndServe(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
