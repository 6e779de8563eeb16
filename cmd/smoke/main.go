// Command smoke checks that the service's dependencies answer: Redis, the
// refresh-event topic, and a running routepoi instance.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/route-poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/config"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	h3mapper "github.com/mohammed-shakir/route-poi-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/route-poi-cache/internal/refreshevents"
)

func checkRedis(ctx context.Context, cfg config.RedisCfg) error {
	fmt.Println("redis:", cfg.Addr)
	if cfg.Addr == "" {
		fmt.Println("  skipped, REDIS_ADDR empty")
		return nil
	}
	cli, err := redisstore.New(ctx, cfg.Addr, redisstore.WithPassword(cfg.Password), redisstore.WithDB(cfg.DB),
		redisstore.WithDialTimeout(2*time.Second))
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	key := "smoke:" + fmt.Sprint(time.Now().UnixNano())
	if err := cli.Set(ctx, key, []byte("ok"), 30*time.Second); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, ok, err := cli.Get(ctx, key)
	if err != nil || !ok {
		return fmt.Errorf("redis get: found=%v err=%v", ok, err)
	}
	_ = cli.Del(ctx, key)
	fmt.Println("  round trip:", string(val))
	return nil
}

// checkKafka publishes an uncommitted event, which every consumer skips.
func checkKafka(cfg config.RefreshEventsCfg) error {
	fmt.Println("kafka:", strings.Join(cfg.Brokers, ","), "topic", cfg.Topic)
	if !cfg.Enabled {
		fmt.Println("  skipped, REFRESH_EVENTS_ENABLED=false")
		return nil
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Successes = true
	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	b, _ := json.Marshal(refreshevents.Event{Kind: "smoke", Source: "smoke-" + cfg.InstanceID, TS: time.Now().UTC()})
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: cfg.Topic, Key: sarama.StringEncoder("smoke"), Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("  produced partition=%d offset=%d\n", part, off)
	return nil
}

func checkH3() error {
	fmt.Println("h3:")
	m := h3mapper.New()
	cell, err := m.CellFor(model.Coordinate{Lat: 37.5665, Lng: 126.9780}, 9)
	if err != nil {
		return err
	}
	parent, err := m.ToParent(cell, 5)
	if err != nil {
		return err
	}
	fmt.Println("  seoul city hall:", cell, "parent:", parent)

	cells, err := m.CellsAlong([]model.Coordinate{
		{Lat: 37.5665, Lng: 126.9780},
		{Lat: 36.3504, Lng: 127.3845},
		{Lat: 35.1796, Lng: 129.0756},
	}, 3)
	if err != nil {
		return err
	}
	fmt.Println("  seoul-daejeon-busan res 3 cells:", len(cells))
	return nil
}

func checkService(ctx context.Context, base string) error {
	fmt.Println("service:", base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/readyz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("readyz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	fmt.Printf("  readyz %d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("readyz status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Println(".env:", err)
	}
	cfg := config.FromEnv()
	target := os.Getenv("SMOKE_TARGET")
	if target == "" {
		target = "http://localhost" + cfg.Addr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	failed := false
	for _, step := range []struct {
		name string
		run  func() error
	}{
		{"redis", func() error { return checkRedis(ctx, cfg.Redis) }},
		{"kafka", func() error { return checkKafka(cfg.RefreshEvents) }},
		{"h3", checkH3},
		{"service", func() error { return checkService(ctx, target) }},
	} {
		if err := step.run(); err != nil {
			fmt.Printf("%s error: %v\n", step.name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("all checks passed")
}
