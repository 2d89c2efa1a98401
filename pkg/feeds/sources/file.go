package sources

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

const fileDefaultInterval = 5 * time.Second

// FileSource reads prices from JSON files on disk, for tests or as an
// emergency manual feed. Each subscribed pair maps to one file in the
// configured directory: "btc:usd" is read from "btc_usd.json".
type FileSource struct {
	*feeds.BaseSource
	dir      string
	interval time.Duration

	startOnce sync.Once
	stop      chan struct{}
}

// filePrice is the file payload. The observation time is always the read
// time, never taken from the file.
type filePrice struct {
	Decimals int   `json:"decimals"`
	Value    int64 `json:"value"`
}

// NewFileSource creates a file source.
func NewFileSource(cfg feeds.SourceSettings) (feeds.Source, error) {
	logger := logging.Global()

	dir := cfg.GetString("dir", ".")
	interval := fileDefaultInterval
	if ms := cfg.GetInt("interval_ms", 0); ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	s := &FileSource{
		BaseSource: feeds.NewBaseSource("file", logger),
		dir:        dir,
		interval:   interval,
		stop:       make(chan struct{}),
	}
	s.SetConnected(true)

	return s, nil
}

// Subscribe starts polling the price file for a pair.
func (s *FileSource) Subscribe(pair string) error {
	if !s.AddPair(pair) {
		return nil
	}
	s.startOnce.Do(func() {
		go s.poll()
	})
	return nil
}

// CheckConnection always reports healthy; a missing file is logged per tick.
func (s *FileSource) CheckConnection() bool {
	return true
}

// Reconnect is a no-op for the file source
func (s *FileSource) Reconnect() {}

// Close stops the polling loop.
func (s *FileSource) Close() {
	close(s.stop)
}

func (s *FileSource) poll() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.readAll()
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *FileSource) readAll() {
	for _, pair := range s.Pairs() {
		price, err := s.readPair(pair)
		if err != nil {
			s.Logger().Error("failed to read price file", "pair", pair, "error", err)
			continue
		}
		s.Publish(price)
	}
}

func (s *FileSource) readPair(pair string) (feeds.Price, error) {
	name := strings.NewReplacer("/", "_", ":", "_").Replace(pair) + ".json"
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path) // #nosec G304 -- path derived from configured dir and pair name
	if err != nil {
		return feeds.Price{}, err
	}

	var fp filePrice
	if err := json.Unmarshal(data, &fp); err != nil {
		return feeds.Price{}, err
	}

	return feeds.Price{
		Source:   s.Name(),
		Pair:     pair,
		Decimals: fp.Decimals,
		Value:    fp.Value,
		Time:     nowFunc(),
	}, nil
}
