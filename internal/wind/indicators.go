package wind

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// builtinIndicators maps the Chinese indicator names analysts use to the
// terminal's field codes. A YAML override file can extend or shadow these.
var builtinIndicators = map[string]string{
	"收盘价":       "close",
	"涨跌幅":       "pct_chg",
	"换手率":       "turn",
	"每股收益EPS-基本": "eps_basic",
	"净资产收益率ROE-平均": "roe_avg",
	"开盘价":   "open",
	"最高价":   "high",
	"最低价":   "low",
	"成交量":   "volume",
	"成交额":   "amt",
	"总市值":   "mkt_cap",
	"流通市值":  "mkt_cap_float",
	"市盈率TTM": "pe_ttm",
	"市净率":   "pb_lf",
	"股息率TTM": "dividendyield2",
	"振幅":    "swing",
	"涨停价":   "up_limit",
	"跌停价":   "down_limit",
}

// Indicators translates indicator aliases to terminal field codes. Safe for
// concurrent use; the table can be hot-reloaded from an override file.
type Indicators struct {
	logger *slog.Logger

	mu       sync.RWMutex
	table    map[string]string
	filePath string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewIndicators returns a translator seeded with the built-in table.
func NewIndicators(logger *slog.Logger) *Indicators {
	table := make(map[string]string, len(builtinIndicators))
	for k, v := range builtinIndicators {
		table[k] = v
	}
	return &Indicators{logger: logger, table: table}
}

// Translate converts an alias, or a comma-separated list of aliases, to
// field codes. Unknown names pass through unchanged so raw field codes keep
// working.
func (ind *Indicators) Translate(fields string) string {
	ind.mu.RLock()
	defer ind.mu.RUnlock()

	if !strings.Contains(fields, ",") {
		return ind.lookup(fields)
	}

	parts := strings.Split(fields, ",")
	for i, part := range parts {
		parts[i] = ind.lookup(strings.TrimSpace(part))
	}
	return strings.Join(parts, ",")
}

func (ind *Indicators) lookup(name string) string {
	if code, ok := ind.table[name]; ok {
		return code
	}
	return name
}

// Aliases returns a copy of the current alias table.
func (ind *Indicators) Aliases() map[string]string {
	ind.mu.RLock()
	defer ind.mu.RUnlock()

	out := make(map[string]string, len(ind.table))
	for k, v := range ind.table {
		out[k] = v
	}
	return out
}

// LoadFile merges alias overrides from a YAML file into the table. Entries
// with the same alias shadow the built-ins.
func (ind *Indicators) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading indicator file: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing indicator file: %w", err)
	}

	table := make(map[string]string, len(builtinIndicators)+len(overrides))
	for k, v := range builtinIndicators {
		table[k] = v
	}
	for k, v := range overrides {
		table[k] = v
	}

	ind.mu.Lock()
	ind.table = table
	ind.filePath = path
	ind.mu.Unlock()

	ind.logger.Info("loaded indicator overrides",
		slog.String("path", path),
		slog.Int("overrides", len(overrides)))
	return nil
}

// Watch reloads the override file when it changes. Editors produce bursts of
// write events, so reloads are debounced.
func (ind *Indicators) Watch(path string) error {
	if err := ind.LoadFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating indicator watcher: %w", err)
	}
	// Watch the containing directory, not the file: atomic saves replace
	// the inode, and a watch on the old inode goes quiet with no error.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching indicator directory: %w", err)
	}

	ind.watcher = watcher
	ind.stopCh = make(chan struct{})
	ind.doneCh = make(chan struct{})

	go ind.watchLoop(filepath.Clean(path))
	return nil
}

func (ind *Indicators) watchLoop(path string) {
	defer close(ind.doneCh)

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ind.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-ind.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			// A rename-over lands as Create on the target name; a plain
			// Rename or Remove of the file means it is gone and the next
			// Create will pick the replacement up.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-ind.watcher.Errors:
			if !ok {
				return
			}
			ind.logger.Warn("indicator watcher error", slog.Any("error", err))
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := ind.LoadFile(path); err != nil {
				ind.logger.Warn("indicator reload failed, keeping previous table",
					slog.Any("error", err))
			}
		}
	}
}

// Close stops the watcher if one is running.
func (ind *Indicators) Close() error {
	if ind.watcher == nil {
		return nil
	}
	close(ind.stopCh)
	err := ind.watcher.Close()
	<-ind.doneCh
	return err
}
