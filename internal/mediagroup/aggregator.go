package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// Item is one photo of a Telegram album.
type Item struct {
	ChatID       int64
	UserID       int64
	MediaGroupID string
	FileID       string
}

// Group is a whole album, in arrival order.
type Group struct {
	ChatID  int64
	UserID  int64
	FileIDs []string
}

// First returns the album's first photo, the one used as the shopper photo.
func (g Group) First() string {
	if len(g.FileIDs) == 0 {
		return ""
	}
	return g.FileIDs[0]
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

// Aggregator collects album photos that arrive as separate updates and
// flushes each album once no new photo has arrived for the debounce period.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
	stopped  bool
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID:  item.ChatID,
				UserID:  item.UserID,
				FileIDs: []string{item.FileID},
			},
		}
		a.groups[key] = pg
	} else {
		pg.group.FileIDs = append(pg.group.FileIDs, item.FileID)
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

// pending reports how many albums are waiting for their debounce.
func (a *Aggregator) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop drops pending albums and ignores further Adds. It returns the number
// of albums dropped.
func (a *Aggregator) Stop() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	dropped := len(a.groups)
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		delete(a.groups, key)
	}
	return dropped
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
