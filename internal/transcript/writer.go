// Package transcript appends room events to per-room text files. The
// transcript is a best-effort side record: a failed write must never hold up
// delivery, so callers log returned errors and move on.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const headerSeparator = "----------------------------------------"

var newlineEscaper = strings.NewReplacer("\r\n", "\\n", "\n", "\\n", "\r", "\\n")

type roomLog struct {
	mu   sync.Mutex
	path string
}

// Writer serializes appends per room; different rooms write concurrently.
// The file is created lazily on the first append, with a three-line header,
// and the synthesized path is persisted back onto the room record. Once
// assigned, the path never changes for the room's lifetime.
type Writer struct {
	dir   string
	rooms core.RoomStore

	mu   sync.Mutex
	logs map[domain.RoomID]*roomLog
}

func NewWriter(dir string, rooms core.RoomStore) *Writer {
	return &Writer{dir: dir, rooms: rooms, logs: make(map[domain.RoomID]*roomLog)}
}

// Append writes one event line to the room's transcript. Embedded newlines
// are escaped so a message can never break the line-per-event framing.
func (w *Writer) Append(roomID domain.RoomID, line string) error {
	rl := w.roomLog(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.path == "" {
		if err := w.bootstrap(roomID, rl); err != nil {
			return fmt.Errorf("transcript bootstrap: %w", err)
		}
	}

	f, err := os.OpenFile(rl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(newlineEscaper.Replace(line) + "\n"); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (w *Writer) roomLog(roomID domain.RoomID) *roomLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	rl, ok := w.logs[roomID]
	if !ok {
		rl = &roomLog{}
		w.logs[roomID] = rl
	}
	return rl
}

// bootstrap resolves or synthesizes the transcript path. Called with the
// room's log lock held.
func (w *Writer) bootstrap(roomID domain.RoomID, rl *roomLog) error {
	ctx, cancel := storeContext()
	defer cancel()

	room, err := w.rooms.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if room.LogPath != "" {
		rl.path = room.LogPath
		return nil
	}

	now := time.Now()
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%d.log", slugify(room.Name), now.Unix()))
	header := fmt.Sprintf("Chat '%s' created at %s\n", room.Name, now.Format(core.TimeLayout)) +
		fmt.Sprintf("Created by admin: %s\n", room.Admin) +
		headerSeparator + "\n"
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		return err
	}
	rl.path = path

	if err := w.rooms.SetLogPath(ctx, roomID, path); err != nil {
		// The file exists and appends will work; only the record is stale.
		log.Warn().Err(err).Str("module", "transcript").Int64("room", int64(roomID)).Msg("failed to persist transcript path")
	}
	log.Info().Str("module", "transcript").Int64("room", int64(roomID)).Str("path", path).Msg("transcript created")
	return nil
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// slugify turns a room name into a safe file name component.
func slugify(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if out == "" {
		out = "room"
	}
	return out
}
