package relay

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ClipKind names one of the four fallback TS loops the gateway can serve
// instead of a bare HTTP error.
type ClipKind string

const (
	ClipChannelUnavailable         ClipKind = "channel_unavailable"
	ClipUserConnectionsExhausted   ClipKind = "user_connections_exhausted"
	ClipProviderConnectionsExhausted ClipKind = "provider_connections_exhausted"
	ClipUserAccountExpired         ClipKind = "user_account_expired"
)

const maxClipSize = 10 * 1024 * 1024

var allClipKinds = []ClipKind{
	ClipChannelUnavailable,
	ClipUserConnectionsExhausted,
	ClipProviderConnectionsExhausted,
	ClipUserAccountExpired,
}

// ClipLibrary holds the loop buffers for the configured fallback clips.
// A missing optional clip is logged and skipped rather than failing boot;
// callers fall back to an HTTP error when a buffer for a requested kind is
// absent.
type ClipLibrary struct {
	buffers map[ClipKind]*TSLoopBuffer
}

// LoadClipLibrary reads every well-known clip file from dir. dir may be
// empty, in which case an empty library is returned (all fallback clips
// disabled).
func LoadClipLibrary(dir string, logger *slog.Logger) (*ClipLibrary, error) {
	lib := &ClipLibrary{buffers: make(map[ClipKind]*TSLoopBuffer)}
	if dir == "" {
		return lib, nil
	}

	for _, kind := range allClipKinds {
		path := filepath.Join(dir, string(kind)+".ts")
		buf, err := loadClipFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("fallback clip not configured, skipping", "kind", kind, "path", path)
				continue
			}
			return nil, fmt.Errorf("loading clip %s: %w", kind, err)
		}
		lib.buffers[kind] = buf
		logger.Info("loaded fallback clip", "kind", kind, "path", path)
	}
	return lib, nil
}

func loadClipFile(path string) (*TSLoopBuffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxClipSize {
		return nil, fmt.Errorf("clip %s exceeds %d bytes", path, maxClipSize)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading clip file: %w", err)
	}
	if len(raw) == 0 || raw[0] != tsSyncByte {
		return nil, fmt.Errorf("clip %s does not start with TS sync byte", path)
	}
	return NewTSLoopBuffer(raw)
}

// Get returns a fresh clone of the loop buffer for kind, or nil if that
// clip was not configured.
func (l *ClipLibrary) Get(kind ClipKind) *TSLoopBuffer {
	buf, ok := l.buffers[kind]
	if !ok {
		return nil
	}
	return buf.Clone()
}
