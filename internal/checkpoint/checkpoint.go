package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/nenv/internal/config"
	"github.com/nvandessel/nenv/internal/network"
)

const (
	filePrefix = "nenv-checkpoint-"
	fileSuffix = ".ckpt"
)

// DefaultDir returns the default checkpoint directory (~/.nenv/checkpoints/).
func DefaultDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "checkpoints"), nil
}

// FileName names a checkpoint taken at createdAt for a network at step t.
// Names sort chronologically.
func FileName(createdAt time.Time, t int) string {
	return fmt.Sprintf("%s%s-t%07d%s", filePrefix, createdAt.UTC().Format("20060102-150405.000"), t, fileSuffix)
}

// Save writes net to a new checkpoint file in dir and returns its path.
func Save(dir string, net *network.Network, now time.Time, metadata map[string]string) (string, *Header, error) {
	path := filepath.Join(dir, FileName(now, net.TimeStep()))
	header, err := Write(path, net.Export(), now, metadata)
	if err != nil {
		return "", nil, err
	}
	return path, header, nil
}

// Load reads a checkpoint and rebuilds the network it holds.
func Load(path string) (*network.Network, *Header, error) {
	header, snap, err := Read(path)
	if err != nil {
		return nil, nil, err
	}
	net, err := network.Restore(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("restoring %s: %w", filepath.Base(path), err)
	}
	return net, header, nil
}

// Info describes a checkpoint file on disk.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	TimeStep  int       `json:"time_step"`
}

// List scans dir for checkpoint files, newest first. A missing directory
// yields no checkpoints. Files with unreadable headers are skipped.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !isCheckpointFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		header, err := ReadHeader(path)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Path:      path,
			Size:      fi.Size(),
			CreatedAt: header.CreatedAt,
			TimeStep:  header.TimeStep,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return filepath.Base(infos[i].Path) > filepath.Base(infos[j].Path)
	})
	return infos, nil
}

func isCheckpointFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
