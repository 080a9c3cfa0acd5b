package packhttp

import (
	"context"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/respack/internal/health"
	"github.com/keithlinneman/respack/internal/xerrors"
	"github.com/keithlinneman/respack/resource"
)

// Source records where the served pack came from.
type Source string

const (
	SourceFile  Source = "file"
	SourceStore Source = "store"
)

// Snapshot is one loaded pack. It is never mutated after Set.
type Snapshot struct {
	Name      string
	SHA256    string
	Source    Source
	Container *resource.Container
	FS        fs.FS
	LoadedAt  time.Time
}

// Holder owns the active snapshot; readers never block a swap.
type Holder struct {
	active atomic.Pointer[Snapshot]
}

func NewHolder() *Holder { return &Holder{} }

// Set installs s. FS and LoadedAt are filled in when empty.
func (h *Holder) Set(s Snapshot) {
	cp := s
	if cp.FS == nil && cp.Container != nil {
		cp.FS = cp.Container.FS()
	}
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	h.active.Store(&cp)
}

func (h *Holder) Get() (*Snapshot, bool) {
	s := h.active.Load()
	return s, s != nil && s.Container != nil
}

// PackName implements httpmw.PackInfo.
func (h *Holder) PackName() string {
	if s := h.active.Load(); s != nil {
		return s.Name
	}
	return ""
}

// PackSHA256 implements httpmw.PackInfo.
func (h *Holder) PackSHA256() string {
	if s := h.active.Load(); s != nil {
		return s.SHA256
	}
	return ""
}

// ReadyCheck fails until a pack is loaded.
func (h *Holder) ReadyCheck() health.CheckFunc {
	return func(context.Context) error {
		if _, ok := h.Get(); !ok {
			return xerrors.New("no pack loaded")
		}
		return nil
	}
}
