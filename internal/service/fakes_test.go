package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository"
)

/************ fake remote ************/

type fakeRemote struct {
	mu    sync.Mutex
	notes map[string]model.Note
	list  []model.Note // overrides notes for FetchAll when set

	allErr error
	oneErr map[string]error
	block  map[string]chan struct{} // FetchOne waits on it (or ctx)
	taken  chan string              // receives the key once FetchOne has read its state

	allCalls atomic.Int32
	oneCalls atomic.Int32
}

var _ repository.RemoteStore = (*fakeRemote)(nil)

func newFakeRemote(notes ...model.Note) *fakeRemote {
	f := &fakeRemote{notes: map[string]model.Note{}, oneErr: map[string]error{}, block: map[string]chan struct{}{}}
	for _, n := range notes {
		f.notes[n.Key] = n
	}
	return f
}

func (f *fakeRemote) put(n model.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[n.Key] = n
}

func (f *fakeRemote) FetchAll(_ context.Context) ([]model.Note, error) {
	f.allCalls.Add(1)
	if f.allErr != nil {
		return nil, f.allErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.list != nil {
		return append([]model.Note(nil), f.list...), nil
	}
	out := make([]model.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, *n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeRemote) FetchOne(ctx context.Context, key string) (*model.Note, error) {
	f.oneCalls.Add(1)
	f.mu.Lock()
	ch := f.block[key]
	err := f.oneErr[key]
	n, ok := f.notes[key]
	taken := f.taken
	f.mu.Unlock()
	if taken != nil {
		taken <- key
	}

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound
	}
	return n.Clone(), nil
}

/************ fake local ************/

type fakeLocal struct {
	mu     sync.Mutex
	stored map[string]model.Note
	extra  []string // duplicate keys injected into FetchAll

	fetchErr  error
	saveErr   map[string]error
	removeErr map[string]error

	minted    []model.Seed
	saves     atomic.Int32
	removes   atomic.Int32
	saveBlock map[string]chan struct{}
}

var _ repository.LocalStore = (*fakeLocal)(nil)

func newFakeLocal(notes ...model.Note) *fakeLocal {
	f := &fakeLocal{
		stored:    map[string]model.Note{},
		saveErr:   map[string]error{},
		removeErr: map[string]error{},
		saveBlock: map[string]chan struct{}{},
	}
	for _, n := range notes {
		f.stored[n.Key] = n
	}
	return f
}

func (f *fakeLocal) FetchAll(_ context.Context) ([]repository.LocalHandle, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.stored))
	for k := range f.stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	keys = append(keys, f.extra...)
	out := make([]repository.LocalHandle, 0, len(keys))
	for _, k := range keys {
		n := f.stored[k]
		out = append(out, &fakeHandle{store: f, note: *n.Clone()})
	}
	return out, nil
}

func (f *fakeLocal) NewHandle(seed model.Seed) repository.LocalHandle {
	f.mu.Lock()
	f.minted = append(f.minted, seed)
	f.mu.Unlock()
	return &fakeHandle{store: f, note: model.Note{Key: seed.Key, Version: seed.Version}}
}

func (f *fakeLocal) get(key string) (model.Note, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.stored[key]
	return n, ok
}

func (f *fakeLocal) mintedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.minted))
	for _, s := range f.minted {
		out = append(out, s.Key)
	}
	sort.Strings(out)
	return out
}

func (f *fakeLocal) mutations() int32 { return f.saves.Load() + f.removes.Load() }

type fakeHandle struct {
	store *fakeLocal
	note  model.Note
}

func (h *fakeHandle) Key() string       { return h.note.Key }
func (h *fakeHandle) Version() int64    { return h.note.Version }
func (h *fakeHandle) Set(n *model.Note) { h.note = *n.Clone() }

func (h *fakeHandle) Save(ctx context.Context) error {
	f := h.store
	f.mu.Lock()
	ch := f.saveBlock[h.note.Key]
	err := f.saveErr[h.note.Key]
	f.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	f.saves.Add(1)
	f.mu.Lock()
	f.stored[h.note.Key] = *h.note.Clone()
	f.mu.Unlock()
	return nil
}

func (h *fakeHandle) Remove(_ context.Context) error {
	f := h.store
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[h.note.Key]; err != nil {
		return err
	}
	f.removes.Add(1)
	delete(f.stored, h.note.Key)
	return nil
}
