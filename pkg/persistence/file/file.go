// Package file provides file-based persistence for cases, work items and documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/casework/pkg/lock"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

const (
	casesDir     = "cases"
	workItemsDir = "work_items"
	documentsDir = "documents"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Persistence stores one JSON file per entity below root.
type Persistence struct {
	root   string
	locker lock.Locker

	// commits are applied one at a time so list reads never see half of one
	commitMu sync.RWMutex
}

// NewPersistence creates a file store rooted at root. A nil locker selects an in-process lock.
func NewPersistence(root string, locker lock.Locker) *Persistence {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}

	return &Persistence{
		root:   strings.Replace(root, "file://", "", 1),
		locker: locker,
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) CaseByID(ctx context.Context, id string) (*models.Case, error) {
	return p.reader(nil).CaseByID(ctx, id)
}

func (p *Persistence) Cases(ctx context.Context, filter persistence.CaseFilter) ([]*models.Case, error) {
	return p.reader(nil).Cases(ctx, filter)
}

func (p *Persistence) WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error) {
	return p.reader(nil).WorkItemByID(ctx, id)
}

func (p *Persistence) WorkItemsByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error) {
	return p.reader(nil).WorkItemsByCase(ctx, caseID)
}

func (p *Persistence) DocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return p.reader(nil).DocumentByID(ctx, id)
}

// Transaction stages every write in memory and flushes them when fn succeeds.
// Case locks taken through the transaction are released after the flush.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	t := &transaction{
		reader: p.reader(map[key][]byte{}),
		locks:  map[string]lock.Unlock{},
	}

	defer t.release(context.WithoutCancel(ctx))

	if err := fn(ctx, t); err != nil {
		return err
	}

	return p.commit(t.staged, t.order)
}

func (p *Persistence) reader(staged map[key][]byte) *reader {
	return &reader{p: p, staged: staged}
}

func (p *Persistence) path(dir, id string) string {
	return filepath.Join(p.root, dir, id+".json")
}

func (p *Persistence) commit(staged map[key][]byte, order []key) error {
	if len(order) == 0 {
		return nil
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	for _, k := range order {
		if err := p.writeAtomic(k.dir, k.id, staged[k]); err != nil {
			return fmt.Errorf("failed to commit %s %s: %w", k.dir, k.id, err)
		}
	}

	return nil
}

func (p *Persistence) writeAtomic(dir, id string, data []byte) error {
	target := filepath.Join(p.root, dir)

	if err := os.MkdirAll(target, 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(target, ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), p.path(dir, id))
}

type key struct {
	dir string
	id  string
}

// reader resolves lookups against staged writes first, then the file system.
type reader struct {
	p      *Persistence
	staged map[key][]byte
}

func (r *reader) load(dir, id string, v any) (bool, error) {
	if !validID.MatchString(id) {
		return false, nil
	}

	data, ok := r.staged[key{dir, id}]
	if !ok {
		var err error

		r.p.commitMu.RLock()
		data, err = os.ReadFile(r.p.path(dir, id))
		r.p.commitMu.RUnlock()

		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		if err != nil {
			return false, err
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("corrupt %s entry %s: %w", dir, id, err)
	}

	return true, nil
}

// ids lists stored and staged ids of one entity kind.
func (r *reader) ids(dir string) ([]string, error) {
	seen := map[string]struct{}{}

	r.p.commitMu.RLock()
	entries, err := os.ReadDir(filepath.Join(r.p.root, dir))
	r.p.commitMu.RUnlock()

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}

		seen[strings.TrimSuffix(name, ".json")] = struct{}{}
	}

	for k := range r.staged {
		if k.dir == dir {
			seen[k.id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

func (r *reader) CaseByID(_ context.Context, id string) (*models.Case, error) {
	var c models.Case

	found, err := r.load(casesDir, id, &c)
	if err != nil {
		return nil, persistence.NewEntityError("CaseByID", "case", id, err)
	}

	if !found {
		return nil, persistence.NewEntityError("CaseByID", "case", id, persistence.ErrCaseNotFound)
	}

	return &c, nil
}

func (r *reader) Cases(ctx context.Context, filter persistence.CaseFilter) ([]*models.Case, error) {
	ids, err := r.ids(casesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	cases := make([]*models.Case, 0, len(ids))

	for _, id := range ids {
		c, err := r.CaseByID(ctx, id)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return nil, err
		}

		if filter.Matches(c) {
			cases = append(cases, c)
		}
	}

	sort.SliceStable(cases, func(i, j int) bool {
		if !cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].CreatedAt.Before(cases[j].CreatedAt)
		}

		return cases[i].ID < cases[j].ID
	})

	return cases, nil
}

func (r *reader) WorkItemByID(_ context.Context, id string) (*models.WorkItem, error) {
	var w models.WorkItem

	found, err := r.load(workItemsDir, id, &w)
	if err != nil {
		return nil, persistence.NewEntityError("WorkItemByID", "work_item", id, err)
	}

	if !found {
		return nil, persistence.NewEntityError("WorkItemByID", "work_item", id, persistence.ErrWorkItemNotFound)
	}

	return &w, nil
}

func (r *reader) WorkItemsByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error) {
	ids, err := r.ids(workItemsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}

	items := make([]*models.WorkItem, 0)

	for _, id := range ids {
		w, err := r.WorkItemByID(ctx, id)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return nil, err
		}

		if w.CaseID == caseID {
			items = append(items, w)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}

		return items[i].ID < items[j].ID
	})

	return items, nil
}

func (r *reader) DocumentByID(_ context.Context, id string) (*models.Document, error) {
	var d models.Document

	found, err := r.load(documentsDir, id, &d)
	if err != nil {
		return nil, persistence.NewEntityError("DocumentByID", "document", id, err)
	}

	if !found {
		return nil, persistence.NewEntityError("DocumentByID", "document", id, persistence.ErrDocumentNotFound)
	}

	return &d, nil
}

type transaction struct {
	*reader

	order []key
	locks map[string]lock.Unlock
}

func (t *transaction) LockCase(ctx context.Context, caseID string) error {
	if _, held := t.locks[caseID]; held {
		return nil
	}

	unlock, err := t.p.locker.Lock(ctx, "case:"+caseID)
	if err != nil {
		return fmt.Errorf("failed to lock case %s: %w", caseID, err)
	}

	t.locks[caseID] = unlock

	return nil
}

func (t *transaction) SaveCase(_ context.Context, c *models.Case) error {
	return t.stage("SaveCase", "case", casesDir, c.ID, c)
}

func (t *transaction) SaveWorkItem(_ context.Context, w *models.WorkItem) error {
	return t.stage("SaveWorkItem", "work_item", workItemsDir, w.ID, w)
}

func (t *transaction) SaveDocument(_ context.Context, d *models.Document) error {
	return t.stage("SaveDocument", "document", documentsDir, d.ID, d)
}

func (t *transaction) stage(op, entity, dir, id string, v any) error {
	if !validID.MatchString(id) {
		return persistence.NewEntityError(op, entity, id, persistence.ErrInvalidID)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return persistence.NewEntityError(op, entity, id, err)
	}

	k := key{dir, id}
	if _, ok := t.staged[k]; !ok {
		t.order = append(t.order, k)
	}

	t.staged[k] = data

	return nil
}

func (t *transaction) release(ctx context.Context) {
	for _, unlock := range t.locks {
		_ = unlock(ctx)
	}
}
