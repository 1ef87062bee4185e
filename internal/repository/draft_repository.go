package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"miniups-gateway/internal/domain"
)

var ErrDraftNotFound = errors.New("draft not found")

type DraftRepository interface {
	Save(draft *domain.ShipmentDraft) error
	Get(owner, name string) (*domain.ShipmentDraft, error)
	List(ctx context.Context, owner string) ([]*domain.ShipmentDraft, error)
	Delete(owner, name string) error
}

// DiskDraftRepository keeps drafts as JSON files under <base>/<owner>/<name>.
// Both segments are base64url encoded on disk so arbitrary names are safe.
type DiskDraftRepository struct {
	d *diskv.Diskv
}

func NewDraftRepository(basePath string, cacheSizeMax uint64) *DiskDraftRepository {
	return &DiskDraftRepository{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: draftKeyToPath,
		InverseTransform:  draftPathToKey,
		CacheSizeMax:      cacheSizeMax,
	})}
}

func draftKey(owner, name string) string {
	return encodeSegment(owner) + "/" + encodeSegment(name)
}

func draftKeyToPath(key string) *diskv.PathKey {
	owner, name, _ := strings.Cut(key, "/")
	return &diskv.PathKey{
		Path:     []string{owner},
		FileName: name,
	}
}

func draftPathToKey(pathKey *diskv.PathKey) string {
	return strings.Join(pathKey.Path, "/") + "/" + pathKey.FileName
}

func encodeSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func (r *DiskDraftRepository) Save(draft *domain.ShipmentDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := r.d.Write(draftKey(draft.Owner, draft.Name), data); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

func (r *DiskDraftRepository) Get(owner, name string) (*domain.ShipmentDraft, error) {
	return r.read(draftKey(owner, name))
}

func (r *DiskDraftRepository) read(key string) (*domain.ShipmentDraft, error) {
	data, err := r.d.Read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var draft domain.ShipmentDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &draft, nil
}

// List returns the owner's drafts, most recently updated first.
func (r *DiskDraftRepository) List(ctx context.Context, owner string) ([]*domain.ShipmentDraft, error) {
	prefix := encodeSegment(owner) + "/"

	var drafts []*domain.ShipmentDraft
	for key := range r.d.KeysPrefix(prefix, ctx.Done()) {
		draft, err := r.read(key)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].UpdatedAt.Equal(drafts[j].UpdatedAt) {
			return drafts[i].Name < drafts[j].Name
		}
		return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
	})
	return drafts, nil
}

func (r *DiskDraftRepository) Delete(owner, name string) error {
	key := draftKey(owner, name)
	if !r.d.Has(key) {
		return ErrDraftNotFound
	}
	if err := r.d.Erase(key); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
