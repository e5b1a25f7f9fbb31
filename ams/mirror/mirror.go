// Package mirror keeps a relational copy of AMS objects in a second database.
// Records are copied over from the primary document store the first time
// they are looked up, and re-copied by Sync after the primary tree changes.
package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// Resource is one mirrored object
type Resource struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Model     string         `gorm:"column:model;index;not null"`
	ParentID  string         `gorm:"column:parent_id;index"`
	Attrs     datatypes.JSON `gorm:"column:attrs"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

// TableName overrides the gorm default
func (Resource) TableName() string { return "mirror_resources" }

// Source is where missing records are hydrated from
type Source interface {
	Find(ctx context.Context, id string) (*storage.Object, error)
	Descendants(ctx context.Context, id string) ([]storage.Object, error)
}

// Mirror is the secondary relational store
type Mirror struct {
	db     *gorm.DB
	source Source
	logger *zap.SugaredLogger
}

// Open opens the mirror database at path
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open mirror database %s", path)
	}
	return db, nil
}

// New migrates the mirror schema and returns a mirror hydrating from source
func New(db *gorm.DB, source Source, log *zap.SugaredLogger) (*Mirror, error) {
	if err := db.AutoMigrate(&Resource{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate mirror schema")
	}
	return &Mirror{db: db, source: source, logger: logger.OrNop(log)}, nil
}

// Find returns the mirrored resource, copying it and its descendants from
// the source when absent. Source errors (errors.ErrNotFound, errors.ErrGone) pass through.
func (m *Mirror) Find(ctx context.Context, id string) (*Resource, error) {
	var res Resource
	err := m.db.WithContext(ctx).First(&res, "id = ?", id).Error
	if err == nil {
		return &res, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(err, "failed to read mirrored %s", id)
	}

	rows, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upsert(m.db.WithContext(ctx), rows); err != nil {
		return nil, errors.Wrapf(err, "failed to hydrate mirror for %s", id)
	}

	m.logger.Debugw("Hydrated mirror from primary store",
		logger.FieldID, id,
		logger.FieldCount, len(rows),
	)
	return &rows[0], nil
}

// Sync replaces the mirrored copy of id and its descendants with the source's
// current tree. Mirrored descendants the source no longer has are deleted.
func (m *Mirror) Sync(ctx context.Context, id string) error {
	rows, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(rows))
	for _, r := range rows {
		current[r.ID] = true
	}

	var dropped int
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members, err := memberIDs(ctx, tx, id)
		if err != nil {
			return err
		}
		var stale []string
		for _, member := range members {
			if !current[member] {
				stale = append(stale, member)
			}
		}
		if len(stale) > 0 {
			if err := tx.Delete(&Resource{}, "id IN ?", stale).Error; err != nil {
				return errors.Wrapf(err, "failed to drop stale mirrored members of %s", id)
			}
		}
		dropped = len(stale)
		if err := upsert(tx, rows); err != nil {
			return errors.Wrapf(err, "failed to sync mirror for %s", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debugw("Synced mirror with primary store",
		logger.FieldID, id,
		logger.FieldCount, len(rows),
		"dropped", dropped,
	)
	return nil
}

// load reads id and its descendants from the source, root first
func (m *Mirror) load(ctx context.Context, id string) ([]Resource, error) {
	root, err := m.source.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	descendants, err := m.source.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := make([]Resource, 0, len(descendants)+1)
	rows = append(rows, fromObject(*root))
	for _, d := range descendants {
		rows = append(rows, fromObject(d))
	}
	return rows, nil
}

func upsert(db *gorm.DB, rows []Resource) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"model", "parent_id", "attrs", "updated_at"}),
	}).Create(&rows).Error
}

// Exists reports whether id is mirrored, without hydrating
func (m *Mirror) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := m.db.WithContext(ctx).Model(&Resource{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "failed to check mirrored %s", id)
	}
	return n > 0, nil
}

// MemberIDs returns the ids of every mirrored descendant of id, nearest first
func (m *Mirror) MemberIDs(ctx context.Context, id string) ([]string, error) {
	return memberIDs(ctx, m.db, id)
}

// Destroy deletes id and its mirrored descendants in one transaction,
// children before the root. Returns errors.ErrNotFound when id is not mirrored.
func (m *Mirror) Destroy(ctx context.Context, id string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root Resource
		if err := tx.First(&root, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NewNotFoundError("mirrored resource %s", id)
			}
			return errors.Wrapf(err, "failed to read mirrored %s", id)
		}

		members, err := memberIDs(ctx, tx, id)
		if err != nil {
			return err
		}
		// Deepest first
		for i := len(members) - 1; i >= 0; i-- {
			if err := tx.Delete(&Resource{}, "id = ?", members[i]).Error; err != nil {
				return errors.Wrapf(err, "failed to delete mirrored %s", members[i])
			}
		}
		if err := tx.Delete(&Resource{}, "id = ?", id).Error; err != nil {
			return errors.Wrapf(err, "failed to delete mirrored %s", id)
		}

		m.logger.Debugw("Destroyed mirrored resource",
			logger.FieldID, id,
			logger.FieldObjectType, root.Model,
			logger.FieldCount, len(members)+1,
		)
		return nil
	})
}

// memberIDs walks parent links breadth first
func memberIDs(ctx context.Context, db *gorm.DB, id string) ([]string, error) {
	var out []string
	frontier := []string{id}
	for len(frontier) > 0 {
		var children []string
		if err := db.WithContext(ctx).Model(&Resource{}).
			Where("parent_id IN ?", frontier).
			Order("created_at, id").
			Pluck("id", &children).Error; err != nil {
			return nil, errors.Wrapf(err, "failed to list mirrored members of %s", id)
		}
		out = append(out, children...)
		frontier = children
	}
	return out, nil
}

func fromObject(obj storage.Object) Resource {
	return Resource{
		ID:        obj.ID,
		Model:     obj.Model,
		ParentID:  obj.ParentID,
		Attrs:     datatypes.JSON(obj.Attrs),
		CreatedAt: obj.CreatedAt,
		UpdatedAt: obj.UpdatedAt,
	}
}
