package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"agora/internal/models"

	"gorm.io/gorm"
)

// Entity is a versioned row that can take part in a transaction.
type Entity interface {
	Ref() models.EntityRef
	GetVersion() int64
	SetVersion(version int64)
}

var (
	// ErrNotFound is returned by Tx.Get when a declared entity does not exist.
	ErrNotFound = errors.New("store: entity not found")
	// ErrUndeclaredRead is returned when a body reads outside its read set.
	ErrUndeclaredRead = errors.New("store: entity not declared in read set")
	// ErrNotRead is returned when a body writes an entity it has not read.
	ErrNotRead = errors.New("store: entity must be read before it is written")

	errStale = errors.New("store: snapshot is stale")
)

type snapshot struct {
	entity  Entity
	version int64
}

// Tx is one attempt of a transaction body. Reads are served from the
// database at first access and pinned for the rest of the attempt; writes
// are buffered until commit.
type Tx struct {
	ctx      context.Context
	db       *gorm.DB
	declared map[models.EntityRef]struct{}
	reads    map[models.EntityRef]*snapshot
	writes   map[models.EntityRef]Entity
	deletes  map[models.EntityRef]struct{}
	inserts  []Entity
}

func newTx(ctx context.Context, db *gorm.DB, readSet []models.EntityRef) *Tx {
	declared := make(map[models.EntityRef]struct{}, len(readSet))
	for _, ref := range readSet {
		declared[ref] = struct{}{}
	}
	return &Tx{
		ctx:      ctx,
		db:       db,
		declared: declared,
		reads:    make(map[models.EntityRef]*snapshot, len(readSet)),
		writes:   make(map[models.EntityRef]Entity),
		deletes:  make(map[models.EntityRef]struct{}),
	}
}

// Context returns the context the transaction runs with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Get loads the declared entity ref into dest and records its version.
// A second Get of the same ref returns the pinned copy.
func (tx *Tx) Get(ref models.EntityRef, dest Entity) error {
	if _, ok := tx.declared[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredRead, ref)
	}

	if snap, ok := tx.reads[ref]; ok {
		if snap.entity == nil {
			return ErrNotFound
		}
		return copyEntity(dest, snap.entity)
	}

	err := tx.db.WithContext(tx.ctx).Table(string(ref.Kind)).Where("id = ?", ref.ID).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tx.reads[ref] = &snapshot{}
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ref, err)
	}

	tx.reads[ref] = &snapshot{entity: dest, version: dest.GetVersion()}
	return nil
}

// Put stages an update of an entity read earlier in this attempt.
func (tx *Tx) Put(e Entity) error {
	ref := e.Ref()
	snap, ok := tx.reads[ref]
	if !ok || snap.entity == nil {
		return fmt.Errorf("%w: %s", ErrNotRead, ref)
	}
	if _, gone := tx.deletes[ref]; gone {
		return fmt.Errorf("store: %s is staged for deletion", ref)
	}
	tx.writes[ref] = e
	return nil
}

// Insert stages the creation of a new entity at version 1.
func (tx *Tx) Insert(e Entity) {
	tx.inserts = append(tx.inserts, e)
}

// Delete stages the removal of an entity read earlier in this attempt.
func (tx *Tx) Delete(ref models.EntityRef) error {
	snap, ok := tx.reads[ref]
	if !ok || snap.entity == nil {
		return fmt.Errorf("%w: %s", ErrNotRead, ref)
	}
	delete(tx.writes, ref)
	tx.deletes[ref] = struct{}{}
	return nil
}

// commit applies buffered writes inside one database transaction. Every
// entity that was read is checked against the version seen by Get, in a
// fixed order so concurrent commits lock rows consistently.
func (tx *Tx) commit() error {
	refs := make([]models.EntityRef, 0, len(tx.reads))
	for ref, snap := range tx.reads {
		if snap.entity != nil {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b models.EntityRef) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return tx.db.WithContext(tx.ctx).Transaction(func(gtx *gorm.DB) error {
		for _, ref := range refs {
			snap := tx.reads[ref]

			var res *gorm.DB
			if _, ok := tx.deletes[ref]; ok {
				res = gtx.Where("version = ?", snap.version).Delete(snap.entity)
			} else if e, ok := tx.writes[ref]; ok {
				e.SetVersion(snap.version + 1)
				res = gtx.Model(e).Where("version = ?", snap.version).Select("*").Updates(e)
			} else {
				res = gtx.Table(string(ref.Kind)).
					Where("id = ? AND version = ?", ref.ID, snap.version).
					Update("version", gorm.Expr("version"))
			}

			if res.Error != nil {
				return fmt.Errorf("failed to write %s: %w", ref, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", errStale, ref)
			}
		}

		for _, e := range tx.inserts {
			e.SetVersion(1)
			if err := gtx.Create(e).Error; err != nil {
				return fmt.Errorf("failed to insert %s: %w", e.Ref(), err)
			}
		}
		return nil
	})
}

// written reports the number of staged mutations.
func (tx *Tx) written() int {
	return len(tx.writes) + len(tx.deletes) + len(tx.inserts)
}

func copyEntity(dest, src Entity) error {
	dv := reflect.ValueOf(dest)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Pointer || dv.Type() != sv.Type() {
		return fmt.Errorf("store: cannot read %s into %T", src.Ref(), dest)
	}
	if dv.Pointer() != sv.Pointer() {
		dv.Elem().Set(sv.Elem())
	}
	return nil
}
