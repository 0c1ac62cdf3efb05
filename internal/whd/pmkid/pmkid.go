// Package pmkid implements a bounded PMKID cache backing
// `NoResourcesForPmkidCache` and the `pmkid_list` wire struct: a
// BSSID-keyed store of previously negotiated PMKIDs that lets a
// re-association to a known AP skip the full 802.11i handshake.
//
// Uses GORM over sqlite (AutoMigrate on open, WAL pragmas,
// upsert-on-conflict writes) for the one small table this cache needs;
// it is this module's only storage.
package pmkid

import (
	"context"
	"fmt"
	"net"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// entryModel is the GORM model backing one cached PMKID.
type entryModel struct {
	BSSID      string `gorm:"primaryKey"`
	PMKID      []byte
	LastUsedAt time.Time
}

func (entryModel) TableName() string { return "pmkid_entries" }

// Cache is a bounded BSSID → PMKID store backed by SQLite. Capacity is
// enforced on Insert: the least-recently-used entry is evicted to make
// room rather than silently growing without bound.
type Cache struct {
	db       *gorm.DB
	capacity int
}

// Open initializes (creating if absent) the SQLite-backed PMKID cache at
// path, bounded to capacity entries.
func Open(path string, capacity int) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("whd/pmkid: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, fmt.Errorf("whd/pmkid: migrate: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &Cache{db: db, capacity: capacity}, nil
}

// Insert upserts the PMKID for bssid, evicting the least-recently-used
// entry first if the cache is already at capacity and bssid is new.
func (c *Cache) Insert(ctx context.Context, bssid net.HardwareAddr, pmkidVal []byte) error {
	if len(bssid) != 6 {
		return fmt.Errorf("whd/pmkid: insert: %w", domain.ErrBadArgument)
	}
	if len(pmkidVal) != 16 {
		return fmt.Errorf("whd/pmkid: insert: PMKID must be 16 bytes: %w", domain.ErrBadArgument)
	}

	key := bssid.String()
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entryModel{}).Where("bssid <> ?", key).Count(&count).Error; err != nil {
			return err
		}
		if c.capacity > 0 && count >= int64(c.capacity) {
			if err := evictOldest(tx); err != nil {
				return fmt.Errorf("whd/pmkid: evict: %w", domain.ErrNoResourcesForPmkid)
			}
		}
		model := entryModel{BSSID: key, PMKID: append([]byte(nil), pmkidVal...), LastUsedAt: time.Now()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bssid"}},
			DoUpdates: clause.AssignmentColumns([]string{"pmkid", "last_used_at"}),
		}).Create(&model).Error
	})
}

func evictOldest(tx *gorm.DB) error {
	var victim entryModel
	if err := tx.Order("last_used_at asc").First(&victim).Error; err != nil {
		return err
	}
	return tx.Delete(&victim).Error
}

// Lookup returns the cached PMKID for bssid, touching its last-used
// timestamp on a hit so the LRU eviction order reflects actual use.
func (c *Cache) Lookup(ctx context.Context, bssid net.HardwareAddr) ([]byte, bool, error) {
	if len(bssid) != 6 {
		return nil, false, fmt.Errorf("whd/pmkid: lookup: %w", domain.ErrBadArgument)
	}
	var model entryModel
	err := c.db.WithContext(ctx).Where("bssid = ?", bssid.String()).First(&model).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("whd/pmkid: lookup: %w", err)
	}
	c.db.WithContext(ctx).Model(&model).Update("last_used_at", time.Now())
	return model.PMKID, true, nil
}

// Evict removes bssid's cached PMKID, if any.
func (c *Cache) Evict(ctx context.Context, bssid net.HardwareAddr) error {
	return c.db.WithContext(ctx).Where("bssid = ?", bssid.String()).Delete(&entryModel{}).Error
}

// List returns every cached entry as the firmware-facing pmkid_list wire
// struct, for installing the whole cache via the "pmkid_info" IOVAR.
func (c *Cache) List(ctx context.Context) (*codec.PmkidList, error) {
	var models []entryModel
	if err := c.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("whd/pmkid: list: %w", err)
	}
	list := &codec.PmkidList{Entries: make([]codec.PMKIDEntry, 0, len(models))}
	for _, m := range models {
		mac, err := net.ParseMAC(m.BSSID)
		if err != nil {
			continue
		}
		var entry codec.PMKIDEntry
		copy(entry.BSSID[:], mac)
		copy(entry.PMKID[:], m.PMKID)
		list.Entries = append(list.Entries, entry)
	}
	return list, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
