package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userRecord is the persisted form of a Credential. The username index is
// deliberately not unique.
type userRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"index;size:64;not null"`
	Password  string `gorm:"size:64;not null"`
	Enabled   bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRecord) TableName() string {
	return "onvif_users"
}

func (r userRecord) credential() Credential {
	return Credential{Username: r.Username, Password: r.Password, Enabled: r.Enabled}
}

// SQLStore keeps credentials in a SQL database through gorm.
type SQLStore struct {
	db       *gorm.DB
	maxUsers int
}

// Open connects to the database selected by driver and migrates the users
// table. A sqlite dsn is a file path, created if needed.
func Open(driver, dsn string, maxUsers int) (*SQLStore, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s credential database: %w", driver, err)
	}

	if err := db.AutoMigrate(&userRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential database: %w", err)
	}

	return &SQLStore{db: db, maxUsers: maxUsers}, nil
}

// Find returns the oldest credential with the given username.
func (s *SQLStore) Find(ctx context.Context, username string) (*Credential, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	c := rec.credential()
	return &c, nil
}

// Add inserts an enabled user.
func (s *SQLStore) Add(ctx context.Context, username, password string) error {
	if err := Validate(username, password); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.maxUsers > 0 {
			var count int64
			if err := tx.Model(&userRecord{}).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to count users: %w", err)
			}
			if count >= int64(s.maxUsers) {
				return fmt.Errorf("%w: limit is %d users", ErrStoreFull, s.maxUsers)
			}
		}
		rec := &userRecord{Username: username, Password: password, Enabled: true}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// SetEnabled updates every row with the given username.
func (s *SQLStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	res := s.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("username = ?", username).
		Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns all credentials in insertion order.
func (s *SQLStore) List(ctx context.Context) ([]Credential, error) {
	var recs []userRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]Credential, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.credential())
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
