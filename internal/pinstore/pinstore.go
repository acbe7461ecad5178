// Package pinstore is an ephemeral keyed store mapping job identifier to
// a six-digit PIN, attempt counter, and expiry. It is gorm/sqlite-backed
// so entries survive a restart; an in-process map would not.
package pinstore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/models"
)

// Verify outcomes.
var (
	ErrNotFound = errors.New("pinstore: pin record not found or expired")
	ErrLocked   = errors.New("pinstore: max attempts exceeded")
)

// Store is a gorm-backed PIN Store.
type Store struct {
	db          *gorm.DB
	retention   time.Duration
	maxAttempts int

	// keyLocks serializes Generate/Verify per job id: gorm's row
	// load-then-save is not itself a compare-and-swap, so two concurrent
	// Verify calls against the same job id could both read a stale
	// attempt count and race past the lockout threshold without it.
	keyLocks sync.Map // job id -> *sync.Mutex
}

// New creates a Store using db for persistence.
func New(db *gorm.DB, retention time.Duration, maxAttempts int) *Store {
	return &Store{db: db, retention: retention, maxAttempts: maxAttempts}
}

func (s *Store) lockFor(jobID string) *sync.Mutex {
	v, _ := s.keyLocks.LoadOrStore(jobID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Generate produces six cryptographically-random decimal digits, stores
// their bcrypt hash with attempts=0 and the configured expiry, overwriting
// any prior entry for jobID. Returns the plaintext PIN (callers must relay
// it out-of-band, e.g. email; the store itself never returns it again).
func (s *Store) Generate(jobID string) (string, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	pin, err := randomDigits(6)
	if err != nil {
		return "", fmt.Errorf("pinstore: generate random digits: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("pinstore: hash pin: %w", err)
	}

	now := time.Now().UTC()
	record := models.PINRecord{
		JobID:     jobID,
		PINHash:   string(hash),
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
	}

	if err := s.db.Save(&record).Error; err != nil {
		return "", fmt.Errorf("pinstore: save record: %w", err)
	}
	return pin, nil
}

// Verify checks candidate against the stored hash for jobID. On a match it
// resets the attempt counter to zero (to allow the full re-download budget)
// and returns ok=true. On mismatch it increments attempts and returns the
// remaining-attempts message. Comparison is constant-time via bcrypt.
func (s *Store) Verify(jobID, candidate string) (ok bool, message string, err error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	var record models.PINRecord
	if err := s.db.First(&record, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, "not found", ErrNotFound
		}
		return false, "", fmt.Errorf("pinstore: load record: %w", err)
	}

	if time.Now().UTC().After(record.ExpiresAt) {
		return false, "not found", ErrNotFound
	}

	if record.Attempts >= s.maxAttempts {
		return false, "locked, re-send email", ErrLocked
	}

	match := bcrypt.CompareHashAndPassword([]byte(record.PINHash), []byte(candidate)) == nil

	if match {
		record.Attempts = 0
		if err := s.db.Save(&record).Error; err != nil {
			return false, "", fmt.Errorf("pinstore: reset attempts: %w", err)
		}
		return true, "ok", nil
	}

	record.Attempts++
	if err := s.db.Save(&record).Error; err != nil {
		return false, "", fmt.Errorf("pinstore: increment attempts: %w", err)
	}

	remaining := s.maxAttempts - record.Attempts
	if remaining <= 0 {
		return false, "locked, re-send email", ErrLocked
	}
	return false, fmt.Sprintf("incorrect pin, %d attempts remaining", remaining), nil
}

// CleanupExpired is a safety sweep; the backing store doesn't self-expire
// rows the way a true TTL cache would, so this removes anything past its
// ExpiresAt.
func (s *Store) CleanupExpired() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now().UTC()).Delete(&models.PINRecord{})
	return res.RowsAffected, res.Error
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}
