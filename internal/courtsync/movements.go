package courtsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JustJay7/court-sync/internal/cnj"
	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/repository"
	"golang.org/x/text/unicode/norm"
)

// SaveResult counts what SaveMovements stored. Imported stays zero:
// movements are staged as pending and imported later.
type SaveResult struct {
	New      int `json:"new"`
	Imported int `json:"imported"`
}

// MovementHash is the deduplication key of a movement: the SHA-256 of its
// process number, date, code and name after Unicode NFC normalization.
func MovementHash(m courtapi.Movement) string {
	date := ""
	if m.Date != nil {
		date = m.Date.UTC().Format(time.RFC3339)
	}
	key := strings.Join([]string{
		cnj.Normalize(m.ProcessNumber),
		date,
		strings.TrimSpace(m.Code),
		strings.TrimSpace(m.Name),
	}, "|")

	sum := sha256.Sum256([]byte(norm.NFC.String(key)))
	return hex.EncodeToString(sum[:])
}

// SaveMovements stores the movements court has not reported before.
// Replaying the same batch stores nothing.
func (s *Service) SaveMovements(ctx context.Context, movements []courtapi.Movement, court *database.Court) (SaveResult, error) {
	var result SaveResult

	for _, mv := range movements {
		hash := MovementHash(mv)

		exists, err := s.store.MovementHashExists(ctx, hash)
		if err != nil {
			return result, fmt.Errorf("check movement hash: %w", err)
		}
		if exists {
			continue
		}

		row := &database.CourtMovement{
			CourtID:       court.ID,
			ProcessNumber: cnj.Normalize(mv.ProcessNumber),
			MovementDate:  mv.Date,
			Code:          mv.Code,
			Name:          mv.Name,
			Description:   mv.Description,
			Origin:        mv.Origin,
			Hash:          hash,
			Status:        database.MovementPending,
		}

		if mv.Code != "" {
			code, err := s.store.FindOrCreateMovementCode(ctx, court.ID, mv.Code, mv.Name)
			if err != nil {
				return result, fmt.Errorf("resolve movement code %s: %w", mv.Code, err)
			}
			row.MovementCodeID = &code.ID
		}

		if mv.Raw != nil {
			raw, err := json.Marshal(mv.Raw)
			if err != nil {
				return result, fmt.Errorf("encode raw movement: %w", err)
			}
			row.Raw = raw
		}

		created, err := s.store.CreateMovement(ctx, row)
		if err != nil {
			return result, fmt.Errorf("create movement: %w", err)
		}
		if created {
			result.New++
		}
	}

	s.metrics.MovementsStored(court.Name, result.New)
	return result, nil
}

var ErrNoMatchingProcess = errors.New("no process matches the movement's process number")

// ImportMovementToProceeding turns movement into a proceeding of processID,
// or of the process whose number matches the movement's digits when
// processID is nil. A movement without a matching process yields (nil, nil).
// Importing an already imported movement returns its existing proceeding.
func (s *Service) ImportMovementToProceeding(ctx context.Context, movement *database.CourtMovement, processID *uint) (*database.Proceeding, error) {
	if movement.Status == database.MovementImported {
		if movement.ProceedingID == nil {
			return nil, fmt.Errorf("movement %d is imported without a proceeding", movement.ID)
		}
		return s.store.GetProceeding(ctx, *movement.ProceedingID)
	}

	var target uint
	if processID != nil {
		process, err := s.store.GetProcess(ctx, *processID)
		if err != nil {
			return nil, fmt.Errorf("load process %d: %w", *processID, err)
		}
		target = process.ID
	} else {
		process, err := s.store.FindProcessByDigits(ctx, cnj.Digits(movement.ProcessNumber))
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("Movement import skipped, no matching process",
				"movement_id", movement.ID,
				"process_number", movement.ProcessNumber,
			)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("match process: %w", err)
		}
		target = process.ID
	}

	proceeding, err := s.store.ImportMovement(ctx, movement, target)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Movement imported", "movement_id", movement.ID, "process_id", target, "proceeding_id", proceeding.ID)
	return proceeding, nil
}

// ImportError explains why one id of a batch import was not imported.
type ImportError struct {
	MovementID uint   `json:"movement_id"`
	Error      string `json:"error"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportMultipleMovements imports each id in turn. Missing movements and
// movements without a matching process count as failures; the batch always
// runs to the end.
func (s *Service) ImportMultipleMovements(ctx context.Context, ids []uint) ImportResult {
	var result ImportResult

	fail := func(id uint, err error) {
		result.Failed++
		result.Errors = append(result.Errors, ImportError{MovementID: id, Error: err.Error()})
	}

	for _, id := range ids {
		movement, err := s.store.GetMovement(ctx, id)
		if err != nil {
			fail(id, fmt.Errorf("load movement: %w", err))
			continue
		}

		proceeding, err := s.ImportMovementToProceeding(ctx, movement, nil)
		if err != nil {
			fail(id, err)
			continue
		}
		if proceeding == nil {
			fail(id, ErrNoMatchingProcess)
			continue
		}
		result.Imported++
	}

	return result
}

// IgnoreMovement marks a pending movement as not worth importing.
func (s *Service) IgnoreMovement(ctx context.Context, id uint) error {
	if err := s.store.IgnoreMovement(ctx, id); err != nil {
		return fmt.Errorf("ignore movement %d: %w", id, err)
	}
	return nil
}
