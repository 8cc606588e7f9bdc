package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create inserts an initiated escrow together with its pending session
// intent, so a crashed process can resume or sweep the gateway call.
func (r *EscrowRepository) Create(ctx context.Context, e *models.EscrowPayment, intent *models.PendingIntent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, e, `
			INSERT INTO escrow_payments (gig_id, milestone_id, payer_id, payee_id, gross, fee, net, status, method, external_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'initiated', $8, $9)
			RETURNING *
		`, e.GigID, e.MilestoneID, e.PayerID, e.PayeeID, e.Gross, e.Fee, e.Net, e.Method, e.ExternalRef)
		if err != nil {
			if isUniqueViolation(err) {
				// One non-terminal escrow per milestone.
				return apperror.ErrConflict
			}
			return fmt.Errorf("escrow repository: create: %w", err)
		}

		err = tx.GetContext(ctx, intent, `
			INSERT INTO pending_intents (escrow_id, kind, external_ref, status)
			VALUES ($1, 'session', $2, 'pending')
			RETURNING *
		`, e.ID, intent.ExternalRef)
		if err != nil {
			return fmt.Errorf("escrow repository: create intent: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "escrow", e.ID, nil, models.EscrowStatusInitiated, &e.PayerID)
	})
}

// GetByID returns an escrow payment by id.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	return common.GetByID[models.EscrowPayment](ctx, r.db, "escrow_payments", id, apperror.ErrEscrowNotFound)
}

// GetCurrentByMilestone returns the milestone's non-terminal escrow, if any.
func (r *EscrowRepository) GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error) {
	var e models.EscrowPayment
	err := r.db.GetContext(ctx, &e, `
		SELECT * FROM escrow_payments
		WHERE milestone_id = $1 AND status NOT IN ('released', 'refunded')
		ORDER BY created_at DESC
		LIMIT 1
	`, milestoneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("escrow repository: get current by milestone: %w", err)
	}
	return &e, nil
}

// ListByGig returns every escrow payment of a gig in milestone order.
func (r *EscrowRepository) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.EscrowPayment, error) {
	var payments []models.EscrowPayment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT e.* FROM escrow_payments e
		JOIN milestones m ON m.id = e.milestone_id
		WHERE e.gig_id = $1
		ORDER BY m.idx ASC, e.created_at ASC
	`, gigID)
	return payments, err
}

// ConfirmHeld applies a verified gateway "held" notification. The webhook
// event row makes the handler idempotent: a replayed (external_ref,
// event_type) pair is recorded once and every later delivery is a no-op.
// The bool result reports whether this call applied the transition.
func (r *EscrowRepository) ConfirmHeld(ctx context.Context, externalRef, eventType string) (*models.EscrowPayment, bool, error) {
	var escrow models.EscrowPayment
	applied := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO webhook_events (external_ref, event_type)
			VALUES ($1, $2)
			ON CONFLICT (external_ref, event_type) DO NOTHING
		`, externalRef, eventType)
		if err != nil {
			return fmt.Errorf("escrow repository: record webhook: %w", err)
		}
		inserted, _ := res.RowsAffected()

		err = tx.GetContext(ctx, &escrow, `
			SELECT * FROM escrow_payments WHERE external_ref = $1 FOR UPDATE
		`, externalRef)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrEscrowNotFound
			}
			return err
		}

		if inserted == 0 {
			// Replay: state and audit trail already reflect the event.
			return nil
		}
		if escrow.Status != models.EscrowStatusInitiated {
			return apperror.ErrInvalidTransition
		}

		err = tx.GetContext(ctx, &escrow, `
			UPDATE escrow_payments SET status = 'held', held_at = NOW() WHERE id = $1 RETURNING *
		`, escrow.ID)
		if err != nil {
			return fmt.Errorf("escrow repository: confirm held: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE pending_intents SET status = 'completed', completed_at = NOW()
			WHERE escrow_id = $1 AND kind = 'session' AND status = 'pending'
		`, escrow.ID); err != nil {
			return fmt.Errorf("escrow repository: complete session intent: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (escrow_id, user_id, type, amount)
			VALUES ($1, $2, 'escrow_hold', $3)
		`, escrow.ID, escrow.PayerID, escrow.Gross); err != nil {
			return fmt.Errorf("escrow repository: hold ledger entry: %w", err)
		}
		from := models.EscrowStatusInitiated
		if err := common.InsertStatusHistory(ctx, tx, "escrow", escrow.ID, &from, models.EscrowStatusHeld, nil); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &escrow, applied, nil
}

// Release settles a held escrow to the payee: net to the payee, the fee to
// the platform, milestone paid, and the gig completed when it was the last
// one. payoutRef is the confirmed gateway payout, recorded as a completed
// intent. Double release and release-after-refund fail on the state check.
func (r *EscrowRepository) Release(ctx context.Context, id uuid.UUID, payoutRef string, actorID *uuid.UUID) (*models.EscrowPayment, bool, error) {
	var escrow models.EscrowPayment
	gigCompleted := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &escrow, `SELECT * FROM escrow_payments WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrEscrowNotFound
			}
			return err
		}
		if escrow.Status != models.EscrowStatusHeld {
			return apperror.ErrEscrowNotHeld
		}
		if escrow.Gross != escrow.Fee+escrow.Net {
			return apperror.New(apperror.ErrCodeInvariant, "money_mismatch",
				fmt.Sprintf("escrow %s: gross %d != fee %d + net %d", escrow.ID, escrow.Gross, escrow.Fee, escrow.Net))
		}

		from := escrow.Status
		err = tx.GetContext(ctx, &escrow, `
			UPDATE escrow_payments SET status = 'released', resolved_at = NOW() WHERE id = $1 RETURNING *
		`, id)
		if err != nil {
			return fmt.Errorf("escrow repository: release: %w", err)
		}

		if err := insertMovements(ctx, tx, &escrow, []movement{
			{escrow.PayeeID, models.LedgerEntryRelease, escrow.Net},
			{escrow.PayerID, models.LedgerEntryPlatformFee, escrow.Fee},
		}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_intents (escrow_id, kind, external_ref, status, completed_at)
			VALUES ($1, 'payout', $2, 'completed', NOW())
		`, escrow.ID, payoutRef); err != nil {
			return fmt.Errorf("escrow repository: record payout intent: %w", err)
		}
		if err := common.InsertStatusHistory(ctx, tx, "escrow", escrow.ID, &from, models.EscrowStatusReleased, actorID); err != nil {
			return err
		}

		gigCompleted, err = markMilestonePaid(ctx, tx, escrow.MilestoneID, escrow.GigID, actorID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &escrow, gigCompleted, nil
}

// Refund returns the full gross to the payer from a held escrow and lands
// the milestone back on pending.
func (r *EscrowRepository) Refund(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.EscrowPayment, error) {
	var escrow models.EscrowPayment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &escrow, `SELECT * FROM escrow_payments WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrEscrowNotFound
			}
			return err
		}
		if escrow.Status != models.EscrowStatusHeld {
			return apperror.ErrEscrowNotHeld
		}

		from := escrow.Status
		err = tx.GetContext(ctx, &escrow, `
			UPDATE escrow_payments SET status = 'refunded', resolved_at = NOW() WHERE id = $1 RETURNING *
		`, id)
		if err != nil {
			return fmt.Errorf("escrow repository: refund: %w", err)
		}

		if err := insertMovements(ctx, tx, &escrow, []movement{
			{escrow.PayerID, models.LedgerEntryRefund, escrow.Gross},
		}); err != nil {
			return err
		}
		if err := common.InsertStatusHistory(ctx, tx, "escrow", escrow.ID, &from, models.EscrowStatusRefunded, actorID); err != nil {
			return err
		}

		// The milestone goes back to pending for a fresh attempt.
		_, err = tx.ExecContext(ctx, `
			UPDATE milestones SET status = 'pending', version = version + 1, updated_at = NOW()
			WHERE id = $1
		`, escrow.MilestoneID)
		if err != nil {
			return fmt.Errorf("escrow repository: revert milestone: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "milestone", escrow.MilestoneID, nil, models.MilestoneStatusPending, actorID)
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// MarkDisputed freezes a held escrow while its dispute runs.
func (r *EscrowRepository) MarkDisputed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, actorID uuid.UUID) error {
	var current string
	err := tx.GetContext(ctx, &current, `SELECT status FROM escrow_payments WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrEscrowNotFound
		}
		return err
	}
	if current != models.EscrowStatusHeld {
		return apperror.ErrEscrowNotHeld
	}
	if _, err := tx.ExecContext(ctx, `UPDATE escrow_payments SET status = 'disputed' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("escrow repository: mark disputed: %w", err)
	}
	return common.InsertStatusHistory(ctx, tx, "escrow", id, &current, models.EscrowStatusDisputed, &actorID)
}

// ExecuteVerdict settles a disputed escrow per the admin verdict and closes
// the dispute in the same transaction. splitPayeeGross is the gross share
// awarded to the payee under a split verdict; the platform fee is charged on
// that share only and the payer is refunded the remainder.
func (r *EscrowRepository) ExecuteVerdict(ctx context.Context, disputeID uuid.UUID, verdict string, splitPayeeGross int64, feeBps int64, resolvedBy uuid.UUID, payoutRef string) (*models.EscrowPayment, bool, error) {
	var escrow models.EscrowPayment
	gigCompleted := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var dispute models.Dispute
		err := tx.GetContext(ctx, &dispute, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, disputeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrDisputeNotFound
			}
			return err
		}
		if dispute.Status == models.DisputeStatusResolved {
			return apperror.ErrInvalidTransition
		}

		err = tx.GetContext(ctx, &escrow, `SELECT * FROM escrow_payments WHERE id = $1 FOR UPDATE`, dispute.EscrowID)
		if err != nil {
			return err
		}
		if escrow.Status != models.EscrowStatusDisputed {
			return apperror.ErrInvalidTransition
		}

		var payeeGross int64
		switch verdict {
		case models.VerdictReleaseToPayee:
			payeeGross = escrow.Gross
		case models.VerdictRefundToPayer:
			payeeGross = 0
		case models.VerdictSplit:
			if splitPayeeGross < 0 || splitPayeeGross > escrow.Gross {
				return apperror.New(apperror.ErrCodeValidation, "bad_split", "split amount must be between 0 and the escrowed gross")
			}
			payeeGross = splitPayeeGross
		default:
			return apperror.New(apperror.ErrCodeValidation, "bad_verdict", "unknown dispute verdict")
		}

		feeShare := payeeGross * feeBps / 10000
		payeeNet := payeeGross - feeShare
		payerRefund := escrow.Gross - payeeGross
		if payeeNet+feeShare+payerRefund != escrow.Gross {
			return apperror.New(apperror.ErrCodeInvariant, "money_mismatch",
				fmt.Sprintf("dispute %s: movements do not sum to gross %d", disputeID, escrow.Gross))
		}

		toStatus := models.EscrowStatusReleased
		if payeeGross == 0 {
			toStatus = models.EscrowStatusRefunded
		}
		from := escrow.Status
		err = tx.GetContext(ctx, &escrow, `
			UPDATE escrow_payments SET status = $2, fee = $3, net = $4, resolved_at = NOW()
			WHERE id = $1 RETURNING *
		`, escrow.ID, toStatus, feeShare, payeeNet)
		if err != nil {
			return fmt.Errorf("escrow repository: execute verdict: %w", err)
		}

		movements := make([]movement, 0, 3)
		if payeeNet > 0 {
			movements = append(movements, movement{escrow.PayeeID, models.LedgerEntryRelease, payeeNet})
		}
		if feeShare > 0 {
			movements = append(movements, movement{escrow.PayerID, models.LedgerEntryPlatformFee, feeShare})
		}
		if payerRefund > 0 {
			movements = append(movements, movement{escrow.PayerID, models.LedgerEntryRefund, payerRefund})
		}
		if err := insertMovements(ctx, tx, &escrow, movements); err != nil {
			return err
		}
		if payoutRef != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pending_intents (escrow_id, kind, external_ref, status, completed_at)
				VALUES ($1, 'payout', $2, 'completed', NOW())
			`, escrow.ID, payoutRef); err != nil {
				return fmt.Errorf("escrow repository: record verdict payout: %w", err)
			}
		}
		if err := common.InsertStatusHistory(ctx, tx, "escrow", escrow.ID, &from, toStatus, &resolvedBy); err != nil {
			return err
		}

		// Close the dispute.
		var split *int64
		if verdict == models.VerdictSplit {
			split = &splitPayeeGross
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE disputes SET status = 'resolved', verdict = $2, split_payee_amount = $3,
				resolved_by = $4, resolved_at = NOW()
			WHERE id = $1
		`, disputeID, verdict, split, resolvedBy); err != nil {
			return fmt.Errorf("escrow repository: resolve dispute: %w", err)
		}
		if err := common.InsertStatusHistory(ctx, tx, "dispute", disputeID, &dispute.Status, models.DisputeStatusResolved, &resolvedBy); err != nil {
			return err
		}

		// A non-zero payee award settles the milestone; a full refund sends
		// it back to pending for a fresh attempt.
		if payeeGross > 0 {
			gigCompleted, err = markMilestonePaid(ctx, tx, escrow.MilestoneID, escrow.GigID, &resolvedBy)
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE milestones SET status = 'pending', version = version + 1, updated_at = NOW() WHERE id = $1
		`, escrow.MilestoneID); err != nil {
			return fmt.Errorf("escrow repository: revert disputed milestone: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "milestone", escrow.MilestoneID, nil, models.MilestoneStatusPending, &resolvedBy)
	})
	if err != nil {
		return nil, false, err
	}
	return &escrow, gigCompleted, nil
}

// FailStaleIntents marks pending intents older than the TTL as failed.
func (r *EscrowRepository) FailStaleIntents(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_intents SET status = 'failed', completed_at = NOW()
		WHERE status = 'pending' AND created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("escrow repository: fail stale intents: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListLedger returns the append-only movements of an escrow payment.
func (r *EscrowRepository) ListLedger(ctx context.Context, escrowID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries WHERE escrow_id = $1 ORDER BY created_at ASC
	`, escrowID)
	return entries, err
}

type movement struct {
	userID uuid.UUID
	kind   string
	amount int64
}

func insertMovements(ctx context.Context, tx *sqlx.Tx, escrow *models.EscrowPayment, movements []movement) error {
	for _, m := range movements {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (escrow_id, user_id, type, amount)
			VALUES ($1, $2, $3, $4)
		`, escrow.ID, m.userID, m.kind, m.amount); err != nil {
			return fmt.Errorf("escrow repository: ledger entry %s: %w", m.kind, err)
		}
	}
	return nil
}

// markMilestonePaid settles a milestone after a successful release and
// completes the gig when no unpaid milestones remain.
func markMilestonePaid(ctx context.Context, tx *sqlx.Tx, milestoneID, gigID uuid.UUID, actorID *uuid.UUID) (bool, error) {
	var from string
	if err := tx.GetContext(ctx, &from, `SELECT status FROM milestones WHERE id = $1 FOR UPDATE`, milestoneID); err != nil {
		return false, apperror.ErrMilestoneNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE milestones SET status = 'paid', paid_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, milestoneID); err != nil {
		return false, fmt.Errorf("escrow repository: mark milestone paid: %w", err)
	}
	if err := common.InsertStatusHistory(ctx, tx, "milestone", milestoneID, &from, models.MilestoneStatusPaid, actorID); err != nil {
		return false, err
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining, `
		SELECT COUNT(*) FROM milestones WHERE gig_id = $1 AND status <> 'paid'
	`, gigID); err != nil {
		return false, fmt.Errorf("escrow repository: count remaining milestones: %w", err)
	}
	if remaining > 0 {
		return false, nil
	}

	var postingFrom string
	if err := tx.GetContext(ctx, &postingFrom, `SELECT status FROM postings WHERE id = $1 FOR UPDATE`, gigID); err != nil {
		return false, apperror.ErrPostingNotFound
	}
	if postingFrom != models.PostingStatusInProgress {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE postings SET status = 'completed', updated_at = NOW() WHERE id = $1
	`, gigID); err != nil {
		return false, fmt.Errorf("escrow repository: complete gig: %w", err)
	}
	if err := common.InsertStatusHistory(ctx, tx, "posting", gigID, &postingFrom, models.PostingStatusCompleted, actorID); err != nil {
		return false, err
	}
	return true, nil
}
