/**
 * @description
 * PostgreSQL implementation of the `Repository` interface using pgx. All SQL
 * for the billing service lives here.
 *
 * Key features:
 * - The idempotency guarantee for payment creation rests on the unique index
 *   over payments.idempotency_key: the losing insert of a race surfaces as
 *   SQLSTATE 23505 and is translated to ErrDuplicateIdempotencyKey.
 * - Every exactly-once state transition is a single conditional UPDATE with a
 *   RETURNING clause; pgx.ErrNoRows on these paths means the predicate missed
 *   (the transition already happened) and maps to a sentinel error.
 * - Address and line-item snapshots are stored as JSONB.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HeartyTjan/bukafresh-store/internal/domain"
)

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionNotPending    = errors.New("subscription is not pending")
	ErrSubscriptionStateConflict = errors.New("subscription is not in a state that allows this transition")
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrPaymentAlreadyResolved    = errors.New("payment already resolved")
	ErrDuplicateIdempotencyKey   = errors.New("a payment with this idempotency key already exists")
	ErrDeliveryNotFound          = errors.New("delivery not found")
	ErrDeliveryCapReached        = errors.New("monthly delivery cap reached")
	ErrAddressNotFound           = errors.New("no address on file for user")
	ErrUserNotFound              = errors.New("user not found")
)

const subscriptionColumns = `id, user_id, tier, billing_cycle, status, price, next_billing_date, next_delivery_date, delivery_day, deliveries_this_month, max_deliveries_per_month, created_at, updated_at`

const paymentColumns = `id, user_id, subscription_id, amount, currency, status, payment_reference, onepipe_reference, idempotency_key, failure_reason, onepipe_response, created_at, updated_at, paid_at`

const deliveryColumns = `id, user_id, subscription_id, payment_id, tracking_number, status, scheduled_date, actual_delivery_date, delivery_address, items, driver_name, driver_phone, delivery_notes, customer_notes, created_at, updated_at`

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Subscriptions ---

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Tier,
		&sub.BillingCycle,
		&sub.Status,
		&sub.Price,
		&sub.NextBillingDate,
		&sub.NextDeliveryDate,
		&sub.DeliveryDay,
		&sub.DeliveriesThisMonth,
		&sub.MaxDeliveriesPerMonth,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	query := `
        INSERT INTO subscriptions (id, user_id, tier, billing_cycle, status, price, next_billing_date, delivery_day, deliveries_this_month, max_deliveries_per_month)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0)
        RETURNING ` + subscriptionColumns
	created, err := scanSubscription(r.db.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Tier,
		sub.BillingCycle,
		sub.Status,
		sub.Price,
		sub.NextBillingDate,
		sub.DeliveryDay,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) FindSubscriptionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *PostgresRepository) FindLiveSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE user_id = $1 AND status IN ('PENDING', 'ACTIVE', 'PAUSED')
        LIMIT 1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) ActivateSubscription(ctx context.Context, id uuid.UUID, maxDeliveriesPerMonth int, nextDeliveryDate time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'ACTIVE',
            max_deliveries_per_month = $2,
            next_delivery_date = $3,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'PENDING'
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id, maxDeliveriesPerMonth, nextDeliveryDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotPending
		}
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) TransitionSubscriptionStatus(ctx context.Context, id uuid.UUID, from []string, to string) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = $3, updated_at = NOW()
        WHERE id = $1
          AND status = ANY($2)
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionStateConflict
		}
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1 AND status <> 'ACTIVE'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "missing" from "still active" for the caller.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrSubscriptionStateConflict
		}
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateNextBillingDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE subscriptions SET next_billing_date = $2, updated_at = NOW() WHERE id = $1`, id, next)
	return err
}

func (r *PostgresRepository) UpdateNextDeliveryDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE subscriptions SET next_delivery_date = $2, updated_at = NOW() WHERE id = $1`, id, next)
	return err
}

func (r *PostgresRepository) IncrementDeliveriesThisMonth(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE subscriptions
        SET deliveries_this_month = deliveries_this_month + 1, updated_at = NOW()
        WHERE id = $1
          AND deliveries_this_month < max_deliveries_per_month`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryCapReached
	}
	return nil
}

func (r *PostgresRepository) FindSubscriptionsDueForBilling(ctx context.Context, dueBy time.Time) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = 'ACTIVE' AND next_billing_date <= $1
        ORDER BY next_billing_date`
	rows, err := r.db.Query(ctx, query, dueBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *PostgresRepository) ResetMonthlyDeliveryCounts(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET deliveries_this_month = 0, updated_at = NOW() WHERE deliveries_this_month > 0`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Payments ---

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.SubscriptionID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.PaymentReference,
		&p.OnePipeReference,
		&p.IdempotencyKey,
		&p.FailureReason,
		&p.OnePipeResponse,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	query := `
        INSERT INTO payments (id, user_id, subscription_id, amount, currency, status, payment_reference, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + paymentColumns
	created, err := scanPayment(r.db.QueryRow(ctx, query,
		payment.ID,
		payment.UserID,
		payment.SubscriptionID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.PaymentReference,
		payment.IdempotencyKey,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.findPayment(ctx, query, id)
}

func (r *PostgresRepository) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	return r.findPayment(ctx, query, key)
}

func (r *PostgresRepository) FindPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_reference = $1`
	return r.findPayment(ctx, query, reference)
}

func (r *PostgresRepository) findPayment(ctx context.Context, query string, arg interface{}) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) FindPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	return r.findPayments(ctx, query, userID)
}

func (r *PostgresRepository) FindPaymentsBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE subscription_id = $1 ORDER BY created_at DESC`
	return r.findPayments(ctx, query, subscriptionID)
}

func (r *PostgresRepository) findPayments(ctx context.Context, query string, arg interface{}) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ResolvePayment is the single writer for payment terminal states. The
// status = 'PENDING' predicate guarantees exactly one webhook delivery wins;
// every other delivery for the same reference sees ErrPaymentAlreadyResolved.
func (r *PostgresRepository) ResolvePayment(ctx context.Context, reference string, succeeded bool, responseSummary string, failureReason *string) (*domain.Payment, error) {
	query := `
        UPDATE payments
        SET status = CASE WHEN $2 THEN 'PAID' ELSE 'FAILED' END,
            paid_at = CASE WHEN $2 THEN NOW() ELSE paid_at END,
            failure_reason = CASE WHEN $2 THEN failure_reason ELSE $4 END,
            onepipe_response = $3,
            updated_at = NOW()
        WHERE payment_reference = $1
          AND status = 'PENDING'
        RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query, reference, succeeded, responseSummary, failureReason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentAlreadyResolved
		}
		return nil, err
	}
	return p, nil
}

// --- Deliveries ---

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d           domain.Delivery
		addressJSON []byte
		itemsJSON   []byte
	)
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.SubscriptionID,
		&d.PaymentID,
		&d.TrackingNumber,
		&d.Status,
		&d.ScheduledDate,
		&d.ActualDeliveryDate,
		&addressJSON,
		&itemsJSON,
		&d.DriverName,
		&d.DriverPhone,
		&d.DeliveryNotes,
		&d.CustomerNotes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &d.Address); err != nil {
		return nil, fmt.Errorf("failed to decode delivery address snapshot: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &d.Items); err != nil {
		return nil, fmt.Errorf("failed to decode delivery items snapshot: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) CreateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error) {
	addressJSON, err := json.Marshal(delivery.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery address snapshot: %w", err)
	}
	itemsJSON, err := json.Marshal(delivery.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery items snapshot: %w", err)
	}

	query := `
        INSERT INTO deliveries (id, user_id, subscription_id, payment_id, tracking_number, status, scheduled_date, delivery_address, items)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING ` + deliveryColumns
	created, err := scanDelivery(r.db.QueryRow(ctx, query,
		delivery.ID,
		delivery.UserID,
		delivery.SubscriptionID,
		delivery.PaymentID,
		delivery.TrackingNumber,
		delivery.Status,
		delivery.ScheduledDate,
		addressJSON,
		itemsJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert delivery: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindDeliveryByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	d, err := scanDelivery(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepository) FindDeliveryByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE tracking_number = $1`
	d, err := scanDelivery(r.db.QueryRow(ctx, query, trackingNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepository) FindDeliveriesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE user_id = $1 ORDER BY scheduled_date DESC`
	return r.findDeliveries(ctx, query, userID)
}

func (r *PostgresRepository) FindDeliveriesByUserIDAndStatuses(ctx context.Context, userID uuid.UUID, statuses []string) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE user_id = $1 AND status = ANY($2) ORDER BY scheduled_date DESC`
	rows, err := r.db.Query(ctx, query, userID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (r *PostgresRepository) findDeliveries(ctx context.Context, query string, arg interface{}) ([]domain.Delivery, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func collectDeliveries(rows pgx.Rows) ([]domain.Delivery, error) {
	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (r *PostgresRepository) UpdateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error) {
	query := `
        UPDATE deliveries
        SET status = $2,
            scheduled_date = $3,
            actual_delivery_date = $4,
            driver_name = $5,
            driver_phone = $6,
            delivery_notes = $7,
            customer_notes = $8,
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + deliveryColumns
	updated, err := scanDelivery(r.db.QueryRow(ctx, query,
		delivery.ID,
		delivery.Status,
		delivery.ScheduledDate,
		delivery.ActualDeliveryDate,
		delivery.DriverName,
		delivery.DriverPhone,
		delivery.DeliveryNotes,
		delivery.CustomerNotes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return updated, nil
}

// --- Collaborator read models ---

func (r *PostgresRepository) FindAddressesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Address, error) {
	query := `
        SELECT street, city, state, COALESCE(postal_code, ''), COALESCE(instructions, ''), is_default
        FROM addresses
        WHERE user_id = $1
        ORDER BY is_default DESC, created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []domain.Address
	for rows.Next() {
		var a domain.Address
		if err := rows.Scan(&a.Street, &a.City, &a.State, &a.PostalCode, &a.Instructions, &a.IsDefault); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, ErrAddressNotFound
	}
	return addresses, nil
}

func (r *PostgresRepository) FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error) {
	query := `
        SELECT id, first_name, last_name, email, COALESCE(phone, '')
        FROM profiles
        WHERE id = $1`
	var c domain.UserContact
	err := r.db.QueryRow(ctx, query, userID).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &c, nil
}
