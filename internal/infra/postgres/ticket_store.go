package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const ticketColumns = `id, order_number, email, name, status, admin, created_at, updated_at`

// TicketStore implements port.TicketStore on Postgres.
type TicketStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewTicketStore creates a store over an open database.
func NewTicketStore(db *sql.DB, logger *zap.Logger) *TicketStore {
	return &TicketStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(&t.ID, &t.OrderNumber, &t.Email, &t.Name, &t.Status, &t.Admin, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *TicketStore) CreateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateTicket")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))

	if ticket.ID == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "ticket id is required"}
	}
	t := *ticket
	if t.Status == "" {
		t.Status = domain.TicketStatusOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+ticketColumns,
		t.ID, t.OrderNumber, t.Email, t.Name, t.Status, t.Admin, t.CreatedAt, t.UpdatedAt,
	)
	created, err := scanTicket(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &domain.ErrConflict{Message: "ticket already exists: " + ticket.ID}
		}
		return nil, s.fail("create ticket", err)
	}
	return created, nil
}

func (s *TicketStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetTicket")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	if err != nil {
		return nil, s.fail("get ticket", err)
	}
	return t, nil
}

func (s *TicketStore) UpdateTicketOrderInfo(ctx context.Context, id string, info domain.OrderInfo) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateTicketOrderInfo")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	return s.updateTicket(ctx, id, `
		UPDATE tickets
		SET order_number = $2, email = $3,
		    name = CASE WHEN $4::text = '' THEN name ELSE $4::text END,
		    updated_at = $5
		WHERE id = $1
		RETURNING `+ticketColumns,
		id, info.OrderNumber, info.Email, info.CustomerName, s.now(),
	)
}

func (s *TicketStore) SetAdmin(ctx context.Context, id string, admin bool) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgres.SetAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id), attribute.Bool("ticket.admin", admin))

	return s.updateTicket(ctx, id, `
		UPDATE tickets SET admin = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+ticketColumns,
		id, admin, s.now(),
	)
}

func (s *TicketStore) updateTicket(ctx context.Context, id, query string, args ...any) (*domain.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	if err != nil {
		return nil, s.fail("update ticket", err)
	}
	return t, nil
}

func (s *TicketStore) AddMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.AddMessage")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", msg.TicketID))

	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	var stored domain.Message
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, ticket_id, sender, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, ticket_id, sender, text, created_at`,
		m.ID, m.TicketID, m.Sender, m.Text, m.CreatedAt,
	).Scan(&stored.ID, &stored.TicketID, &stored.Sender, &stored.Text, &stored.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, &domain.ErrNotFound{Resource: "ticket", ID: msg.TicketID}
		}
		return nil, s.fail("add message", err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return &stored, nil
}

// ListMessages returns the ticket messages oldest first.
func (s *TicketStore) ListMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticketID))

	out := []domain.Message{}
	err := WithTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, ticketID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, ticket_id, sender, text, created_at
			FROM messages WHERE ticket_id = $1
			ORDER BY created_at ASC, id ASC`, ticketID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m domain.Message
			if err := rows.Scan(&m.ID, &m.TicketID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
				return err
			}
			m.CreatedAt = m.CreatedAt.UTC()
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, s.fail("list messages", err)
	}
	return out, nil
}

func (s *TicketStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *TicketStore) fail(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Error("postgres: "+op+" failed", zap.Error(err))
	return &domain.ErrExternalService{Service: "postgres", Err: err}
}
