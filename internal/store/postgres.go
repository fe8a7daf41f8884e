package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// Migrate creates any missing tables and indexes.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const paymentColumns = `p.id, p.invoice_id, p.payer_id, p.amount, p.method, p.txn_ref, p.proof_path,
	p.proof_ocr_text, p.proof_ocr_json, p.proof_ocr_confidence, p.status, p.verified_by, p.verified_at, p.created_at`

const invoiceSelect = `SELECT i.id, i.fee_cycle_id, fc.class_id, i.member_id, i.amount, i.status
	FROM invoices i JOIN fee_cycles fc ON fc.id = i.fee_cycle_id`

const rowSelect = `SELECT p.id, p.invoice_id, p.amount, p.status, p.method, p.txn_ref, p.proof_path, p.created_at,
	u.name, u.email, i.amount, i.status, fc.id, fc.name, v.name`

const rowJoins = ` FROM payments p
	JOIN invoices i ON i.id = p.invoice_id
	JOIN fee_cycles fc ON fc.id = i.fee_cycle_id
	JOIN class_members cm ON cm.id = p.payer_id
	JOIN users u ON u.id = cm.user_id
	LEFT JOIN users v ON v.id = p.verified_by`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var method, status string
	var ocrJSON []byte
	err := row.Scan(&p.ID, &p.InvoiceID, &p.PayerID, &p.Amount, &method, &p.TxnRef, &p.ProofPath,
		&p.OCRText, &ocrJSON, &p.OCRConfidence, &status, &p.VerifiedBy, &p.VerifiedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Method = domain.Method(method)
	if len(ocrJSON) > 0 {
		p.OCRJSON = json.RawMessage(ocrJSON)
	}
	if p.Status, err = domain.ParsePaymentStatus(status); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CycleID, &inv.ClassID, &inv.MemberID, &inv.Amount, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inv.Status, err = domain.ParseInvoiceStatus(status); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanRow(rows pgx.Row, extra ...any) (models.PaymentRow, error) {
	var r models.PaymentRow
	var status, method, invStatus string
	dest := []any{&r.ID, &r.InvoiceID, &r.Amount, &status, &method, &r.TxnRef, &r.ProofPath, &r.CreatedAt,
		&r.PayerName, &r.PayerEmail, &r.InvoiceAmount, &invStatus, &r.CycleID, &r.CycleName, &r.VerifiedByName}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return r, err
	}
	r.Status = domain.PaymentStatus(status)
	r.Method = domain.Method(method)
	r.InvoiceStatus = domain.InvoiceStatus(invStatus)
	return r, nil
}

// filter accumulates numbered WHERE conditions. Each cond carries one %d
// for its placeholder.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func (f *filter) dates(column string, from, to *time.Time) {
	if from != nil {
		f.add(column+" >= $%d", *from)
	}
	if to != nil {
		f.add(column+" < $%d", to.AddDate(0, 0, 1))
	}
}

func (s *Postgres) Member(ctx context.Context, classID, userID int64) (*domain.Member, error) {
	var m domain.Member
	var role string
	err := s.Db.QueryRow(ctx,
		`SELECT cm.id, cm.class_id, cm.user_id, cm.role, u.name, u.email
		FROM class_members cm JOIN users u ON u.id = cm.user_id
		WHERE cm.class_id = $1 AND cm.user_id = $2`,
		classID, userID).Scan(&m.ID, &m.ClassID, &m.UserID, &role, &m.Name, &m.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load member: %w", err)
	}
	m.Role = domain.Role(role)
	return &m, nil
}

func (s *Postgres) InvoiceInClass(ctx context.Context, classID, invoiceID int64) (*domain.Invoice, error) {
	return scanInvoice(s.Db.QueryRow(ctx, invoiceSelect+" WHERE i.id = $1 AND fc.class_id = $2", invoiceID, classID))
}

func (s *Postgres) PaymentInClass(ctx context.Context, classID, paymentID int64) (*domain.Payment, error) {
	return scanPayment(s.Db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p
		JOIN invoices i ON i.id = p.invoice_id
		JOIN fee_cycles fc ON fc.id = i.fee_cycle_id
		WHERE p.id = $1 AND fc.class_id = $2`,
		paymentID, classID))
}

func (s *Postgres) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	return scanPayment(s.Db.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payments p WHERE p.id = $1", id))
}

func (s *Postgres) CreatePayment(ctx context.Context, p *domain.Payment) error {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Same lock order as WithPaymentLock: invoice first.
	inv, err := scanInvoice(tx.QueryRow(ctx, invoiceSelect+" WHERE i.id = $1 FOR UPDATE OF i", p.InvoiceID))
	if err != nil {
		return fmt.Errorf("lock invoice: %w", err)
	}

	p.Status = domain.PaymentSubmitted
	err = tx.QueryRow(ctx,
		`INSERT INTO payments (invoice_id, payer_id, amount, method, txn_ref, proof_path, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		p.InvoiceID, p.PayerID, p.Amount, string(p.Method), p.TxnRef, p.ProofPath, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("insert payment: %w", ErrNotFound)
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if next := domain.InvoiceOnSubmit(inv.Status); next != inv.Status {
		if _, err := tx.Exec(ctx, "UPDATE invoices SET status = $1 WHERE id = $2", string(next), inv.ID); err != nil {
			return fmt.Errorf("advance invoice: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *Postgres) SetProof(ctx context.Context, paymentID int64, path string) error {
	tag, err := s.Db.Exec(ctx, "UPDATE payments SET proof_path = $1, updated_at = NOW() WHERE id = $2", path, paymentID)
	if err != nil {
		return fmt.Errorf("set proof: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListPayments(ctx context.Context, pf models.PaymentFilter) ([]models.PaymentRow, error) {
	var f filter
	f.add("fc.class_id = $%d", pf.ClassID)
	if pf.Status != "" {
		f.add("p.status = $%d", string(pf.Status))
	}
	if pf.CycleID != 0 {
		f.add("i.fee_cycle_id = $%d", pf.CycleID)
	}
	if pf.PayerID != 0 {
		f.add("p.payer_id = $%d", pf.PayerID)
	}
	f.dates("p.created_at", pf.From, pf.To)

	rows, err := s.Db.Query(ctx, rowSelect+rowJoins+f.where()+" ORDER BY p.created_at DESC, p.id DESC", f.args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []models.PaymentRow{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) PaymentDetail(ctx context.Context, classID, paymentID int64) (*models.PaymentDetail, error) {
	var d models.PaymentDetail
	row := s.Db.QueryRow(ctx,
		rowSelect+", p.verified_at, p.proof_ocr_text, p.proof_ocr_confidence"+rowJoins+
			" WHERE p.id = $1 AND fc.class_id = $2",
		paymentID, classID)
	r, err := scanRow(row, &d.VerifiedAt, &d.OCRText, &d.OCRConfidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load payment detail: %w", err)
	}
	d.PaymentRow = r
	return &d, nil
}

func (s *Postgres) SumIncome(ctx context.Context, sf models.SummaryFilter) (int64, error) {
	var f filter
	f.add("fc.class_id = $%d", sf.ClassID)
	f.add("p.status = $%d", string(domain.PaymentVerified))
	if sf.CycleID != 0 {
		f.add("i.fee_cycle_id = $%d", sf.CycleID)
	}
	f.dates("p.created_at", sf.From, sf.To)

	var total int64
	err := s.Db.QueryRow(ctx,
		`SELECT COALESCE(SUM(p.amount), 0)::BIGINT FROM payments p
		JOIN invoices i ON i.id = p.invoice_id
		JOIN fee_cycles fc ON fc.id = i.fee_cycle_id`+f.where(),
		f.args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum income: %w", err)
	}
	return total, nil
}

func (s *Postgres) SumExpense(ctx context.Context, sf models.SummaryFilter) (int64, error) {
	var f filter
	f.add("e.class_id = $%d", sf.ClassID)
	if sf.CycleID != 0 {
		f.add("e.fee_cycle_id = $%d", sf.CycleID)
	}
	f.dates("e.created_at", sf.From, sf.To)

	var total int64
	err := s.Db.QueryRow(ctx, "SELECT COALESCE(SUM(e.amount), 0)::BIGINT FROM expenses e"+f.where(), f.args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum expense: %w", err)
	}
	return total, nil
}

// WithPaymentLock runs fn inside a READ COMMITTED transaction holding row
// locks on the invoice and then the payment. Under READ COMMITTED the reads
// taken after each lock see the latest committed state, which is the
// optimistic re-check the engine relies on.
func (s *Postgres) WithPaymentLock(ctx context.Context, paymentID int64, fn LockedFunc) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Resolve the invoice; a payment never moves between invoices.
	var invoiceID int64
	if err := tx.QueryRow(ctx, "SELECT invoice_id FROM payments WHERE id = $1", paymentID).Scan(&invoiceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("resolve invoice: %w", err)
	}

	// 2. Deterministic locking: invoice, then payment.
	inv, err := scanInvoice(tx.QueryRow(ctx, invoiceSelect+" WHERE i.id = $1 FOR UPDATE OF i", invoiceID))
	if err != nil {
		return fmt.Errorf("lock invoice: %w", err)
	}
	p, err := scanPayment(tx.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payments p WHERE p.id = $1 FOR UPDATE", paymentID))
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}

	// 3. Apply and commit.
	if err := fn(ctx, &pgTx{tx: tx}, p, inv); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SavePayment(ctx context.Context, p *domain.Payment) error {
	var ocrJSON any
	if len(p.OCRJSON) > 0 {
		ocrJSON = string(p.OCRJSON)
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE payments SET status = $1, verified_by = $2, verified_at = $3,
		proof_ocr_text = $4, proof_ocr_json = $5, proof_ocr_confidence = $6, updated_at = NOW()
		WHERE id = $7`,
		string(p.Status), p.VerifiedBy, p.VerifiedAt, p.OCRText, ocrJSON, p.OCRConfidence, p.ID)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (t *pgTx) VerifiedTotal(ctx context.Context, invoiceID int64) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0)::BIGINT FROM payments WHERE invoice_id = $1 AND status = $2",
		invoiceID, string(domain.PaymentVerified)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum verified: %w", err)
	}
	return total, nil
}

func (t *pgTx) SaveInvoiceStatus(ctx context.Context, invoiceID int64, status domain.InvoiceStatus) error {
	if _, err := t.tx.Exec(ctx, "UPDATE invoices SET status = $1 WHERE id = $2", string(status), invoiceID); err != nil {
		return fmt.Errorf("save invoice status: %w", err)
	}
	return nil
}

// Seed bulk inserts f with CopyFrom and moves each id sequence past the
// inserted ids. It runs in one transaction; existing rows with the same ids
// make it fail as a whole.
func (s *Postgres) Seed(ctx context.Context, f Fixtures) error {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	tables := []struct {
		name    string
		columns []string
		rows    [][]any
	}{
		{"users", []string{"id", "name", "email"}, nil},
		{"classes", []string{"id", "name"}, nil},
		{"class_members", []string{"id", "class_id", "user_id", "role", "joined_at"}, nil},
		{"fee_cycles", []string{"id", "class_id", "name", "amount_per_member"}, nil},
		{"invoices", []string{"id", "fee_cycle_id", "member_id", "amount", "status"}, nil},
		{"expenses", []string{"id", "class_id", "fee_cycle_id", "amount", "description", "created_at"}, nil},
	}
	for _, u := range f.Users {
		tables[0].rows = append(tables[0].rows, []any{u.ID, u.Name, u.Email})
	}
	for _, c := range f.Classes {
		tables[1].rows = append(tables[1].rows, []any{c.ID, c.Name})
	}
	for _, m := range f.Members {
		tables[2].rows = append(tables[2].rows, []any{m.ID, m.ClassID, m.UserID, string(m.Role), now})
	}
	for _, c := range f.Cycles {
		tables[3].rows = append(tables[3].rows, []any{c.ID, c.ClassID, c.Name, c.AmountPerMember})
	}
	for _, inv := range f.Invoices {
		status := inv.Status
		if status == "" {
			status = domain.InvoiceUnpaid
		}
		tables[4].rows = append(tables[4].rows, []any{inv.ID, inv.CycleID, inv.MemberID, inv.Amount, string(status)})
	}
	for _, e := range f.Expenses {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		tables[5].rows = append(tables[5].rows, []any{e.ID, e.ClassID, e.CycleID, e.Amount, e.Description, created})
	}

	for _, t := range tables {
		if len(t.rows) == 0 {
			continue
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows)); err != nil {
			return fmt.Errorf("copy %s: %w", t.name, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT MAX(id) FROM %s))", t.name, t.name)); err != nil {
			return fmt.Errorf("advance %s sequence: %w", t.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}
