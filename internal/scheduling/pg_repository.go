package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// rowsQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Helpers

const doctorColumns = `d.id, d.clinic_id, COALESCE(c.name, ''), d.name, d.specialty`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var clinicID *uuid.UUID

	err := row.Scan(
		&d.ID,
		&clinicID,
		&d.ClinicName,
		&d.Name,
		&d.Specialty,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.ClinicID = clinicID
	return &d, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Location,
		&c.Description,
		&c.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var clinicID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&clinicID,
		&a.RequesterID,
		&a.Start,
		&a.Status,
		&a.Patient.Name,
		&a.Patient.DOB,
		&a.Patient.Phone,
		&a.Patient.Email,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ClinicID = clinicID
	return &a, nil
}

func timeOfDay(t pgtype.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

// likePattern escapes LIKE wildcards in s and wraps it for substring matching.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// searchWords splits a free-text doctor query. A leading Arabic definite
// article is dropped from longer words so "الجلدية" matches "جلدية".
func searchWords(q string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ReplaceAll(q, "،", " ")) {
		if strings.HasPrefix(w, "ال") && len([]rune(w)) > 3 {
			w = strings.TrimPrefix(w, "ال")
		}
		words = append(words, w)
	}
	return words
}

// Interface methods

func (s *PgStore) GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID, weekday Weekday) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM weekly_availability
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_time, end_time
	`, doctorID, int16(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var start, end pgtype.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		windows = append(windows, Window{Start: timeOfDay(start), End: timeOfDay(end)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return windows, nil
}

func (s *PgStore) FindOccupyingAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return findOccupying(ctx, s.pool, doctorID, from, to)
}

func findOccupying(ctx context.Context, q rowsQuerier, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := q.Query(ctx, `
		SELECT start_at
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_at BETWEEN $2 AND $3
		ORDER BY start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return starts, nil
}

func (s *PgStore) ResolveClinic(ctx context.Context, selector string) (*Clinic, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrClinicNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, location, description, phone
		FROM clinics
		WHERE id::text = $1 OR name ILIKE $2
		ORDER BY (id::text = $1) DESC, name
		LIMIT 1
	`, selector, likePattern(selector))
	return scanClinic(row)
}

func (s *PgStore) ResolveDoctor(ctx context.Context, selector string, clinicID *uuid.UUID) (*Doctor, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrDoctorNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		LEFT JOIN clinics c ON c.id = d.clinic_id
		WHERE (d.id::text = $1 OR d.name ILIKE $2)
		  AND ($3::uuid IS NULL OR d.clinic_id = $3)
		ORDER BY (d.id::text = $1) DESC, d.name
		LIMIT 1
	`, selector, likePattern(selector), clinicID)
	return scanDoctor(row)
}

func (s *PgStore) ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ClinicID != nil {
		where = append(where, "d.clinic_id = "+arg(*filter.ClinicID))
	}
	for _, w := range searchWords(filter.Query) {
		p := arg(likePattern(w))
		where = append(where, fmt.Sprintf("(d.name ILIKE %[1]s OR d.specialty ILIKE %[1]s OR c.name ILIKE %[1]s)", p))
	}
	if filter.Weekday != nil {
		where = append(where, "EXISTS (SELECT 1 FROM weekly_availability w WHERE w.doctor_id = d.id AND w.weekday = "+arg(int16(*filter.Weekday))+")")
	}

	sql := `SELECT ` + doctorColumns + ` FROM doctors d LEFT JOIN clinics c ON c.id = d.clinic_id`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY d.name, d.id"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return doctors, nil
}

func (s *PgStore) ListClinics(ctx context.Context) ([]Clinic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, location, description, phone
		FROM clinics
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clinics []Clinic
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		index[c.ID] = len(clinics)
		clinics = append(clinics, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	doctors, err := s.ListDoctors(ctx, DoctorFilter{})
	if err != nil {
		return nil, err
	}
	for _, d := range doctors {
		if d.ClinicID == nil {
			continue
		}
		if i, ok := index[*d.ClinicID]; ok {
			clinics[i].Doctors = append(clinics[i].Doctors, d)
		}
	}

	return clinics, nil
}

const appointmentColumns = `id, doctor_id, clinic_id, requester_id, start_at, status,
	patient_name, COALESCE(to_char(patient_dob, 'YYYY-MM-DD'), ''), patient_phone, patient_email,
	created_at, updated_at`

func (s *PgStore) ListAppointmentsByRequester(ctx context.Context, requesterID string, limit int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1
		ORDER BY start_at DESC
		LIMIT $2
	`, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// WithDoctorLock serializes bookings per doctor with a transaction-scoped
// advisory lock. The lock is released at commit, after the insert is visible,
// so the next holder's conflict re-check sees it.
func (s *PgStore) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doctorID.String()); err != nil {
		return fmt.Errorf("acquire doctor lock: %w", err)
	}

	if err := fn(ctx, &pgBookingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) FindOccupyingAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return findOccupying(ctx, t.tx, doctorID, from, to)
}

func (t *pgBookingTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, clinic_id, requester_id, start_at, status,
			 patient_name, patient_dob, patient_phone, patient_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::date, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.DoctorID, appt.ClinicID, appt.RequesterID, appt.Start, appt.Status,
		appt.Patient.Name, appt.Patient.DOB, appt.Patient.Phone, appt.Patient.Email,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgBookingTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.AggregateID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
