package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type seedDoctor struct {
	Name      string
	Specialty string
	Days      []scheduling.Weekday
	Start     string
	End       string
}

type seedClinic struct {
	Name        string
	Location    string
	Description string
	Phone       string
	Doctors     []seedDoctor
}

var referenceClinics = []seedClinic{
	{
		Name:        "عيادة الأسنان",
		Location:    "الطابق الثاني، الجناح أ",
		Description: "نقدم جميع خدمات العناية بالأسنان واللثة.",
		Phone:       "011-1234567",
		Doctors: []seedDoctor{
			{Name: "د. سارة محمد", Specialty: "أسنان", Days: []scheduling.Weekday{scheduling.Tuesday, scheduling.Thursday}, Start: "10:00", End: "18:00"},
		},
	},
	{
		Name:        "عيادة الأطفال",
		Location:    "الطابق الأول، الجناح ب",
		Description: "رعاية صحية شاملة للأطفال من جميع الأعمار.",
		Phone:       "011-1234567",
		Doctors: []seedDoctor{
			{Name: "د. خالد حسن", Specialty: "أطفال", Days: []scheduling.Weekday{scheduling.Saturday, scheduling.Sunday, scheduling.Monday}, Start: "12:00", End: "20:00"},
		},
	},
	{
		Name:        "عيادة الجلدية",
		Location:    "الطابق الثالث، الجناح ج",
		Description: "نقدم أرقى الخدمات التجميلية والعلاجية للجلد.",
		Phone:       "011-1234567",
		Doctors: []seedDoctor{
			{Name: "د. أحمد علي", Specialty: "جلدية", Days: []scheduling.Weekday{scheduling.Sunday, scheduling.Monday, scheduling.Wednesday}, Start: "09:00", End: "17:00"},
		},
	},
}

var fakeSpecialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type Seeder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func (s *Seeder) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE appointments, weekly_availability, doctors, clinics, event_logs RESTART IDENTITY
	`)
	if err == nil {
		s.log.Info().Msg("existing scheduling data removed")
	}
	return err
}

// SeedReference inserts the reference clinics once; clinics that already
// exist by name are left untouched.
func (s *Seeder) SeedReference(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range referenceClinics {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clinics WHERE name = $1)`, c.Name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			s.log.Info().Str("clinic", c.Name).Msg("clinic already seeded, skipping")
			continue
		}

		clinicID := uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, location, description, phone)
			VALUES ($1, $2, $3, $4, $5)
		`, clinicID, c.Name, c.Location, c.Description, c.Phone); err != nil {
			return err
		}

		for _, d := range c.Doctors {
			if err := insertDoctor(ctx, tx, clinicID, d); err != nil {
				return fmt.Errorf("doctor %s: %w", d.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info().Int("clinics", len(referenceClinics)).Msg("reference clinics seeded")
	return nil
}

// SeedFakeDoctors adds count generated doctors spread over the existing
// clinics, each with two to four weekday windows.
func (s *Seeder) SeedFakeDoctors(ctx context.Context, count int) error {
	clinicIDs, err := s.clinicIDs(ctx)
	if err != nil {
		return err
	}
	if len(clinicIDs) == 0 {
		return fmt.Errorf("no clinics to attach doctors to")
	}

	faker := gofakeit.New(0)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		if err := insertDoctor(ctx, tx, clinicIDs[faker.Number(0, len(clinicIDs)-1)], fakeDoctor(faker)); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info().Int("doctors", count).Msg("generated doctors seeded")
	return nil
}

func fakeDoctor(faker *gofakeit.Faker) seedDoctor {
	startHour := faker.Number(8, 13)
	length := faker.Number(4, 8)

	days := []scheduling.Weekday{
		scheduling.Monday, scheduling.Tuesday, scheduling.Wednesday, scheduling.Thursday,
		scheduling.Friday, scheduling.Saturday, scheduling.Sunday,
	}
	faker.ShuffleAnySlice(days)
	days = days[:faker.Number(2, 4)]

	return seedDoctor{
		Name:      "Dr. " + faker.Name(),
		Specialty: fakeSpecialties[faker.Number(0, len(fakeSpecialties)-1)],
		Days:      days,
		Start:     fmt.Sprintf("%02d:00", startHour),
		End:       fmt.Sprintf("%02d:%02d", startHour+length, 30*faker.Number(0, 1)),
	}
}

func (s *Seeder) clinicIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM clinics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertDoctor(ctx context.Context, tx pgx.Tx, clinicID uuid.UUID, d seedDoctor) error {
	window, err := d.window()
	if err != nil {
		return err
	}

	doctorID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO doctors (id, clinic_id, name, specialty)
		VALUES ($1, $2, $3, $4)
	`, doctorID, clinicID, d.Name, d.Specialty); err != nil {
		return err
	}

	for _, day := range d.Days {
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (doctor_id, weekday, start_time, end_time)
			VALUES ($1, $2, $3::time, $4::time)
		`, doctorID, int16(day), window.Start.String(), window.End.String()); err != nil {
			return err
		}
	}
	return nil
}

func (d seedDoctor) window() (scheduling.Window, error) {
	start, err := scheduling.ParseTimeOfDay(d.Start)
	if err != nil {
		return scheduling.Window{}, err
	}
	end, err := scheduling.ParseTimeOfDay(d.End)
	if err != nil {
		return scheduling.Window{}, err
	}
	w := scheduling.Window{Start: start, End: end}
	if !w.Valid() {
		return scheduling.Window{}, fmt.Errorf("window %s ends before it starts", w)
	}
	return w, nil
}
