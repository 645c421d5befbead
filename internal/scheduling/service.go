package scheduling

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
)

const (
	defaultFanOut      = 4
	requesterListLimit = 100
)

// Service is the engine's public surface: slot listings and bookings over one
// Store, one canonical timezone and one conflict rule.
type Service struct {
	store    Store
	tz       *Normalizer
	calendar *Calendar
	overlap  *OverlapIndex
	slots    *Generator
	locker   redisclient.Locker
	validate *validator.Validate
	cfg      config.Config
	log      zerolog.Logger
}

// NewService wires the engine. locker may be nil, in which case bookings rely
// on the store's per-doctor transaction lock alone.
func NewService(store Store, locker redisclient.Locker, tz *Normalizer, cfg config.Config, log zerolog.Logger) *Service {
	calendar := NewCalendar(store)
	overlap := NewOverlapIndex(store)
	return &Service{
		store:    store,
		tz:       tz,
		calendar: calendar,
		overlap:  overlap,
		slots:    NewGenerator(calendar, overlap, tz),
		locker:   locker,
		validate: validator.New(),
		cfg:      cfg,
		log:      log.With().Str("component", "scheduling").Logger(),
	}
}

func (s *Service) Normalizer() *Normalizer { return s.tz }

func (s *Service) Slots() *Generator { return s.slots }

func (s *Service) initialStatus() AppointmentStatus {
	if AppointmentStatus(s.cfg.InitialStatus) == StatusConfirmed {
		return StatusConfirmed
	}
	return StatusPending
}
