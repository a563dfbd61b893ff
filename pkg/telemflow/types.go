package telemflow

import (
	"github.com/ghalamif/TelemFlow/internal/adapters/httpapi"
	"github.com/ghalamif/TelemFlow/internal/app/pipeline"
	"github.com/ghalamif/TelemFlow/internal/app/present"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/app/session"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Sample is one decoded, sequenced reading.
type Sample = domain.Sample

// Event is a session lifecycle notification.
type Event = domain.Event

// EventKind distinguishes started, stopped and fault events.
type EventKind = domain.EventKind

const (
	EventStarted = domain.EventStarted
	EventStopped = domain.EventStopped
	EventFault   = domain.EventFault
)

// Metric names understood by the frame parser.
const (
	MetricVoltage     = domain.MetricVoltage
	MetricCurrent     = domain.MetricCurrent
	MetricTDS         = domain.MetricTDS
	MetricTemperature = domain.MetricTemperature
)

// Transport is a connected device that yields one frame per ReadLine.
type Transport = ports.Transport

// TransportOpener connects a Transport at session start.
type TransportOpener = ports.TransportOpener

// RecordLog durably stores accepted samples.
type RecordLog = ports.RecordLog

// RecordLogOpener creates the RecordLog of a new session.
type RecordLogOpener = ports.RecordLogOpener

// Mirror receives a best-effort copy of each sample.
type Mirror = ports.Mirror

// Observability emits logs and metrics about the pipeline.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Listener receives session events. It must not block.
type Listener = ports.Notifier

// Session describes a running or finished acquisition session.
type Session = session.Session

// Outcome reports why a session ended.
type Outcome = pipeline.Outcome

// State is the acquisition state machine position.
type State = pipeline.State

// Point is one (elapsed seconds, value) pair of a series.
type Point = series.Point

// Image is the latest chart rendering of one view.
type Image = present.Image

// Status is the session summary also served by GET /api/session.
type Status = httpapi.Status

// Errors callers can match with errors.Is.
var (
	ErrTransportFault = domain.ErrTransportFault
	ErrPersistence    = domain.ErrPersistence
	ErrConfiguration  = domain.ErrConfiguration
	ErrStopTimeout    = domain.ErrStopTimeout
	ErrReadTimeout    = ports.ErrReadTimeout
)
