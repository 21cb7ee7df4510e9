package wire

import (
	"math"
	"time"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
)

var (
	float32bits     = math.Float32bits
	float64bits     = math.Float64bits
	float32frombits = math.Float32frombits
	float64frombits = math.Float64frombits
)

// ViolationSize is the encoded length of a Violation record.
const ViolationSize = ViolationIDWidth + AirlineWidth + FlightNumberWidth +
	4 + 4 + 4 + 8 + 8 + PaymentStatusWidth + 8

// Violation is the notice sent to the violation processor when an aircraft
// breaks a rule of its current phase.
type Violation struct {
	ViolationID      string
	Airline          string
	FlightNumber     string
	FlightType       v1alpha1.FlightType
	SpeedRecorded    float32
	PermissibleSpeed float32
	IssuedAt         time.Time
	FineAmount       float64
	PaymentStatus    string
	DueDate          time.Time
}

var _ Record = (*Violation)(nil)

func (v *Violation) Size() int { return ViolationSize }

func (v *Violation) MarshalBinary() ([]byte, error) {
	e := encoder{buf: make([]byte, ViolationSize)}
	e.string(v.ViolationID, ViolationIDWidth)
	e.string(v.Airline, AirlineWidth)
	e.string(v.FlightNumber, FlightNumberWidth)
	e.int32(int32(v.FlightType))
	e.float32(v.SpeedRecorded)
	e.float32(v.PermissibleSpeed)
	e.int64(unixOrZero(v.IssuedAt))
	e.float64(v.FineAmount)
	e.string(v.PaymentStatus, PaymentStatusWidth)
	e.int64(unixOrZero(v.DueDate))
	return e.buf, nil
}

func (v *Violation) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, ViolationSize); err != nil {
		return err
	}
	d := decoder{buf: data}
	v.ViolationID = d.string(ViolationIDWidth)
	v.Airline = d.string(AirlineWidth)
	v.FlightNumber = d.string(FlightNumberWidth)
	v.FlightType = v1alpha1.FlightType(d.int32())
	v.SpeedRecorded = d.float32()
	v.PermissibleSpeed = d.float32()
	v.IssuedAt = fromUnix(d.int64())
	v.FineAmount = d.float64()
	v.PaymentStatus = d.string(PaymentStatusWidth)
	v.DueDate = fromUnix(d.int64())
	return nil
}

// PaymentConfirmationSize is the encoded length of a PaymentConfirmation record.
const PaymentConfirmationSize = ViolationIDWidth + FlightNumberWidth + 1

// PaymentConfirmation is exchanged between the payment gateway and the
// violation processor. The tower never produces it but shares the layout.
type PaymentConfirmation struct {
	ViolationID  string
	FlightNumber string
	Successful   bool
}

var _ Record = (*PaymentConfirmation)(nil)

func (p *PaymentConfirmation) Size() int { return PaymentConfirmationSize }

func (p *PaymentConfirmation) MarshalBinary() ([]byte, error) {
	e := encoder{buf: make([]byte, PaymentConfirmationSize)}
	e.string(p.ViolationID, ViolationIDWidth)
	e.string(p.FlightNumber, FlightNumberWidth)
	e.bool(p.Successful)
	return e.buf, nil
}

func (p *PaymentConfirmation) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, PaymentConfirmationSize); err != nil {
		return err
	}
	d := decoder{buf: data}
	p.ViolationID = d.string(ViolationIDWidth)
	p.FlightNumber = d.string(FlightNumberWidth)
	p.Successful = d.bool()
	return nil
}

// ViolationClearedSize is the encoded length of a ViolationCleared record.
const ViolationClearedSize = ViolationIDWidth + FlightNumberWidth

// ViolationCleared is sent by the violation processor once the fine for a
// violation has been paid.
type ViolationCleared struct {
	ViolationID  string
	FlightNumber string
}

var _ Record = (*ViolationCleared)(nil)

func (c *ViolationCleared) Size() int { return ViolationClearedSize }

func (c *ViolationCleared) MarshalBinary() ([]byte, error) {
	e := encoder{buf: make([]byte, ViolationClearedSize)}
	e.string(c.ViolationID, ViolationIDWidth)
	e.string(c.FlightNumber, FlightNumberWidth)
	return e.buf, nil
}

func (c *ViolationCleared) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, ViolationClearedSize); err != nil {
		return err
	}
	d := decoder{buf: data}
	c.ViolationID = d.string(ViolationIDWidth)
	c.FlightNumber = d.string(FlightNumberWidth)
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0)
}
