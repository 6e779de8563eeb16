package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// coordDTO accepts only points on the Korean peninsula.
type coordDTO struct {
	Lat float64 `json:"lat" validate:"gte=33,lte=39"`
	Lng float64 `json:"lng" validate:"gte=124,lte=132"`
}

func (c coordDTO) model() model.Coordinate { return model.Coordinate{Lat: c.Lat, Lng: c.Lng} }

func polyline(in []coordDTO) model.Polyline {
	out := make(model.Polyline, len(in))
	for i, c := range in {
		out[i] = c.model()
	}
	return out
}

type candidatesReq struct {
	Polyline         []coordDTO `json:"polyline" validate:"required,min=2,max=20000,dive"`
	Category         string     `json:"category" validate:"required"`
	OriginalDuration float64    `json:"originalDuration" validate:"gte=0"`
	OriginalDistance float64    `json:"originalDistance" validate:"gte=0"`
	MaxDetourMinutes int        `json:"maxDetourMinutes" validate:"gte=0,lte=180"`
	Fuel             string     `json:"fuel" validate:"omitempty,oneof=gasoline premium diesel lpg"`
}

type recommendReq struct {
	Origin           *coordDTO  `json:"origin" validate:"required_without=Polyline"`
	Destination      *coordDTO  `json:"destination" validate:"required_without=Polyline"`
	Polyline         []coordDTO `json:"polyline" validate:"omitempty,min=2,max=20000,dive"`
	OriginalDuration float64    `json:"originalDuration" validate:"gte=0"`
	OriginalDistance float64    `json:"originalDistance" validate:"gte=0"`
	Category         string     `json:"category" validate:"required"`
	MaxDetourMinutes int        `json:"maxDetourMinutes" validate:"gte=0,lte=180"`
	Fuel             string     `json:"fuel" validate:"omitempty,oneof=gasoline premium diesel lpg"`
	Limit            int        `json:"limit" validate:"gte=0,lte=50"`
}

type nearbyReq struct {
	coordDTO
	RadiusM float64 `validate:"gt=0,lte=20000"`
}

type matchQueryDTO struct {
	Name string `json:"name" validate:"required,max=200"`
	coordDTO
}

type matchReq struct {
	Queries []matchQueryDTO `json:"queries" validate:"required,min=1,max=200,dive"`
}

type refreshReq struct {
	Regions []string `json:"regions" validate:"max=64,dive,alphanum,max=8"`
}

// errInvalid marks request validation failures so handlers answer 400.
var errInvalid = errors.New("invalid request")

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", errInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", errInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return field + " is required when polyline is absent"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s allows at most %s", field, fe.Param())
	case "gte", "lte", "gt":
		return fmt.Sprintf("%s is out of range (%s %s)", field, fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
