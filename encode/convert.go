// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/z5labs/ally/pipeline"
)

// Converter converts primitive values into their external string form.
type Converter interface {
	AsString(value any, t Type) (string, error)
}

// ConverterFunc is a func variant of the [Converter] interface.
type ConverterFunc func(any, Type) (string, error)

// AsString implements the [Converter] interface.
func (f ConverterFunc) AsString(value any, t Type) (string, error) {
	return f(value, t)
}

// Time layouts used by [DefaultConverter].
const (
	LayoutTime     = "15:04:05"
	LayoutDate     = "2006-01-02"
	LayoutDateTime = "2006-01-02 15:04:05"
)

// DefaultConverter converts Go primitives and [time.Time] values.
type DefaultConverter struct{}

// AsString implements the [Converter] interface.
func (DefaultConverter) AsString(value any, t Type) (string, error) {
	if value == nil {
		return "", nil
	}
	switch t.Category {
	case Boolean:
		b, ok := value.(bool)
		if !ok {
			return "", mismatch(value, t)
		}
		return strconv.FormatBool(b), nil
	case Integer:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return fmt.Sprint(v), nil
		}
		return "", mismatch(value, t)
	case Number, Percentage:
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return fmt.Sprint(v), nil
		}
		return "", mismatch(value, t)
	case String:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
		return "", mismatch(value, t)
	case Time, Date, DateTime:
		tm, ok := value.(time.Time)
		if !ok {
			return "", mismatch(value, t)
		}
		return tm.Format(layouts[t.Category]), nil
	}
	return "", pipeline.Develf("cannot convert %v to string", t)
}

var layouts = map[Category]string{
	Time:     LayoutTime,
	Date:     LayoutDate,
	DateTime: LayoutDateTime,
}

func mismatch(value any, t Type) error {
	return pipeline.Develf("invalid %T value for %v", value, t)
}
